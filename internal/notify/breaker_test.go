package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type stubSink struct {
	err   error
	calls int
}

func (s *stubSink) Send(context.Context, Alert) error {
	s.calls++
	return s.err
}

func TestBreaker_StartsClosed(t *testing.T) {
	b := NewBreaker(&stubSink{}, 3, 100*time.Millisecond, zerolog.Nop())
	if b.State() != BreakerClosed {
		t.Errorf("expected Closed, got %v", b.State())
	}
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	errFail := errors.New("fail")
	sink := &stubSink{err: errFail}
	b := NewBreaker(sink, 3, 100*time.Millisecond, zerolog.Nop())

	for i := 0; i < 3; i++ {
		err := b.Send(context.Background(), Alert{})
		if !errors.Is(err, errFail) {
			t.Fatalf("expected errFail, got %v", err)
		}
	}

	if b.State() != BreakerOpen {
		t.Errorf("expected Open after 3 failures, got %v", b.State())
	}

	// Sends should be rejected immediately without reaching the sink
	before := sink.calls
	err := b.Send(context.Background(), Alert{})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("expected ErrBreakerOpen, got %v", err)
	}
	if sink.calls != before {
		t.Errorf("sink was called while breaker open")
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	sink := &stubSink{err: errors.New("fail")}
	b := NewBreaker(sink, 2, 50*time.Millisecond, zerolog.Nop())

	// Trip the breaker
	for i := 0; i < 2; i++ {
		b.Send(context.Background(), Alert{})
	}
	if b.State() != BreakerOpen {
		t.Fatal("expected Open")
	}

	// Wait for the cooldown
	time.Sleep(60 * time.Millisecond)

	// Next send should probe, succeed, and close the circuit
	sink.err = nil
	if err := b.Send(context.Background(), Alert{}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if b.State() != BreakerClosed {
		t.Errorf("expected Closed after successful probe, got %v", b.State())
	}
}

func TestBreaker_HalfOpenFailure(t *testing.T) {
	sink := &stubSink{err: errors.New("fail")}
	b := NewBreaker(sink, 2, 50*time.Millisecond, zerolog.Nop())

	// Trip
	for i := 0; i < 2; i++ {
		b.Send(context.Background(), Alert{})
	}

	// Wait and fail the probe
	time.Sleep(60 * time.Millisecond)
	b.Send(context.Background(), Alert{})

	if b.State() != BreakerOpen {
		t.Errorf("expected Open after failed probe, got %v", b.State())
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	errFail := errors.New("fail")
	sink := &stubSink{err: errFail}
	b := NewBreaker(sink, 3, 100*time.Millisecond, zerolog.Nop())

	// 2 failures, then a success
	b.Send(context.Background(), Alert{})
	b.Send(context.Background(), Alert{})
	sink.err = nil
	b.Send(context.Background(), Alert{}) // resets counter

	// 2 more failures shouldn't trip because counter was reset
	sink.err = errFail
	b.Send(context.Background(), Alert{})
	b.Send(context.Background(), Alert{})

	if b.State() != BreakerClosed {
		t.Errorf("expected Closed (counter should have reset), got %v", b.State())
	}
}
