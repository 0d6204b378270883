package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = 0 // Normal operation — sends pass through
	BreakerOpen     BreakerState = 1 // Circuit tripped — sends rejected immediately
	BreakerHalfOpen BreakerState = 2 // Testing — one send allowed through to probe
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned when the circuit breaker is open.
var ErrBreakerOpen = errors.New("notify: circuit breaker is open")

// Breaker protects a sink with a circuit breaker. After maxFailures
// consecutive failures, the breaker opens and rejects all sends for
// cooldown. After the cooldown, it enters half-open state and allows
// one probe send through. If the probe succeeds, the breaker closes;
// if it fails, it reopens.
type Breaker struct {
	next Notifier
	log  zerolog.Logger

	mu          sync.Mutex
	state       BreakerState
	failures    int
	maxFailures int
	cooldown    time.Duration
	lastFailure time.Time
}

// NewBreaker wraps next with a circuit breaker.
// maxFailures: consecutive failures before opening (e.g., 3)
// cooldown: time to wait before the half-open probe (e.g., 5m)
func NewBreaker(next Notifier, maxFailures int, cooldown time.Duration, log zerolog.Logger) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		next:        next,
		log:         log,
		state:       BreakerClosed,
		maxFailures: maxFailures,
		cooldown:    cooldown,
	}
}

// Send forwards the alert through the breaker.
// Returns ErrBreakerOpen if the breaker is open and the cooldown hasn't elapsed.
func (b *Breaker) Send(ctx context.Context, a Alert) error {
	b.mu.Lock()

	switch b.state {
	case BreakerOpen:
		// Check if the cooldown has elapsed → transition to half-open
		if time.Since(b.lastFailure) > b.cooldown {
			b.transition(BreakerHalfOpen)
		} else {
			b.mu.Unlock()
			return ErrBreakerOpen
		}

	case BreakerHalfOpen:
		// Allow the probe send through (only one at a time via mutex)
	}

	b.mu.Unlock()

	err := b.next.Send(ctx, a)

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		b.lastFailure = time.Now()

		if b.state == BreakerHalfOpen {
			// Probe failed — reopen
			b.transition(BreakerOpen)
		} else if b.failures >= b.maxFailures {
			// Too many failures — trip the breaker
			b.transition(BreakerOpen)
		}
		return err
	}

	// Success — reset
	if b.state == BreakerHalfOpen {
		b.transition(BreakerClosed)
	}
	b.failures = 0
	return nil
}

// State returns the current circuit breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	if to == BreakerClosed {
		b.failures = 0
	}
	b.log.Warn().Stringer("from", from).Stringer("to", to).Msg("notifier breaker state change")
}
