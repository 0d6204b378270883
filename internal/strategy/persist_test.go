package strategy

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)

func ts(i int) time.Time { return t0.Add(time.Duration(i) * 30 * time.Minute) }

func TestAdvance_Transitions(t *testing.T) {
	cases := []struct {
		name   string
		in     State
		ts     time.Time
		prevTS time.Time
		raw    bool
		want   State
	}{
		{"fresh hold starts at one", State{}, ts(0), time.Time{}, true, State{Count: 1, LastTS: ts(0)}},
		{"contiguous hold increments", State{Count: 1, LastTS: ts(0)}, ts(1), ts(0), true, State{Count: 2, LastTS: ts(1)}},
		{"fail resets to zero", State{Count: 2, LastTS: ts(1)}, ts(2), ts(1), false, State{Count: 0, LastTS: ts(2)}},
		{"hold after fail restarts", State{Count: 0, LastTS: ts(2)}, ts(3), ts(2), true, State{Count: 1, LastTS: ts(3)}},
		{"gap hold restarts at one", State{Count: 3, LastTS: ts(1)}, ts(5), ts(4), true, State{Count: 1, LastTS: ts(5)}},
		{"duplicate candle ignored", State{Count: 2, LastTS: ts(4)}, ts(4), ts(3), true, State{Count: 2, LastTS: ts(4)}},
		{"older candle ignored", State{Count: 2, LastTS: ts(4)}, ts(2), ts(1), true, State{Count: 2, LastTS: ts(4)}},
		{"fail still moves watermark", State{Count: 0, LastTS: ts(1)}, ts(2), ts(1), false, State{Count: 0, LastTS: ts(2)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Advance(tc.in, tc.ts, tc.prevTS, tc.raw)
			if got.Count != tc.want.Count || !got.LastTS.Equal(tc.want.LastTS) {
				t.Errorf("Advance() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestAdvance_Sequence(t *testing.T) {
	// hold, hold, fail, hold, hold, hold over contiguous candles.
	holds := []bool{true, true, false, true, true, true}
	wantCounts := []int{1, 2, 0, 1, 2, 3}

	st := State{}
	var prev time.Time
	for i, h := range holds {
		st = Advance(st, ts(i), prev, h)
		if st.Count != wantCounts[i] {
			t.Errorf("candle %d: Count=%d, want %d", i, st.Count, wantCounts[i])
		}
		if !st.LastTS.Equal(ts(i)) {
			t.Errorf("candle %d: watermark %v, want %v", i, st.LastTS, ts(i))
		}
		prev = ts(i)
	}
}

func TestAdvance_ReplayIsNoop(t *testing.T) {
	st := State{}
	var prev time.Time
	for i := 0; i < 4; i++ {
		st = Advance(st, ts(i), prev, true)
		prev = ts(i)
	}
	final := st

	// Feeding the same candles again must not disturb the run length.
	prev = time.Time{}
	for i := 0; i < 4; i++ {
		st = Advance(st, ts(i), prev, true)
		prev = ts(i)
	}
	if st != final {
		t.Errorf("replay changed state: %+v, want %+v", st, final)
	}
}
