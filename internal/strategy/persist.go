package strategy

import "time"

// State is the persistence counter for one (ticker, direction) pair:
// how many consecutive fast candles have satisfied the raw condition,
// plus the newest candle timestamp the state has been advanced through.
//
// LastTS is a watermark, not only a "last counted" stamp: it moves on
// every evaluated candle, so re-advancing over an already-seen batch
// leaves the state untouched. Whenever Count > 0 it equals the last
// counted candle's timestamp.
type State struct {
	Count  int
	LastTS time.Time
}

// Advance returns the state after evaluating one candle. ts is the
// candle's timestamp, prevTS the timestamp of the candle immediately
// before it in the series (zero for the first element), raw whether
// the directional condition holds on this candle.
//
// A candle at or before the watermark leaves the state unchanged. A
// failing condition resets the count to zero. A holding condition
// increments only when the previous series candle is the one the state
// last advanced through; otherwise the run restarts at 1 (continuity
// gap between invocations).
func Advance(s State, ts, prevTS time.Time, raw bool) State {
	if !ts.After(s.LastTS) {
		return s
	}
	if !raw {
		return State{LastTS: ts}
	}
	if s.LastTS.Equal(prevTS) {
		return State{Count: s.Count + 1, LastTS: ts}
	}
	return State{Count: 1, LastTS: ts}
}
