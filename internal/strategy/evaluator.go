// Package strategy decides whether a confirmed directional condition
// exists on the fast timeframe and gates it against the slow-timeframe
// regime and the last-alerted ledger state.
package strategy

import (
	"time"

	"regime-monitor/internal/indicator"
	"regime-monitor/internal/model"
)

// Params tune the raw directional condition and its confirmation.
type Params struct {
	ConfirmBars int     // consecutive candles required (min 1)
	GapATRMult  float64 // k: require |gap| > k*ATR when k > 0
	RSIMomentum bool    // additionally require RSI side and slope
}

// Result is the outcome of evaluating one direction over a batch.
type Result struct {
	State     State     // advanced persistence state, to be stored back
	Confirmed bool      // condition held on the newest candle with Count >= ConfirmBars
	ConfirmTS time.Time // timestamp of the confirming candle
}

// Evaluator applies the raw condition plus the persistence rule.
type Evaluator struct {
	params Params
}

// NewEvaluator builds an evaluator; a ConfirmBars below 1 is raised to 1.
func NewEvaluator(p Params) *Evaluator {
	if p.ConfirmBars < 1 {
		p.ConfirmBars = 1
	}
	return &Evaluator{params: p}
}

// Raw reports whether the directional condition holds on one snapshot.
// Undefined fields always fail the condition.
func (e *Evaluator) Raw(s indicator.Snapshot, dir model.Direction) bool {
	if !s.EMAFast.OK || !s.EMASlow.OK {
		return false
	}
	bull := dir == model.Buy
	if bull && s.EMAFast.V <= s.EMASlow.V {
		return false
	}
	if !bull && s.EMAFast.V >= s.EMASlow.V {
		return false
	}

	if k := e.params.GapATRMult; k > 0 {
		if !s.Gap.OK || !s.ATR.OK {
			return false
		}
		if bull && s.Gap.V <= k*s.ATR.V {
			return false
		}
		if !bull && s.Gap.V >= -k*s.ATR.V {
			return false
		}
	}

	if e.params.RSIMomentum {
		if !s.RSI.OK || !s.RSIDelta.OK {
			return false
		}
		if bull && (s.RSI.V <= 50 || s.RSIDelta.V <= 0) {
			return false
		}
		if !bull && (s.RSI.V >= 50 || s.RSIDelta.V >= 0) {
			return false
		}
	}
	return true
}

// Run advances st over every snapshot newer than its watermark and
// reports whether the direction is confirmed as of the newest candle.
// Snapshots must be closed candles in ascending timestamp order.
//
// Confirmation requires the counter to have reached ConfirmBars AND the
// watermark to sit on the batch's newest candle: a condition that held
// in the past but failed since never confirms. Re-running over an
// identical batch re-confirms the same candle; at-most-once emission is
// the gate's and ledger's job, not the evaluator's.
func (e *Evaluator) Run(snaps []indicator.Snapshot, dir model.Direction, st State) Result {
	var prevTS time.Time
	for i, s := range snaps {
		if i > 0 {
			prevTS = snaps[i-1].TS
		} else {
			prevTS = time.Time{}
		}
		st = Advance(st, s.TS, prevTS, e.Raw(s, dir))
	}

	res := Result{State: st}
	if len(snaps) == 0 {
		return res
	}
	last := snaps[len(snaps)-1].TS
	if st.Count >= e.params.ConfirmBars && st.LastTS.Equal(last) {
		res.Confirmed = true
		res.ConfirmTS = last
	}
	return res
}
