package strategy

import (
	"time"

	"regime-monitor/internal/model"
)

// Signal is a gated, ready-to-emit decision for one ticker.
type Signal struct {
	Direction model.Direction
	Regime    model.Regime
	TS        time.Time // confirming candle timestamp
}

// Decide combines the regime, both direction evaluations, and the last
// alerted timestamps into at most one signal.
//
// BUY needs an UP regime and a confirmed bullish condition; SELL needs
// a non-UP regime and a confirmed bearish condition. Either way the
// confirming candle must be strictly newer than the last alert recorded
// for that direction (a zero time means no prior record). The regime
// arm makes BUY and SELL mutually exclusive within one invocation,
// while the ledger timestamps keep each direction independently
// deduplicated across invocations.
func Decide(reg model.Regime, bull, bear Result, lastBuy, lastSell time.Time) (Signal, bool) {
	if reg == model.RegimeUp {
		if bull.Confirmed && bull.ConfirmTS.After(lastBuy) {
			return Signal{Direction: model.Buy, Regime: reg, TS: bull.ConfirmTS}, true
		}
		return Signal{}, false
	}
	if bear.Confirmed && bear.ConfirmTS.After(lastSell) {
		return Signal{Direction: model.Sell, Regime: reg, TS: bear.ConfirmTS}, true
	}
	return Signal{}, false
}
