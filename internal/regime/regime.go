// Package regime classifies the slow-timeframe trend state.
package regime

import (
	"regime-monitor/internal/indicator"
	"regime-monitor/internal/model"
)

// Classify maps one slow-timeframe snapshot to a regime.
//
// UP requires the medium EMA above the long EMA with a rising long EMA;
// DOWN is the mirror; everything else, ties included, is NEUTRAL.
// Undefined inputs are NEUTRAL: no regime is established on partial
// history, so signals stay suppressed rather than firing early.
func Classify(s indicator.Snapshot) model.Regime {
	if !s.EMASlow.OK || !s.EMATrend.OK || !s.TrendSlope.OK {
		return model.RegimeNeutral
	}
	switch {
	case s.EMASlow.V > s.EMATrend.V && s.TrendSlope.V > 0:
		return model.RegimeUp
	case s.EMASlow.V < s.EMATrend.V && s.TrendSlope.V < 0:
		return model.RegimeDown
	default:
		return model.RegimeNeutral
	}
}

// Latest classifies the newest snapshot of a batch. Empty batches are
// NEUTRAL.
func Latest(snaps []indicator.Snapshot) model.Regime {
	if len(snaps) == 0 {
		return model.RegimeNeutral
	}
	return Classify(snaps[len(snaps)-1])
}
