// Package indicator provides technical indicator calculations over candle data.
//
// All calculators implement the Indicator interface, receiving candles and
// producing float64 values. Compute runs a full set of calculators over one
// batch and returns the aligned per-candle series with readiness flags.
package indicator

import "regime-monitor/internal/model"

// Indicator is the interface shared by the incremental calculators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA", "RSI").
	Name() string

	// Update feeds the next candle and recalculates.
	Update(candle model.Candle)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}
