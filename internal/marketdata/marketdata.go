// Package marketdata defines the candle source contract the monitor
// consumes. Providers return ordered, deduplicated OHLCV batches with
// the trailing in-progress bar flagged so callers can strip it.
package marketdata

import (
	"context"
	"time"

	"regime-monitor/internal/model"
)

// Provider fetches candles for one ticker and interval.
type Provider interface {
	// Candles returns bars covering roughly lookbackDays of history,
	// ascending by TS with no duplicate buckets. The trailing bar may
	// be flagged Forming while its bucket is still open.
	Candles(ctx context.Context, ticker string, interval model.Interval, lookbackDays int) ([]model.Candle, error)
}

// Age returns how old the newest closed candle in batch is relative to
// now. ok is false when the batch holds no closed candle.
func Age(batch []model.Candle, now time.Time) (time.Duration, bool) {
	for i := len(batch) - 1; i >= 0; i-- {
		if !batch[i].Forming {
			return now.Sub(batch[i].TS), true
		}
	}
	return 0, false
}
