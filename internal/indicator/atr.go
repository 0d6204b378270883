package indicator

import (
	"math"

	"regime-monitor/internal/model"
)

// ATR calculates Average True Range as a trailing simple mean of the
// true range over the last `period` candles. The first candle has no
// prior close, so its true range is High-Low.
// Uses a preallocated circular buffer like SMA-style indicators.
type ATR struct {
	period    int
	buf       []float64 // circular buffer of true ranges
	idx       int
	count     int
	sum       float64
	current   float64
	prevClose float64
}

// NewATR creates a new ATR indicator with the given period.
func NewATR(period int) *ATR {
	return &ATR{
		period: period,
		buf:    make([]float64, period),
	}
}

func (a *ATR) Name() string { return "ATR" }

func (a *ATR) Update(candle model.Candle) {
	tr := candle.High - candle.Low
	if a.count > 0 {
		if hc := math.Abs(candle.High - a.prevClose); hc > tr {
			tr = hc
		}
		if lc := math.Abs(candle.Low - a.prevClose); lc > tr {
			tr = lc
		}
	}
	a.prevClose = candle.Close

	if a.count >= a.period {
		// Subtract the oldest value being overwritten
		a.sum -= a.buf[a.idx]
	}
	a.buf[a.idx] = tr
	a.sum += tr
	a.idx = (a.idx + 1) % a.period
	a.count++

	if a.count >= a.period {
		a.current = a.sum / float64(a.period)
	}
}

func (a *ATR) Value() float64 { return a.current }
func (a *ATR) Ready() bool    { return a.count >= a.period }
