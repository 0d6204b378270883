package model

import "time"

// Candle is one OHLCV bar for a single ticker and interval.
// TS is the bucket start time in the exchange's local timezone.
type Candle struct {
	TS      time.Time `json:"ts"`
	Open    float64   `json:"open"`
	High    float64   `json:"high"`
	Low     float64   `json:"low"`
	Close   float64   `json:"close"`
	Volume  int64     `json:"volume"`
	Forming bool      `json:"forming"` // true while the bucket is still open
}

// Closed returns batch with forming candles removed. Batches are ordered
// ascending by TS, so in practice only the trailing bar can be forming.
func Closed(batch []Candle) []Candle {
	out := make([]Candle, 0, len(batch))
	for _, c := range batch {
		if !c.Forming {
			out = append(out, c)
		}
	}
	return out
}
