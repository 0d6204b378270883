package indicator

import (
	"time"

	"regime-monitor/internal/model"
)

// Config holds the calculator periods for one timeframe.
type Config struct {
	EMAFast  int // short EMA, gap numerator
	EMASlow  int // medium EMA, gap denominator
	EMATrend int // long EMA, slope source
	RSI      int
	ATR      int
}

// DefaultConfig returns the standard period set (3/9/21 EMAs, RSI 5, ATR 5).
func DefaultConfig() Config {
	return Config{EMAFast: 3, EMASlow: 9, EMATrend: 21, RSI: 5, ATR: 5}
}

// Field is one indicator value plus its readiness flag. OK stays false
// until the defining window has filled; a not-OK value carries no signal.
type Field struct {
	V  float64 `json:"v"`
	OK bool    `json:"ok"`
}

// Snapshot is the aligned indicator record for one closed candle.
type Snapshot struct {
	TS         time.Time `json:"ts"`
	Close      float64   `json:"close"`
	EMAFast    Field     `json:"ema_fast"`
	EMASlow    Field     `json:"ema_slow"`
	EMATrend   Field     `json:"ema_trend"`
	TrendSlope Field     `json:"trend_slope"` // EMATrend_t - EMATrend_{t-1}
	Gap        Field     `json:"gap"`         // EMAFast_t - EMASlow_t
	RSI        Field     `json:"rsi"`
	RSIDelta   Field     `json:"rsi_delta"` // RSI_t - RSI_{t-1}
	ATR        Field     `json:"atr"`
}

// Compute runs all calculators over one batch of closed candles, ordered
// ascending by timestamp, and returns the aligned snapshot series.
// Short batches never fail: fields simply stay not-OK over the range their
// window cannot cover. Pure — fresh calculator state per call.
func Compute(candles []model.Candle, cfg Config) []Snapshot {
	emaFast := NewEMA(cfg.EMAFast)
	emaSlow := NewEMA(cfg.EMASlow)
	emaTrend := NewEMA(cfg.EMATrend)
	rsi := NewRSI(cfg.RSI)
	atr := NewATR(cfg.ATR)

	out := make([]Snapshot, 0, len(candles))
	var prevTrend, prevRSI Field
	for _, c := range candles {
		emaFast.Update(c)
		emaSlow.Update(c)
		emaTrend.Update(c)
		rsi.Update(c)
		atr.Update(c)

		s := Snapshot{
			TS:       c.TS,
			Close:    c.Close,
			EMAFast:  field(emaFast),
			EMASlow:  field(emaSlow),
			EMATrend: field(emaTrend),
			RSI:      field(rsi),
			ATR:      field(atr),
		}
		if s.EMAFast.OK && s.EMASlow.OK {
			s.Gap = Field{V: s.EMAFast.V - s.EMASlow.V, OK: true}
		}
		if s.EMATrend.OK && prevTrend.OK {
			s.TrendSlope = Field{V: s.EMATrend.V - prevTrend.V, OK: true}
		}
		if s.RSI.OK && prevRSI.OK {
			s.RSIDelta = Field{V: s.RSI.V - prevRSI.V, OK: true}
		}
		prevTrend = s.EMATrend
		prevRSI = s.RSI

		out = append(out, s)
	}
	return out
}

func field(in Indicator) Field {
	if !in.Ready() {
		return Field{}
	}
	return Field{V: in.Value(), OK: true}
}
