package model

// Direction is the side of an emitted signal.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Regime is the slow-timeframe market classification.
type Regime int

const (
	RegimeNeutral Regime = iota
	RegimeUp
	RegimeDown
)

func (r Regime) String() string {
	switch r {
	case RegimeUp:
		return "UP"
	case RegimeDown:
		return "DOWN"
	default:
		return "NEUTRAL"
	}
}

// Score maps the regime onto a gauge value: UP=1, NEUTRAL=0, DOWN=-1.
func (r Regime) Score() float64 {
	switch r {
	case RegimeUp:
		return 1
	case RegimeDown:
		return -1
	default:
		return 0
	}
}
