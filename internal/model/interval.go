package model

import (
	"fmt"
	"time"
)

// Interval is a bar size accepted by the candle provider.
type Interval string

const (
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval1d  Interval = "1d"
)

var intervalDurations = map[Interval]time.Duration{
	Interval5m:  5 * time.Minute,
	Interval15m: 15 * time.Minute,
	Interval30m: 30 * time.Minute,
	Interval1h:  time.Hour,
	Interval1d:  24 * time.Hour,
}

// ParseInterval validates s against the supported bar sizes.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(s)
	if _, ok := intervalDurations[iv]; !ok {
		return "", fmt.Errorf("unsupported interval %q", s)
	}
	return iv, nil
}

// Duration returns the bar length. Unknown intervals return 0.
func (iv Interval) Duration() time.Duration {
	return intervalDurations[iv]
}

func (iv Interval) String() string { return string(iv) }
