package markethours

import (
	"testing"
	"time"
)

func TestIsMarketOpen(t *testing.T) {
	cases := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"mid-session Tuesday", time.Date(2025, 3, 4, 12, 0, 0, 0, NY), true},
		{"at the open", time.Date(2025, 3, 4, 9, 30, 0, 0, NY), true},
		{"one minute before open", time.Date(2025, 3, 4, 9, 29, 0, 0, NY), false},
		{"at the close", time.Date(2025, 3, 4, 16, 0, 0, 0, NY), false},
		{"Saturday", time.Date(2025, 3, 8, 12, 0, 0, 0, NY), false},
		{"Thanksgiving 2025", time.Date(2025, 11, 27, 12, 0, 0, 0, NY), false},
		{"Independence Day 2024", time.Date(2024, 7, 4, 12, 0, 0, 0, NY), false},
		{"July 3 2026 observed closure", time.Date(2026, 7, 3, 12, 0, 0, 0, NY), false},
		{"mid-session after DST starts", time.Date(2025, 3, 10, 12, 0, 0, 0, NY), true},
	}
	for _, c := range cases {
		if got := IsMarketOpen(c.t); got != c.want {
			t.Errorf("%s: IsMarketOpen = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestIsMarketOpen_UTCInput(t *testing.T) {
	// 2025-03-04 15:00 UTC is 10:00 EST — inside the session.
	if !IsMarketOpen(time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)) {
		t.Error("UTC input not converted to exchange time")
	}
	// 2025-07-15 15:00 UTC is 11:00 EDT — inside the session too.
	if !IsMarketOpen(time.Date(2025, 7, 15, 15, 0, 0, 0, time.UTC)) {
		t.Error("DST offset not applied")
	}
}

func TestNextOpen(t *testing.T) {
	// Friday after close → Monday 9:30.
	fri := time.Date(2025, 3, 7, 17, 0, 0, 0, NY)
	next := NextOpen(fri)
	want := time.Date(2025, 3, 10, 9, 30, 0, 0, NY)
	if !next.Equal(want) {
		t.Errorf("NextOpen(%v) = %v, want %v", fri, next, want)
	}

	// Early morning on a trading day → same day's open.
	wed := time.Date(2025, 3, 5, 7, 0, 0, 0, NY)
	next = NextOpen(wed)
	want = time.Date(2025, 3, 5, 9, 30, 0, 0, NY)
	if !next.Equal(want) {
		t.Errorf("NextOpen(%v) = %v, want %v", wed, next, want)
	}

	// Day before Thanksgiving, after close → skips the holiday.
	wed = time.Date(2025, 11, 26, 17, 0, 0, 0, NY)
	next = NextOpen(wed)
	want = time.Date(2025, 11, 28, 9, 30, 0, 0, NY)
	if !next.Equal(want) {
		t.Errorf("NextOpen skipping Thanksgiving = %v, want %v", next, want)
	}
}

func TestIsTradingDay(t *testing.T) {
	if IsTradingDay(time.Date(2026, 1, 19, 12, 0, 0, 0, NY)) {
		t.Error("MLK Day 2026 should not be a trading day")
	}
	if !IsTradingDay(time.Date(2026, 1, 20, 12, 0, 0, 0, NY)) {
		t.Error("regular Tuesday should be a trading day")
	}
}
