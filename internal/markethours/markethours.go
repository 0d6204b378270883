package markethours

import (
	"fmt"
	"time"
)

// NY is the exchange's local time. Falls back to a fixed EST offset on
// hosts without the IANA database; the fallback loses DST handling.
var NY = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.FixedZone("EST", -5*3600)
	}
	return loc
}()

// NYSE regular session, US/Eastern
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0
)

// IsMarketOpen returns true if t falls within the NYSE regular session
// (9:30 AM – 4:00 PM US/Eastern, Mon–Fri, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	et := t.In(NY)
	wd := et.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	if IsHoliday(et) {
		return false
	}
	hm := et.Hour()*60 + et.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday returns true if t is Mon–Fri.
func IsWeekday(t time.Time) bool {
	wd := t.In(NY).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a full-closure
// holiday.
func IsTradingDay(t time.Time) bool {
	et := t.In(NY)
	return IsWeekday(et) && !IsHoliday(et)
}

// NextOpen returns the next market open (9:30 AM US/Eastern on the next
// trading day). If t is before today's open on a trading day, returns
// today's open.
func NextOpen(t time.Time) time.Time {
	et := t.In(NY)

	todayOpen := time.Date(et.Year(), et.Month(), et.Day(), OpenHour, OpenMinute, 0, 0, NY)
	if et.Before(todayOpen) && IsTradingDay(et) {
		return todayOpen
	}

	d := et.AddDate(0, 0, 1)
	for i := 0; i < 10; i++ { // max 10 days ahead (holidays + weekends)
		if IsTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, OpenMinute, 0, 0, NY)
		}
		d = d.AddDate(0, 0, 1)
	}
	// Fallback: next day
	return time.Date(et.Year(), et.Month(), et.Day()+1, OpenHour, OpenMinute, 0, 0, NY)
}

// TodayClose returns today's market close time (4:00 PM US/Eastern).
func TodayClose(t time.Time) time.Time {
	et := t.In(NY)
	return time.Date(et.Year(), et.Month(), et.Day(), CloseHour, CloseMinute, 0, 0, NY)
}

// TimeUntilClose returns the duration until today's close.
// Returns 0 if the market is already closed.
func TimeUntilClose(t time.Time) time.Duration {
	cl := TodayClose(t)
	d := cl.Sub(t.In(NY))
	if d < 0 {
		return 0
	}
	return d
}

// TimeUntilOpen returns the duration until the next market open.
func TimeUntilOpen(t time.Time) time.Duration {
	return NextOpen(t).Sub(t.In(NY))
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		d := TimeUntilClose(t)
		return fmt.Sprintf("Market Open — closes in %s", fmtDur(d))
	}
	next := NextOpen(t)
	d := next.Sub(t)
	et := next.In(NY)
	return fmt.Sprintf("Market Closed — opens %s %s (%s)",
		et.Weekday().String()[:3], et.Format("15:04"), fmtDur(d))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
