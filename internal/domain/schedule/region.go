package schedule

import "time"

// Region is the wall-clock zone schedules are written in. Offsets are picked
// with the US daylight-saving calendar (second Sunday of March to the first
// Sunday of November, switching at 02:00 local) instead of a tz database
// lookup, so instants near the switch hour can be off by one hour.
type Region struct {
	Name           string
	StandardAbbrev string
	DaylightAbbrev string
	StandardOffset time.Duration
	DaylightOffset time.Duration
}

// Pacific is the region every upstream dataset is published in.
var Pacific = Region{
	Name:           "America/Los_Angeles",
	StandardAbbrev: "PST",
	DaylightAbbrev: "PDT",
	StandardOffset: -8 * time.Hour,
	DaylightOffset: -7 * time.Hour,
}

// nthSunday returns the day of month of the nth Sunday.
func nthSunday(year int, month time.Month, n int) int {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Weekday()
	return 1 + (7-int(first))%7 + 7*(n-1)
}

// IsDaylightDate reports whether the calendar date falls in the daylight period.
func (r Region) IsDaylightDate(year int, month time.Month, day int) bool {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	year, month, day = d.Date()
	switch {
	case month > time.March && month < time.November:
		return true
	case month == time.March:
		return day >= nthSunday(year, time.March, 2)
	case month == time.November:
		return day < nthSunday(year, time.November, 1)
	default:
		return false
	}
}

func (r Region) zone(daylight bool) *time.Location {
	if daylight {
		return time.FixedZone(r.DaylightAbbrev, int(r.DaylightOffset/time.Second))
	}
	return time.FixedZone(r.StandardAbbrev, int(r.StandardOffset/time.Second))
}

// In converts an instant to the region's wall clock.
func (r Region) In(t time.Time) time.Time {
	utc := t.UTC()
	year := utc.Year()
	// 02:00 local standard time on the switch-on Sunday, 02:00 local daylight time on the switch-off Sunday.
	on := time.Date(year, time.March, nthSunday(year, time.March, 2), 2, 0, 0, 0, time.UTC).Add(-r.StandardOffset)
	off := time.Date(year, time.November, nthSunday(year, time.November, 1), 2, 0, 0, 0, time.UTC).Add(-r.DaylightOffset)
	daylight := !utc.Before(on) && utc.Before(off)
	return t.In(r.zone(daylight))
}

// Date builds the instant for a wall-clock date and time of day in the region.
// Out-of-range days and hours are normalized the way time.Date does.
func (r Region) Date(year int, month time.Month, day int, clock Clock) time.Time {
	norm := time.Date(year, month, day, clock.Hour, clock.Minute, 0, 0, time.UTC)
	y, m, d := norm.Date()
	return time.Date(y, m, d, norm.Hour(), norm.Minute(), 0, 0, r.zone(r.IsDaylightDate(y, m, d)))
}

// Format renders t as local wall clock with an explicit UTC offset, never "Z".
func (r Region) Format(t time.Time) string {
	return r.In(t).Format(time.RFC3339)
}
