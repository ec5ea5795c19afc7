package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Weekday mirrors time.Weekday (Sunday = 0) and adds Holiday for rows that only
// apply on public holidays and so have no calendar position.
type Weekday int

const (
	Sunday Weekday = iota
	Monday
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Holiday
)

// UnknownWeekday marks a rule decoded from an unrecognized label. Computing a
// window for it fails with ReasonUnknownWeekday.
const UnknownWeekday Weekday = -1

// Dataset values observed upstream: Mon, Tues, Wed, Thu, Fri, Sat, Sun, Holiday.
var weekdayLabels = map[string]Weekday{
	"sun":       Sunday,
	"sunday":    Sunday,
	"mon":       Monday,
	"monday":    Monday,
	"tue":       Tuesday,
	"tues":      Tuesday,
	"tuesday":   Tuesday,
	"wed":       Wednesday,
	"weds":      Wednesday,
	"wednesday": Wednesday,
	"thu":       Thursday,
	"thur":      Thursday,
	"thurs":     Thursday,
	"thursday":  Thursday,
	"fri":       Friday,
	"friday":    Friday,
	"sat":       Saturday,
	"saturday":  Saturday,
	"holiday":   Holiday,
}

// ParseWeekday resolves a dataset weekday label (case-insensitive).
func ParseWeekday(label string) (Weekday, error) {
	w, ok := weekdayLabels[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return 0, &ComputationError{Reason: ReasonUnknownWeekday, Detail: fmt.Sprintf("unknown weekday label %q", label)}
	}
	return w, nil
}

// IsCalendarDay reports whether w has a fixed position in the week.
func (w Weekday) IsCalendarDay() bool {
	return w >= Sunday && w <= Saturday
}

// Time converts a calendar weekday to time.Weekday. Holiday maps to Sunday and
// callers must check IsCalendarDay first.
func (w Weekday) Time() time.Weekday {
	if !w.IsCalendarDay() {
		return time.Sunday
	}
	return time.Weekday(w)
}

func (w Weekday) String() string {
	if w == Holiday {
		return "Holiday"
	}
	if !w.IsCalendarDay() {
		return "Unknown"
	}
	return time.Weekday(w).String()
}
