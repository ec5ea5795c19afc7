package schedule

import (
	"fmt"
	"time"
)

// horizonMonths bounds the forward scan: the current month plus twelve.
const horizonMonths = 13

// regulationHorizonDays covers every weekday once, plus the day before today
// so an overnight window that started yesterday is still found.
const regulationHorizonDays = 8

// Calendar computes concrete windows for periodic rules in one region. It holds
// no mutable state and is safe for concurrent use.
type Calendar struct {
	Region Region
}

// NewCalendar returns a Calendar for region.
func NewCalendar(region Region) Calendar {
	return Calendar{Region: region}
}

// DefaultCalendar computes windows in Pacific time.
var DefaultCalendar = NewCalendar(Pacific)

func nthWeekdayOfMonth(year int, month time.Month, weekday time.Weekday, occurrence int) (int, bool) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	day := 1 + (int(weekday)-int(first.Weekday())+7)%7 + 7*(occurrence-1)
	daysInMonth := first.AddDate(0, 1, -1).Day()
	return day, day <= daysInMonth
}

// NextWindow returns the first window of rule, in chronological order, whose end
// is after now. A window already in progress is returned as is.
func (c Calendar) NextWindow(rule RecurringRule, now time.Time) (Window, error) {
	weekday := rule.Pattern.Weekday
	if weekday == Holiday {
		return Window{}, &ComputationError{Reason: ReasonHolidayOnly, Detail: "holiday-only, no definite day"}
	}
	if !weekday.IsCalendarDay() {
		return Window{}, &ComputationError{Reason: ReasonUnknownWeekday, Detail: fmt.Sprintf("weekday %d", int(weekday))}
	}
	if err := rule.TimeWindow.Start.validate(); err != nil {
		return Window{}, err
	}
	if err := rule.TimeWindow.End.validate(); err != nil {
		return Window{}, err
	}
	weeks, err := activeWeeks(rule.Pattern.WeeksOfMonth)
	if err != nil {
		return Window{}, err
	}

	ref := c.Region.In(now)
	// Starts a month back: a window from last month's final day can still be running.
	for offset := -1; offset < horizonMonths; offset++ {
		month := time.Date(ref.Year(), ref.Month()+time.Month(offset), 1, 0, 0, 0, 0, time.UTC)
		for _, occurrence := range weeks {
			day, ok := nthWeekdayOfMonth(month.Year(), month.Month(), weekday.Time(), occurrence)
			if !ok {
				continue
			}
			w := c.window(month.Year(), month.Month(), day, rule.TimeWindow)
			if !w.End.After(now) {
				continue
			}
			return w, nil
		}
	}
	return Window{}, &ComputationError{Reason: ReasonNoOccurrence, Detail: fmt.Sprintf("no occurrence within %d months", horizonMonths)}
}

func (c Calendar) window(year int, month time.Month, day int, tw TimeWindow) Window {
	start := c.Region.Date(year, month, day, tw.Start)
	end := c.Region.Date(year, month, day, tw.End)
	if !end.After(start) {
		end = c.Region.Date(year, month, day+1, tw.End)
	}
	return Window{Start: start, End: end}
}

// EarliestWindow evaluates every rule and returns the window with the earliest
// start together with the rule that produced it. Ties go to the smaller SourceID.
// Rules that fail are reported in errs and skipped; ok is false when none succeeded.
func (c Calendar) EarliestWindow(rules []RecurringRule, now time.Time) (best Window, winner RecurringRule, ok bool, errs []error) {
	for _, rule := range rules {
		w, err := c.NextWindow(rule, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %d: %w", rule.SourceID, err))
			continue
		}
		better := !ok || w.Start.Before(best.Start)
		tie := ok && w.Start.Equal(best.Start) && rule.SourceID < winner.SourceID
		if better || tie {
			best, winner, ok = w, rule, true
		}
	}
	return best, winner, ok, errs
}

// Deadline is the next relevant regulation window and the instant a parked
// vehicle has to be moved by.
type Deadline struct {
	Window Window
	MoveBy time.Time
}

// NextRegulationWindow finds the next day matching days whose [begin, end)
// window has not yet ended.
func (c Calendar) NextRegulationWindow(days DaysMask, begin, end Clock, now time.Time) (Window, error) {
	if days == 0 {
		return Window{}, &ComputationError{Reason: ReasonMalformedDays, Detail: "empty days mask"}
	}
	if err := begin.validate(); err != nil {
		return Window{}, err
	}
	if err := end.validate(); err != nil {
		return Window{}, err
	}
	ref := c.Region.In(now)
	tw := TimeWindow{Start: begin, End: end}
	for offset := -1; offset < regulationHorizonDays; offset++ {
		date := time.Date(ref.Year(), ref.Month(), ref.Day()+offset, 0, 0, 0, 0, time.UTC)
		if !days.Has(date.Weekday()) {
			continue
		}
		w := c.window(date.Year(), date.Month(), date.Day(), tw)
		if !w.End.After(now) {
			continue
		}
		return w, nil
	}
	return Window{}, &ComputationError{Reason: ReasonNoOccurrence, Detail: fmt.Sprintf("no regulation window within %d days", regulationHorizonDays)}
}

// NextDeadline computes the move-by instant for a time-limited regulation.
// days is the upstream mask string ("M-F"), hoursBegin/hoursEnd are military
// integers and hourLimit is in hours. The deadline is the window start plus the
// limit, capped at the window end. Without an hour limit the vehicle has to be
// gone when the window opens. A window whose deadline already passed is skipped
// in favour of the next one.
func (c Calendar) NextDeadline(days string, hoursBegin, hoursEnd, hourLimit int, now time.Time) (Deadline, error) {
	mask, err := ParseDaysMask(days)
	if err != nil {
		return Deadline{}, err
	}
	begin, err := ParseMilitary(hoursBegin)
	if err != nil {
		return Deadline{}, err
	}
	end, err := ParseMilitary(hoursEnd)
	if err != nil {
		return Deadline{}, err
	}

	from := now
	for i := 0; i < regulationHorizonDays; i++ {
		w, err := c.NextRegulationWindow(mask, begin, end, from)
		if err != nil {
			return Deadline{}, err
		}
		moveBy := w.Start.Add(time.Duration(max(hourLimit, 0)) * time.Hour)
		if moveBy.After(w.End) {
			moveBy = w.End
		}
		if moveBy.After(now) {
			return Deadline{Window: w, MoveBy: moveBy}, nil
		}
		from = w.End
	}
	return Deadline{}, &ComputationError{Reason: ReasonNoOccurrence, Detail: fmt.Sprintf("no regulation deadline within %d days", regulationHorizonDays)}
}
