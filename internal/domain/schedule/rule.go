package schedule

import (
	"fmt"
	"sort"
	"time"
)

// Clock is a local wall-clock time of day. Hour 24 with minute 0 is accepted
// as the end of the day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseMilitary converts an upstream military-style integer (900 = 9:00, 1830 = 18:30).
func ParseMilitary(v int) (Clock, error) {
	c := Clock{Hour: v / 100, Minute: v % 100}
	if err := c.validate(); err != nil {
		return Clock{}, err
	}
	return c, nil
}

func (c Clock) validate() error {
	if c.Hour < 0 || c.Minute < 0 || c.Minute > 59 || c.Hour > 24 || (c.Hour == 24 && c.Minute != 0) {
		return &ComputationError{Reason: ReasonMissingHours, Detail: fmt.Sprintf("invalid time of day %02d:%02d", c.Hour, c.Minute)}
	}
	return nil
}

// TimeWindow is a daily clock range. End <= Start means the window crosses midnight.
type TimeWindow struct {
	Start Clock
	End   Clock
}

// MonthlyPattern positions a rule on the nth occurrences of one weekday.
type MonthlyPattern struct {
	Weekday Weekday
	// WeeksOfMonth holds occurrences 1..5; empty means every week.
	WeeksOfMonth []int
}

// RecurringRule is one periodic sweeping restriction. SourceID is the upstream
// row id (block_sweep_id) the rule was decoded from.
type RecurringRule struct {
	Pattern      MonthlyPattern
	TimeWindow   TimeWindow
	SkipHolidays bool
	SourceID     int64
}

// Window is a concrete active interval.
type Window struct {
	Start time.Time
	End   time.Time
}

// Equal compares instants, ignoring the zone they are expressed in.
func (w Window) Equal(o Window) bool {
	return w.Start.Equal(o.Start) && w.End.Equal(o.End)
}

func activeWeeks(weeks []int) ([]int, error) {
	if len(weeks) == 0 {
		return []int{1, 2, 3, 4, 5}, nil
	}
	seen := make(map[int]bool, len(weeks))
	out := make([]int, 0, len(weeks))
	for _, w := range weeks {
		if w < 1 || w > 5 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	if len(out) == 0 {
		return nil, &ComputationError{Reason: ReasonNoActiveWeeks, Detail: fmt.Sprintf("weeks %v", weeks)}
	}
	sort.Ints(out)
	return out, nil
}
