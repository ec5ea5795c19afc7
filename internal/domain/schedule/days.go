package schedule

import (
	"fmt"
	"strings"
	"time"
)

// DaysMask is a set of weekdays, bit i set for time.Weekday(i).
type DaysMask uint8

const (
	Weekdays DaysMask = 0b0111110
	Everyday DaysMask = 0b1111111
)

var dayAbbrevs = map[string]time.Weekday{
	"su": time.Sunday, "sun": time.Sunday, "sunday": time.Sunday,
	"m": time.Monday, "mo": time.Monday, "mon": time.Monday, "monday": time.Monday,
	"tu": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"w": time.Wednesday, "we": time.Wednesday, "wed": time.Wednesday, "wednesday": time.Wednesday,
	"th": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"f": time.Friday, "fr": time.Friday, "fri": time.Friday, "friday": time.Friday,
	"sa": time.Saturday, "sat": time.Saturday, "saturday": time.Saturday,
}

var maskLabels = []string{"Su", "M", "Tu", "W", "Th", "F", "Sa"}

// ParseDaysMask parses upstream day masks such as "M-F", "M-Sa", "Sa-Su" or
// "M,W,F". Ranges may wrap past Saturday.
func ParseDaysMask(s string) (DaysMask, error) {
	raw := strings.ToLower(strings.TrimSpace(s))
	if raw == "" {
		return 0, &ComputationError{Reason: ReasonMalformedDays, Detail: "empty days mask"}
	}
	var mask DaysMask
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		from, to, isRange := strings.Cut(part, "-")
		first, ok := dayAbbrevs[strings.TrimSpace(from)]
		if !ok {
			return 0, malformedDays(s)
		}
		if !isRange {
			mask = mask.With(first)
			continue
		}
		last, ok := dayAbbrevs[strings.TrimSpace(to)]
		if !ok {
			return 0, malformedDays(s)
		}
		for d := first; ; d = (d + 1) % 7 {
			mask = mask.With(d)
			if d == last {
				break
			}
		}
	}
	return mask, nil
}

func malformedDays(s string) error {
	return &ComputationError{Reason: ReasonMalformedDays, Detail: fmt.Sprintf("unparseable days mask %q", s)}
}

// With returns the mask with d added.
func (m DaysMask) With(d time.Weekday) DaysMask {
	return m | 1<<uint(d)
}

// Has reports whether d is in the mask.
func (m DaysMask) Has(d time.Weekday) bool {
	return m&(1<<uint(d)) != 0
}

// String renders the mask compactly: "M-F", "Sa-Su", "M,W,F".
func (m DaysMask) String() string {
	switch m {
	case 0:
		return ""
	case Everyday:
		return "M-Su"
	}
	// Start after a gap so runs that wrap the week (Sa-Su) stay contiguous.
	start := time.Monday
	for d := time.Sunday; d <= time.Saturday; d++ {
		prev := (d + 6) % 7
		if m.Has(d) && !m.Has(prev) {
			start = d
			break
		}
	}
	var parts []string
	for i := 0; i < 7; {
		d := (start + time.Weekday(i)) % 7
		if !m.Has(d) {
			i++
			continue
		}
		j := i
		for j+1 < 7 && m.Has((start+time.Weekday(j+1))%7) {
			j++
		}
		last := (start + time.Weekday(j)) % 7
		if j == i {
			parts = append(parts, maskLabels[d])
		} else {
			parts = append(parts, maskLabels[d]+"-"+maskLabels[last])
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}
