package schedule

import (
	"fmt"
	"strings"
	"time"
)

var ordinals = []string{"", "1st", "2nd", "3rd", "4th", "5th"}

// RuleToHuman renders a rule as "Every 2nd and 4th Tuesday at 12pm-2pm".
// Rules without active weeks or valid hours keep only the parts that are known.
func RuleToHuman(rule RecurringRule) string {
	weekday := rule.Pattern.Weekday.String()
	if _, err := activeWeeks(rule.Pattern.WeeksOfMonth); err != nil {
		return fmt.Sprintf("%s (no active weeks)", weekday)
	}
	prefix := weeksPrefix(rule.Pattern.WeeksOfMonth)
	if rule.TimeWindow.Start.validate() != nil || rule.TimeWindow.End.validate() != nil {
		return fmt.Sprintf("Every %s%s", prefix, weekday)
	}
	return fmt.Sprintf("Every %s%s at %s-%s", prefix, weekday,
		ShortClock(rule.TimeWindow.Start), ShortClock(rule.TimeWindow.End))
}

func weeksPrefix(weeks []int) string {
	active, err := activeWeeks(weeks)
	if err != nil || len(active) == 5 {
		return ""
	}
	labels := make([]string, len(active))
	for i, w := range active {
		labels[i] = ordinals[w]
	}
	switch len(labels) {
	case 1:
		return labels[0] + " "
	case 2:
		return labels[0] + " and " + labels[1] + " "
	default:
		return strings.Join(labels[:len(labels)-1], ", ") + ", and " + labels[len(labels)-1] + " "
	}
}

// RegulationToHuman renders a regulation as "2-hour limit M-F 8am-6pm".
func RegulationToHuman(c RegulationCandidate) string {
	var b strings.Builder
	if c.HourLimit > 0 {
		fmt.Fprintf(&b, "%d-hour limit", c.HourLimit)
	} else if c.Regulation != "" {
		b.WriteString(c.Regulation)
	} else {
		b.WriteString("No parking")
	}
	if mask, err := ParseDaysMask(c.Days); err == nil {
		b.WriteString(" " + mask.String())
	}
	begin, errBegin := ParseMilitary(c.HoursBegin)
	end, errEnd := ParseMilitary(c.HoursEnd)
	if errBegin == nil && errEnd == nil {
		b.WriteString(" " + ShortClock(begin) + "-" + ShortClock(end))
	}
	return b.String()
}

// ShortClock formats a time of day as "8am", "12pm", "6:30pm" or "12am".
func ShortClock(c Clock) string {
	h := c.Hour % 24
	suffix := "am"
	if h >= 12 {
		suffix = "pm"
	}
	h12 := h % 12
	if h12 == 0 {
		h12 = 12
	}
	if c.Minute == 0 {
		return fmt.Sprintf("%d%s", h12, suffix)
	}
	return fmt.Sprintf("%d:%02d%s", h12, c.Minute, suffix)
}

// LongTime formats an instant in the region as "12:00 PM".
func (r Region) LongTime(t time.Time) string {
	return r.In(t).Format("3:04 PM")
}
