// internal/app/payloads.go
package app

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"sweep_notifier/internal/domain/notification"
	"sweep_notifier/internal/domain/schedule"
	"sweep_notifier/internal/domain/subscription"
)

// payloadFunc builds the payload once the fire instant is known.
type payloadFunc func(fireAt time.Time) notification.Payload

// SweepingPayload builds the push sent ahead of a street sweeping window. The
// title counts the minutes left at fireAt, which is later than the lead time
// asks for when the subscription came in late.
func SweepingPayload(sub *subscription.Subscription, c *schedule.ScheduleCandidate, w schedule.Window, fireAt time.Time, region schedule.Region) notification.Payload {
	location := []string{c.Corridor}
	if c.Limits != "" {
		location = append(location, "("+c.Limits+")")
	}
	if c.BlockSide != "" {
		location = append(location, "- "+c.BlockSide+" side")
	}
	return notification.Payload{
		DeviceToken: sub.DeviceToken,
		Platform:    sub.Platform,
		Title:       sweepingTitle(c.Corridor, w.Start.Sub(fireAt)),
		Body:        fmt.Sprintf("%s: %s - %s", strings.Join(location, " "), region.LongTime(w.Start), region.LongTime(w.End)),
		Data: map[string]string{
			"schedule_block_sweep_id": strconv.FormatInt(sub.Target.ScheduleID(), 10),
			"next_sweep_start":        region.Format(w.Start),
			"next_sweep_end":          region.Format(w.End),
			"subscription_type":       string(subscription.TypeSweeping),
		},
	}
}

func sweepingTitle(corridor string, left time.Duration) string {
	minutes := int(math.Ceil(left.Minutes()))
	if minutes <= 0 {
		return fmt.Sprintf("Street sweeping on %s starts now!", corridor)
	}
	if minutes == 1 {
		return fmt.Sprintf("Street sweeping on %s in 1 minute!", corridor)
	}
	return fmt.Sprintf("Street sweeping on %s in %d minutes!", corridor, minutes)
}

// TimingPayload builds the push reminding a driver to move before a time limit runs out.
func TimingPayload(sub *subscription.Subscription, c *schedule.RegulationCandidate, d schedule.Deadline, region schedule.Region) notification.Payload {
	body := fmt.Sprintf("%s %s - %s", regulationLabel(c), region.LongTime(d.Window.Start), region.LongTime(d.Window.End))
	if c.Neighborhood != "" {
		body = c.Neighborhood + ": " + body
	}
	return notification.Payload{
		DeviceToken: sub.DeviceToken,
		Platform:    sub.Platform,
		Title:       "Move your car by " + region.LongTime(d.MoveBy),
		Body:        body,
		Data: map[string]string{
			"regulation_id":     strconv.FormatInt(c.ID, 10),
			"regulation_start":  region.Format(d.Window.Start),
			"regulation_end":    region.Format(d.Window.End),
			"move_by":           region.Format(d.MoveBy),
			"subscription_type": string(subscription.TypeTiming),
		},
	}
}

func regulationLabel(c *schedule.RegulationCandidate) string {
	if c.HourLimit > 0 {
		return fmt.Sprintf("%d-hour limit", c.HourLimit)
	}
	if c.Regulation != "" {
		return c.Regulation
	}
	return "No parking"
}
