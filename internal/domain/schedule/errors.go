package schedule

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by sources when a schedule or regulation id is unknown.
var ErrNotFound = errors.New("schedule not found")

// Reason classifies why a single rule or candidate could not produce a window.
type Reason string

const (
	ReasonNoOccurrence   Reason = "no_occurrence"
	ReasonHolidayOnly    Reason = "holiday_only"
	ReasonUnknownWeekday Reason = "unknown_weekday"
	ReasonNoActiveWeeks  Reason = "no_active_weeks"
	ReasonMalformedDays  Reason = "malformed_days"
	ReasonMissingHours   Reason = "missing_hours"
)

// ComputationError is fatal to one rule or candidate only. Callers drop the
// item and keep going with the rest.
type ComputationError struct {
	Reason Reason
	Detail string
}

func (e *ComputationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("schedule computation failed: %s", e.Reason)
	}
	return fmt.Sprintf("schedule computation failed (%s): %s", e.Reason, e.Detail)
}

// IsComputationError reports whether err (or anything it wraps) is a ComputationError
// with the given reason. An empty reason matches any ComputationError.
func IsComputationError(err error, reason Reason) bool {
	var ce *ComputationError
	if !errors.As(err, &ce) {
		return false
	}
	return reason == "" || ce.Reason == reason
}
