package notification

import (
	"errors"
	"testing"
	"time"

	"sweep_notifier/internal/domain/subscription"

	"github.com/stretchr/testify/assert"
)

func TestFireTime(t *testing.T) {
	deadline := time.Date(2025, time.February, 1, 16, 0, 0, 0, time.UTC)

	fireAt, ideal, ok := FireTime(deadline, time.Hour, deadline.Add(-3*time.Hour))
	assert.True(t, ok)
	assert.Equal(t, deadline.Add(-time.Hour), fireAt)
	assert.Equal(t, fireAt, ideal)

	now := deadline.Add(-10 * time.Minute)
	fireAt, ideal, ok = FireTime(deadline, time.Hour, now)
	assert.True(t, ok)
	assert.Equal(t, now, fireAt)
	assert.Equal(t, deadline.Add(-time.Hour), ideal)

	_, _, ok = FireTime(deadline, time.Hour, deadline)
	assert.False(t, ok)
}

func TestSchedulingErrorUnwraps(t *testing.T) {
	cause := errors.New("401 unauthorized")
	err := &SchedulingError{Key: subscription.Key{DeviceToken: "tok", ScheduleID: 3}, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "delivery for tok/3 failed: 401 unauthorized", err.Error())
}
