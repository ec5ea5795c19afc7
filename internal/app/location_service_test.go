package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"sweep_notifier/internal/domain/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocationService(sweeping *fakeSweeping, regulations *fakeRegulations, now time.Time) *LocationServiceImpl {
	svc := NewLocationService(sweeping, regulations, schedule.NewResolver(schedule.DefaultCalendar), 50, nil, testLogger())
	svc.clock = fixedClock(now)
	return svc
}

func nearbySweeping() *fakeSweeping {
	return &fakeSweeping{nearby: []schedule.ScheduleCandidate{
		{Corridor: "Main St", Limits: "100 - 200", SideToken: schedule.SideRight, BlockSide: "East", Rules: []schedule.RecurringRule{firstSaturdayMorning}, DistanceMeters: 4, IsUserSide: true},
		{Corridor: "Oak St", Limits: "1 - 99", SideToken: schedule.SideLeft, BlockSide: "North", Rules: []schedule.RecurringRule{{Pattern: schedule.MonthlyPattern{Weekday: schedule.Holiday}}}, DistanceMeters: 2},
	}}
}

func nearbyRegulations() *fakeRegulations {
	return &fakeRegulations{nearby: []schedule.RegulationCandidate{
		{ID: 5, Days: "M-F", HoursBegin: 800, HoursEnd: 1800, HourLimit: 2, DistanceMeters: 7},
	}}
}

func TestCheckReturnsBothSources(t *testing.T) {
	svc := newLocationService(nearbySweeping(), nearbyRegulations(), pacificAt(2025, time.January, 27, 7, 0))

	res, err := svc.Check(context.Background(), schedule.Point{Latitude: 37.76, Longitude: -122.42})
	require.NoError(t, err)
	require.NotNil(t, res.Schedule)
	assert.Equal(t, "Main St", res.Schedule.Key.Corridor)
	assert.Len(t, res.Dropped, 1)
	require.NotNil(t, res.Regulation)
	assert.True(t, res.Regulation.Deadline.MoveBy.Equal(pacificAt(2025, time.January, 27, 10, 0)))
	assert.NoError(t, res.ScheduleErr)
	assert.NoError(t, res.RegulationErr)
}

func TestCheckKeepsSweepingWhenRegulationsFail(t *testing.T) {
	regs := &fakeRegulations{nearbyErr: errors.New("connection refused")}
	svc := newLocationService(nearbySweeping(), regs, pacificAt(2025, time.January, 27, 7, 0))

	res, err := svc.Check(context.Background(), schedule.Point{Latitude: 37.76, Longitude: -122.42})
	require.NoError(t, err)
	assert.NotNil(t, res.Schedule)
	assert.Nil(t, res.Regulation)

	var upstream *UpstreamError
	require.ErrorAs(t, res.RegulationErr, &upstream)
	assert.Equal(t, SourceRegulation, upstream.Source)
}

func TestCheckNothingNearby(t *testing.T) {
	svc := newLocationService(&fakeSweeping{}, &fakeRegulations{}, pacificAt(2025, time.January, 27, 7, 0))

	res, err := svc.Check(context.Background(), schedule.Point{Latitude: 37.76, Longitude: -122.42})
	require.NoError(t, err)
	assert.Nil(t, res.Schedule)
	assert.Nil(t, res.Regulation)
}

func TestCheckFailsWhenBothSourcesFail(t *testing.T) {
	sweeping := &fakeSweeping{nearbyErr: errors.New("timeout")}
	regs := &fakeRegulations{nearbyErr: errors.New("timeout")}
	svc := newLocationService(sweeping, regs, pacificAt(2025, time.January, 27, 7, 0))

	_, err := svc.Check(context.Background(), schedule.Point{Latitude: 37.76, Longitude: -122.42})
	assert.ErrorIs(t, err, ErrAllSourcesFailed)
}
