package schedule

import "context"

// Point is a WGS84 coordinate.
type Point struct {
	Latitude  float64
	Longitude float64
}

// SweepingSource provides sweeping candidates from the geodata provider.
type SweepingSource interface {
	// NearbySchedules returns candidates ordered by distance.
	NearbySchedules(ctx context.Context, p Point) ([]ScheduleCandidate, error)
	// GetSchedule returns the candidate built from one block_sweep_id, or ErrNotFound.
	GetSchedule(ctx context.Context, scheduleID int64) (*ScheduleCandidate, error)
}

// RegulationSource provides time-limited parking candidates.
type RegulationSource interface {
	NearbyRegulations(ctx context.Context, p Point, radiusMeters float64) ([]RegulationCandidate, error)
	GetRegulation(ctx context.Context, id int64) (*RegulationCandidate, error)
}
