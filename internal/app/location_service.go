// internal/app/location_service.go
package app

import (
	"context"
	"errors"
	"time"

	"sweep_notifier/internal/domain/schedule"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// LocationResult is everything known about restrictions near one point.
// A nil Schedule or Regulation with a non-nil error means that source failed;
// nil without an error means nothing applicable was found.
type LocationResult struct {
	Point         schedule.Point
	Now           time.Time
	Schedule      *schedule.BlockSide
	Sides         []*schedule.BlockSide
	ScheduleErr   error
	Regulation    *schedule.RegulationDeadline
	Regulations   []schedule.RegulationDeadline
	RegulationErr error
	// Dropped lists rules and candidates skipped because no window could be computed.
	Dropped []error
}

// LocationService answers "what applies where I parked".
type LocationService interface {
	Check(ctx context.Context, p schedule.Point) (*LocationResult, error)
}

type LocationServiceImpl struct {
	sweeping     schedule.SweepingSource
	regulations  schedule.RegulationSource
	resolver     *schedule.Resolver
	radiusMeters float64
	recorder     Recorder
	logger       *logrus.Entry
	clock        func() time.Time
}

func NewLocationService(
	sweeping schedule.SweepingSource,
	regulations schedule.RegulationSource,
	resolver *schedule.Resolver,
	radiusMeters float64,
	recorder Recorder,
	logger *logrus.Entry,
) *LocationServiceImpl {
	return &LocationServiceImpl{
		sweeping:     sweeping,
		regulations:  regulations,
		resolver:     resolver,
		radiusMeters: radiusMeters,
		recorder:     recorderOrNoop(recorder),
		logger:       logger.WithField("component", "location_service"),
		clock:        time.Now,
	}
}

// Check queries both sources concurrently. Each branch keeps its own error so
// one failing source never hides the other's result; only a double failure is
// returned as an error.
func (s *LocationServiceImpl) Check(ctx context.Context, p schedule.Point) (*LocationResult, error) {
	res := &LocationResult{Point: p, Now: s.clock()}
	logCtx := s.logger.WithFields(logrus.Fields{"latitude": p.Latitude, "longitude": p.Longitude})

	var (
		g                 errgroup.Group
		sweepDropped      []error
		regulationDropped []error
	)
	g.Go(func() error {
		candidates, err := s.sweeping.NearbySchedules(ctx, p)
		s.recorder.ObserveUpstream(SourceSweeping, err)
		if err != nil {
			res.ScheduleErr = &UpstreamError{Source: SourceSweeping, Err: err}
			return nil
		}
		res.Sides, sweepDropped = s.resolver.Sides(candidates, res.Now)
		res.Schedule = schedule.Select(res.Sides)
		return nil
	})
	g.Go(func() error {
		candidates, err := s.regulations.NearbyRegulations(ctx, p, s.radiusMeters)
		s.recorder.ObserveUpstream(SourceRegulation, err)
		if err != nil {
			res.RegulationErr = &UpstreamError{Source: SourceRegulation, Err: err}
			return nil
		}
		res.Regulations, regulationDropped = s.resolver.RegulationDeadlines(candidates, res.Now)
		res.Regulation = schedule.NearestDeadline(res.Regulations)
		return nil
	})
	_ = g.Wait()

	res.Dropped = append(sweepDropped, regulationDropped...)
	for _, err := range res.Dropped {
		logCtx.WithError(err).Warn("Skipping restriction without computable window")
	}

	if res.ScheduleErr != nil && res.RegulationErr != nil {
		logCtx.WithError(res.ScheduleErr).WithField("regulation_error", res.RegulationErr.Error()).Error("Both upstream sources failed")
		return nil, errors.Join(ErrAllSourcesFailed, res.ScheduleErr, res.RegulationErr)
	}
	if res.ScheduleErr != nil {
		logCtx.WithError(res.ScheduleErr).Warn("Sweeping source failed, returning regulations only")
	}
	if res.RegulationErr != nil {
		logCtx.WithError(res.RegulationErr).Warn("Regulation source failed, returning sweeping only")
	}
	return res, nil
}
