package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	dispatchTimeout = 1 * time.Minute
	rearmTimeout    = 5 * time.Minute // Longer timeout, rearm walks every unarmed subscription
)

// Dispatcher claims and delivers due notifications.
type Dispatcher interface {
	DispatchDue(ctx context.Context) (int, error)
}

// Rearmer arms the next cycle for subscriptions without a pending notification.
type Rearmer interface {
	Rearm(ctx context.Context) (int, error)
}

// JobScheduler drives the durable notification table: a frequent dispatch
// job that fires due rows and a slower rearm job for recurring subscriptions.
type JobScheduler struct {
	cronEngine       *cron.Cron
	dispatcher       Dispatcher
	rearmer          Rearmer
	logger           *logrus.Entry
	cronSpecDispatch string // e.g., "* * * * *" (every minute)
	cronSpecRearm    string // e.g., "*/15 * * * *"
}

func NewJobScheduler(
	dispatcher Dispatcher,
	rearmer Rearmer,
	logger *logrus.Entry,
	cronSpecDispatch string,
	cronSpecRearm string,
) *JobScheduler {
	return &JobScheduler{
		cronEngine:       cron.New(cron.WithLocation(time.UTC)),
		dispatcher:       dispatcher,
		rearmer:          rearmer,
		logger:           logger,
		cronSpecDispatch: cronSpecDispatch,
		cronSpecRearm:    cronSpecRearm,
	}
}

// Start registers both jobs and starts the cron engine. A rearm pass runs
// once immediately so units lost while the process was down are armed again.
func (s *JobScheduler) Start() error {
	s.logger.Info("Starting notification job scheduler...")

	if _, err := s.cronEngine.AddFunc(s.cronSpecDispatch, s.runDispatch); err != nil {
		return err
	}
	if _, err := s.cronEngine.AddFunc(s.cronSpecRearm, s.runRearm); err != nil {
		return err
	}

	go s.runRearm()
	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"dispatch_spec": s.cronSpecDispatch,
		"rearm_spec":    s.cronSpecRearm,
	}).Info("Notification job scheduler started.")
	return nil
}

func (s *JobScheduler) runDispatch() {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()
	n, err := s.dispatcher.DispatchDue(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Error during due notification dispatch")
		return
	}
	if n > 0 {
		s.logger.WithField("count", n).Info("Dispatched due notifications")
	}
}

func (s *JobScheduler) runRearm() {
	ctx, cancel := context.WithTimeout(context.Background(), rearmTimeout)
	defer cancel()
	n, err := s.rearmer.Rearm(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Error during subscription rearm")
		return
	}
	s.logger.WithField("armed", n).Debug("Rearm pass finished")
}

// Stop stops the engine and waits for running jobs.
func (s *JobScheduler) Stop() {
	s.logger.Info("Stopping notification job scheduler...")
	ctx := s.cronEngine.Stop()
	<-ctx.Done()
	s.logger.Info("Notification job scheduler gracefully stopped.")
}
