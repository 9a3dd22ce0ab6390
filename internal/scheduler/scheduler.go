// Package scheduler runs ingestion on a cron cadence, the in-process analog
// of the cron-triggered deployment the collector originally ran under.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// RunFunc executes one ingestion run.
type RunFunc func(ctx context.Context) error

// Scheduler triggers a RunFunc on a cron schedule. Overlapping runs are
// skipped rather than queued: the browser session is single-tab and a second
// concurrent walk would corrupt its pager state.
type Scheduler struct {
	cron    *cron.Cron
	logger  arbor.ILogger
	run     RunFunc
	running sync.Mutex
}

// New creates a scheduler for the given cron expression.
func New(schedule string, run RunFunc, logger arbor.ILogger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		logger: logger,
		run:    run,
	}

	_, err := s.cron.AddFunc(schedule, s.trigger)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	logger.Info().Str("schedule", schedule).Msg("Scheduler configured")
	return s, nil
}

// Start begins triggering runs. Non-blocking.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()

	// Block until any in-flight run releases the lock.
	s.running.Lock()
	s.running.Unlock() //nolint:staticcheck // immediate unlock is the drain
	s.logger.Info().Msg("Scheduler stopped")
}

// trigger runs one ingestion, skipping if the previous run is still going.
func (s *Scheduler) trigger() {
	if !s.running.TryLock() {
		s.logger.Warn().Msg("Previous ingestion run still in progress, skipping this trigger")
		return
	}
	defer s.running.Unlock()

	if err := s.run(context.Background()); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled ingestion run failed")
	}
}
