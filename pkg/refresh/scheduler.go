// Package refresh periodically re-reads the state of every actor's entity
// and resolves it to a logical value.
package refresh

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openfroyo/actuator/pkg/engine"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ActorSource returns the actors to refresh. It is called on every run so
// that reloaded configurations are picked up.
type ActorSource func() []*engine.Actor

// ResultFunc receives the outcome of refreshing one actor.
type ResultFunc func(entityID string, value engine.Tuple, recognized bool, err error)

// Scheduler runs Refresh for all actors on a cron schedule.
type Scheduler struct {
	schedule string
	reader   engine.StateReader
	actors   ActorSource
	onResult ResultFunc
	cron     *cron.Cron
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler. onResult may be nil.
func NewScheduler(schedule string, reader engine.StateReader, actors ActorSource, onResult ResultFunc, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		schedule: schedule,
		reader:   reader,
		actors:   actors,
		onResult: onResult,
		cron:     cron.New(),
		logger:   logger.With().Str("component", "refresh-scheduler").Logger(),
	}
}

// Start schedules refresh runs until ctx is done. An empty schedule does
// nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info().Msg("Refresh schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("refresh scheduler already running")
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().Str("schedule", s.schedule).Msg("Refresh scheduler started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// RunOnce refreshes every actor sequentially and returns the number of
// actors whose state was recognized.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	actors := s.actors()
	recognized := 0

	for _, actor := range actors {
		if ctx.Err() != nil {
			break
		}
		value, ok, err := actor.Refresh(ctx, s.reader)
		switch {
		case err != nil:
			s.logger.Error().Err(err).Str("entity_id", actor.EntityID()).Msg("Failed to refresh actor")
		case ok:
			recognized++
			s.logger.Debug().
				Str("entity_id", actor.EntityID()).
				Str("value", value.String()).
				Msg("Actor refreshed")
		}
		if s.onResult != nil {
			s.onResult(actor.EntityID(), value, ok, err)
		}
	}

	s.logger.Debug().
		Int("actors", len(actors)).
		Int("recognized", recognized).
		Msg("Refresh run completed")

	return recognized
}

// Stop stops the scheduler and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info().Msg("Refresh scheduler stopped")
	}
}

// NextRun returns the next scheduled run, or nil when not running.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if !s.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
