// Package scheduler runs the periodic overdue sweep and the automatic
// instant-spend reset check.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hholt/choreboard/internal/config"
	prommetrics "github.com/hholt/choreboard/internal/metrics"
	"github.com/hholt/choreboard/pkg/logger"
)

// Sweeper flags overdue tasks and applies their penalties.
type Sweeper interface {
	SweepOverdue(ctx context.Context, now time.Time) (int, error)
}

// SpendResetter applies the automatic instant-spend reset when due.
type SpendResetter interface {
	MaybeResetSpend(ctx context.Context, now time.Time) (bool, error)
}

// Notifier announces sweep outcomes to the household chat.
type Notifier interface {
	SendSweepSummary(applied int, spendReset bool) error
}

// ActivityPruner trims the append-only activity log.
type ActivityPruner interface {
	Prune(ctx context.Context, keep int) error
}

// Service drives the periodic jobs.
type Service struct {
	config   *config.Config
	sweeper  Sweeper
	shop     SpendResetter
	notifier Notifier
	pruner   ActivityPruner
	log      *logger.Logger
	cron     *cron.Cron
}

// NewService creates a new scheduler service. notifier and pruner may be nil.
func NewService(cfg *config.Config, sweeper Sweeper, shop SpendResetter, notifier Notifier, pruner ActivityPruner, log *logger.Logger) *Service {
	return &Service{config: cfg, sweeper: sweeper, shop: shop, notifier: notifier, pruner: pruner, log: log}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Scheduler.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.Scheduler.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Scheduler.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	schedule := s.config.Scheduler.SweepSchedule
	if _, err := s.cron.AddFunc(schedule, func() {
		s.runSweep(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to register sweep job: %w", err)
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("timezone", s.config.Scheduler.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// runSweep executes one overdue sweep plus the spend-reset check.
func (s *Service) runSweep(ctx context.Context) {
	start := time.Now()

	defer func() {
		prommetrics.ObserveSweepDuration(time.Since(start).Seconds())
		prommetrics.SetSweepLastRun()
	}()

	s.log.Debug().Msg("Running overdue sweep")

	applied, err := s.sweeper.SweepOverdue(ctx, start)
	if err != nil {
		s.log.Error().Err(err).Msg("Overdue sweep failed")
		prommetrics.RecordSweepRun("error")
		return
	}

	reset, err := s.shop.MaybeResetSpend(ctx, start)
	if err != nil {
		s.log.Error().Err(err).Msg("Spend reset check failed")
		prommetrics.RecordSweepRun("error")
		return
	}

	// The activity log only ever needs the most recent window; trim the
	// rest while we are here.
	if s.pruner != nil {
		keep := s.config.Auth.ActivityCap * 10
		if err := s.pruner.Prune(ctx, keep); err != nil {
			s.log.Warn().Err(err).Msg("Failed to prune activity log")
		}
	}

	if s.notifier != nil {
		if err := s.notifier.SendSweepSummary(applied, reset); err != nil {
			s.log.Warn().Err(err).Msg("Failed to send sweep summary")
		}
	}

	prommetrics.RecordSweepRun("success")
	s.log.Info().
		Int("penalties_applied", applied).
		Bool("spend_reset", reset).
		Dur("duration", time.Since(start)).
		Msg("Overdue sweep completed")
}
