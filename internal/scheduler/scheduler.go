package scheduler

import (
	"context"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/elys-network/stablerouter/internal/keeper"
	"github.com/elys-network/stablerouter/internal/logger"
)

// Jobs is the keeper work the scheduler triggers.
type Jobs interface {
	RunCycle(ctx context.Context) keeper.Report
	CompoundAll(ctx context.Context) (sdkmath.Int, error)
}

// Scheduler manages the keeper cron tasks.
type Scheduler struct {
	Cron *cron.Cron
	Jobs Jobs
	Ctx  context.Context

	log zerolog.Logger
}

// NewScheduler creates a new Scheduler. Cron specs carry a seconds field.
func NewScheduler(ctx context.Context, jobs Jobs) *Scheduler {
	return &Scheduler{
		// a keeper run still in flight when its next tick fires is not started twice
		Cron: cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		Jobs: jobs,
		Ctx:  ctx,
		log:  logger.GetForComponent("scheduler"),
	}
}

// RegisterAll registers the keeper run and the compounding job.
func (s *Scheduler) RegisterAll(upkeepCron, compoundCron string) error {
	if _, err := s.Cron.AddFunc(upkeepCron, s.upkeepTask); err != nil {
		return fmt.Errorf("register upkeep task: %w", err)
	}
	if compoundCron == "" {
		s.log.Info().Msg("No compound schedule configured, compounding only happens on allocation")
		return nil
	}
	if _, err := s.Cron.AddFunc(compoundCron, s.compoundTask); err != nil {
		return fmt.Errorf("register compound task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Int("jobs", len(s.Cron.Entries())).Msg("Scheduler started")
}

// Stop stops the cron scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// RunUpkeepNow executes a keeper run immediately (RUN_ON_START).
func (s *Scheduler) RunUpkeepNow() keeper.Report {
	return s.Jobs.RunCycle(s.Ctx)
}

func (s *Scheduler) upkeepTask() {
	report := s.Jobs.RunCycle(s.Ctx)
	if len(report.Errors) > 0 {
		s.log.Warn().Int("run", report.Run).Errs("errors", report.Errors).Msg("Keeper run finished with errors")
	}
}

func (s *Scheduler) compoundTask() {
	if _, err := s.Jobs.CompoundAll(s.Ctx); err != nil {
		s.log.Error().Err(err).Msg("Compound task failed")
	}
}
