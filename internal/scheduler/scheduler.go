package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"featcli/internal/config"
	"featcli/pkg/contracts/domain"
)

// stopWait bounds how long Stop waits for an in-flight refresh before
// letting shutdown continue.
const stopWait = 5 * time.Second

// Runner executes a full pipeline run and reports whether one is
// already in flight. Satisfied by services.OperationService.
type Runner interface {
	Run(ctx context.Context, cfg domain.OperationConfig) (*domain.Operation, error)
	Active() (string, bool)
}

// Scheduler triggers unattended pipeline refreshes on a cron spec. A
// refresh runs the full registered pipeline with all defaults; if a run
// is already active when the schedule fires, the refresh is skipped
// rather than queued.
type Scheduler struct {
	cron   *cron.Cron
	cfg    config.ScheduleConfig
	runner Runner
	logger *slog.Logger
	entry  cron.EntryID
}

// New validates the cron spec and registers the refresh job. Cron
// fields are interpreted in UTC so the refresh tracks the exchange's
// daily close rather than the host timezone.
func New(cfg config.ScheduleConfig, runner Runner, logger *slog.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("scheduler requires a runner")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC)),
		cfg:    cfg,
		runner: runner,
		logger: logger.With(slog.String("component", "scheduler")),
	}

	entry, err := s.cron.AddFunc(cfg.Spec, s.refresh)
	if err != nil {
		return nil, fmt.Errorf("register refresh %q: %w", cfg.Spec, err)
	}
	s.entry = entry
	return s, nil
}

// Start begins firing the refresh on its spec.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started",
		slog.String("spec", s.cfg.Spec),
		slog.Time("next_run", s.cron.Entry(s.entry).Next))
}

// Stop halts the cron loop and waits briefly for an in-flight refresh. A
// refresh still running after the wait keeps going on its own context;
// cancelling it is the run manager's job.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(stopWait):
		s.logger.Warn("scheduler stopped with a refresh still running")
	}
	s.logger.Info("scheduler stopped")
}

// refresh executes one scheduled pipeline run with the configured
// defaults. Overlap with a manually started run is resolved by
// skipping: the active run already refreshes the same artifacts.
func (s *Scheduler) refresh() {
	if id, busy := s.runner.Active(); busy {
		s.logger.Warn("scheduled refresh skipped, a run is already active",
			slog.String("operation_id", id))
		return
	}

	ctx := context.Background()
	s.logger.InfoContext(ctx, "scheduled refresh starting",
		slog.String("spec", s.cfg.Spec))

	op, err := s.runner.Run(ctx, domain.OperationConfig{})
	if err != nil {
		s.logger.ErrorContext(ctx, "scheduled refresh failed",
			slog.String("error", err.Error()))
		return
	}

	s.logger.InfoContext(ctx, "scheduled refresh finished",
		slog.String("operation_id", op.ID),
		slog.String("status", string(op.Status)),
		slog.Time("next_run", s.cron.Entry(s.entry).Next))
}
