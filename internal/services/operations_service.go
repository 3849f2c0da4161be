package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"featcli/internal/config"
	apperrors "featcli/internal/errors"
	"featcli/internal/operations"
	"featcli/pkg/contracts/domain"
)

// Hub is the WebSocket surface the service layer depends on: run
// snapshots flow through BroadcastUpdate, feature refresh announcements
// through BroadcastFeaturesUpdate. *websocket.Hub satisfies it.
type Hub interface {
	BroadcastUpdate(eventType, subtype, action string, payload interface{})
	BroadcastFeaturesUpdate(symbol string, rows, columns int)
}

// OperationService owns the run manager and the registered pipeline
// steps. It is the single entry point for starting runs: HTTP accepts
// them asynchronously via Start, the scheduler and CLIs run them to
// completion via Run.
type OperationService struct {
	manager       *operations.Manager
	hub           Hub
	logger        *slog.Logger
	defaultSymbol string
	runTimeout    time.Duration
}

// NewOperationService builds the run manager, registers the pipeline
// steps in execution order, and returns the service. The hub receives
// every status snapshot the manager emits. A nil paths resolves to the
// executable-relative layout.
func NewOperationService(cfg *config.Config, paths *config.Paths, hub Hub, logger *slog.Logger) (*OperationService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if paths == nil {
		var err error
		if paths, err = config.GetPaths(); err != nil {
			return nil, fmt.Errorf("failed to resolve paths: %w", err)
		}
	}

	manager := operations.NewManager(hub, nil, logger)

	b := manager.Broadcaster()
	steps := []operations.Step{
		operations.NewFetchStage(cfg.Fetch, paths, logger, b),
		operations.NewCleanStage(paths, logger, b),
		operations.NewFeaturesStage(cfg.Pipeline, logger, b),
		operations.NewExportStage(paths, cfg.Pipeline.ExportExcel, logger, b),
	}
	for _, step := range steps {
		if err := manager.RegisterStep(step); err != nil {
			return nil, fmt.Errorf("failed to register step %s: %w", step.ID(), err)
		}
	}

	logger.Info("operation service initialized",
		slog.String("default_symbol", cfg.Fetch.Symbol),
		slog.String("backend", cfg.Pipeline.Backend),
		slog.Bool("export_excel", cfg.Pipeline.ExportExcel),
		slog.Duration("run_timeout", cfg.Server.OperationTimeout))

	return &OperationService{
		manager:       manager,
		hub:           hub,
		logger:        logger,
		defaultSymbol: cfg.Fetch.Symbol,
		runTimeout:    cfg.Server.OperationTimeout,
	}, nil
}

// Start accepts a run for asynchronous execution and returns the
// acknowledgement for the 202 response. The run itself proceeds on a
// background context detached from the request, bounded by the
// configured operation timeout, so it survives the client disconnect.
// A run already executing surfaces as apperrors.ErrOperationConflict.
func (s *OperationService) Start(ctx context.Context, cfg domain.OperationConfig) (*domain.OperationResponse, error) {
	s.applyDefaults(&cfg)

	runCtx, cancel := s.runContext(ctx)
	id, done, err := s.manager.ExecuteAsync(runCtx, cfg)
	if err != nil {
		cancel()
		return nil, translateManagerError(err)
	}

	go func() {
		defer cancel()
		s.awaitRun(id, done)
	}()

	op, err := s.manager.GetOperation(id)
	if err != nil {
		// The run can only disappear this quickly by being pruned,
		// which needs MaxStored finished runs in between.
		return nil, fmt.Errorf("accepted run %s is not queryable: %w", id, err)
	}

	s.logger.InfoContext(ctx, "run accepted",
		slog.String("operation_id", id),
		slog.String("symbol", cfg.Symbol))

	return &domain.OperationResponse{
		OperationID:  op.ID,
		Status:       op.Status,
		Message:      "operation accepted",
		CreatedAt:    op.CreatedAt,
		WebSocketURL: "/ws",
	}, nil
}

// Run executes a run to completion. The scheduler and the CLI entry
// points use this; HTTP uses Start.
func (s *OperationService) Run(ctx context.Context, cfg domain.OperationConfig) (*domain.Operation, error) {
	s.applyDefaults(&cfg)

	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	op, err := s.manager.Execute(runCtx, cfg)
	if err != nil {
		return op, err
	}
	s.announceFeatures(op)
	return op, nil
}

// GetOperation returns the state of a single run.
func (s *OperationService) GetOperation(ctx context.Context, id string) (domain.Operation, error) {
	op, err := s.manager.GetOperation(id)
	if err != nil {
		return domain.Operation{}, translateManagerError(err)
	}
	return op, nil
}

// ListOperations returns the stored runs, most recent first.
func (s *OperationService) ListOperations(ctx context.Context) []domain.Operation {
	return s.manager.ListOperations()
}

// Cancel stops a running operation.
func (s *OperationService) Cancel(ctx context.Context, id string) error {
	if err := s.manager.CancelOperation(id); err != nil {
		return translateManagerError(err)
	}
	s.logger.InfoContext(ctx, "run cancelled", slog.String("operation_id", id))
	return nil
}

// Active reports the currently executing run, if any.
func (s *OperationService) Active() (string, bool) {
	return s.manager.Active()
}

// Stop shuts down the run manager. In-flight runs are cancelled.
func (s *OperationService) Stop() {
	s.manager.Stop()
}

// applyDefaults fills the symbol from the fetch configuration so a
// bare request runs the configured instrument.
func (s *OperationService) applyDefaults(cfg *domain.OperationConfig) {
	if cfg.Symbol == "" {
		cfg.Symbol = s.defaultSymbol
	}
}

// runContext derives the execution context for a run: request values
// (trace, logger) carry over, request cancellation does not, and the
// configured operation timeout caps the whole run.
func (s *OperationService) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if s.runTimeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, s.runTimeout)
}

// awaitRun consumes the terminal result of an asynchronous run and
// announces the refreshed feature table on success.
func (s *OperationService) awaitRun(id string, done <-chan operations.RunResult) {
	res := <-done
	if res.Err != nil {
		s.logger.Error("run finished with error",
			slog.String("operation_id", id),
			slog.String("error", res.Err.Error()))
		return
	}
	s.announceFeatures(res.Operation)
}

// announceFeatures tells connected clients that a fresh feature table
// is available, with its dimensions taken from the features step.
func (s *OperationService) announceFeatures(op *domain.Operation) {
	if op == nil || op.Status != domain.OperationStatusCompleted || s.hub == nil {
		return
	}
	rows, columns := 0, 0
	for _, step := range op.Steps {
		if step.ID != domain.StepIDFeatures {
			continue
		}
		rows = metadataInt(step.Metadata, "rows")
		columns = metadataInt(step.Metadata, "columns")
		break
	}
	s.hub.BroadcastFeaturesUpdate(op.Symbol, rows, columns)

	s.logger.Info("feature table refreshed",
		slog.String("operation_id", op.ID),
		slog.String("symbol", op.Symbol),
		slog.Int("rows", rows),
		slog.Int("columns", columns))
}

// translateManagerError maps the run manager's sentinels onto the
// boundary sentinels the HTTP layer renders. Other errors pass through.
func translateManagerError(err error) error {
	switch {
	case errors.Is(err, operations.ErrRunActive):
		return apperrors.ErrOperationConflict
	case errors.Is(err, operations.ErrOperationNotFound):
		return apperrors.ErrOperationMissing
	case errors.Is(err, operations.ErrOperationNotRunning):
		return apperrors.ErrOperationNotRunning
	default:
		return err
	}
}

// metadataInt reads an integer out of step metadata, tolerating the
// numeric types a JSON round trip can produce.
func metadataInt(md map[string]interface{}, key string) int {
	if md == nil {
		return 0
	}
	switch v := md[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
