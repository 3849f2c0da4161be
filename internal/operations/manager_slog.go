package operations

import (
	"context"
	"log/slog"
	"time"

	"featcli/pkg/contracts/domain"
)

// logOperationStart logs the start of a run
func (m *Manager) logOperationStart(ctx context.Context, operationID string, cfg domain.OperationConfig, stepCount int) {
	slog.InfoContext(ctx, "operation_start",
		slog.String("operation_id", operationID),
		slog.String("symbol", cfg.Symbol),
		slog.String("start_date", cfg.StartDate),
		slog.String("end_date", cfg.EndDate),
		slog.String("backend", cfg.Backend),
		slog.Bool("skip_fetch", cfg.SkipFetch),
		slog.Int("step_count", stepCount))
}

// logOperationComplete logs the completion of a run
func (m *Manager) logOperationComplete(ctx context.Context, operationID string, duration time.Duration) {
	slog.InfoContext(ctx, "operation_complete",
		slog.String("operation_id", operationID),
		slog.Duration("duration", duration))
}

// logOperationError logs a run error
func (m *Manager) logOperationError(ctx context.Context, operationID string, duration time.Duration, err error) {
	errorMsg := "unknown error"
	if err != nil {
		errorMsg = err.Error()
	}
	slog.ErrorContext(ctx, "operation_error",
		slog.String("operation_id", operationID),
		slog.Duration("duration", duration),
		slog.String("error", errorMsg))
}

// logStepStart logs the start of a step execution
func (m *Manager) logStepStart(ctx context.Context, operationID, stepID string) {
	slog.InfoContext(ctx, "step_start",
		slog.String("operation_id", operationID),
		slog.String("step", stepID))
}

// logStepComplete logs the completion of a step execution
func (m *Manager) logStepComplete(ctx context.Context, operationID, stepID string, duration time.Duration) {
	slog.InfoContext(ctx, "step_complete",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.Duration("duration", duration))
}

// logStepError logs a step error
func (m *Manager) logStepError(ctx context.Context, operationID, stepID string, duration time.Duration, err error) {
	errorMsg := "unknown error"
	if err != nil {
		errorMsg = err.Error()
	}
	slog.ErrorContext(ctx, "step_error",
		slog.String("operation_id", operationID),
		slog.String("step", stepID),
		slog.Duration("duration", duration),
		slog.String("error", errorMsg))
}
