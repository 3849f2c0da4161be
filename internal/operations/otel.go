package operations

import (
	"context"
	"fmt"
	"time"

	"featcli/internal/features"
	"featcli/internal/infrastructure"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	TracerName = "featcli.operations"

	// operationType tags every pipeline run metric
	operationType = "pipeline"
)

// OperationTracer provides OpenTelemetry instrumentation for run execution
type OperationTracer struct {
	tracer          trace.Tracer
	businessMetrics *infrastructure.BusinessMetrics
}

// NewOperationTracer creates a new run tracer
func NewOperationTracer(providers *infrastructure.OTelProviders) (*OperationTracer, error) {
	businessMetrics, err := infrastructure.CreateBusinessMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	return &OperationTracer{
		tracer:          otel.Tracer(TracerName),
		businessMetrics: businessMetrics,
	}, nil
}

// TraceOperationExecution creates a span covering an entire run
func (t *OperationTracer) TraceOperationExecution(ctx context.Context, operationID, symbol string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "operation.execute",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("operation.symbol", symbol),
		),
	)

	infrastructure.RecordActiveOperationChange(ctx, t.businessMetrics, 1, operationType)

	return ctx, span
}

// TraceStepExecution creates a span for a single step execution
func (t *OperationTracer) TraceStepExecution(ctx context.Context, operationID, stepID string) (context.Context, trace.Span) {
	spanName := fmt.Sprintf("operation.step.%s", stepID)
	return t.tracer.Start(ctx, spanName,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("step.id", stepID),
		),
	)
}

// RecordOperationCompletion records a terminal run outcome on span and
// metrics, and releases the active-run gauge.
func (t *OperationTracer) RecordOperationCompletion(ctx context.Context, span trace.Span, operationID string, duration time.Duration, err error) {
	success := err == nil
	status := "success"
	if !success {
		status = "failure"
	}

	span.SetAttributes(
		attribute.String("operation.status", status),
		attribute.Float64("operation.duration_seconds", duration.Seconds()),
	)

	infrastructure.RecordOperationMetrics(ctx, t.businessMetrics, operationID, operationType, duration, success, err)
	infrastructure.RecordActiveOperationChange(ctx, t.businessMetrics, -1, operationType)

	infrastructure.AddSpanEvent(ctx, "operation.completed", map[string]interface{}{
		"operation_id": operationID,
		"status":       status,
		"duration":     duration.Seconds(),
	})

	if success {
		span.SetStatus(codes.Ok, "operation completed successfully")
	} else {
		span.SetStatus(codes.Error, fmt.Sprintf("operation failed: %v", err))
	}
}

// RecordOperationCancellation records a cancelled run and releases the
// active-run gauge.
func (t *OperationTracer) RecordOperationCancellation(ctx context.Context, span trace.Span, operationID, reason string) {
	infrastructure.RecordOperationCancellation(ctx, t.businessMetrics, operationID, operationType, reason)
	infrastructure.RecordActiveOperationChange(ctx, t.businessMetrics, -1, operationType)

	span.SetAttributes(attribute.String("operation.status", "cancelled"))
	span.SetStatus(codes.Error, "operation cancelled")
}

// RecordStepCompletion records a step outcome on span and metrics
func (t *OperationTracer) RecordStepCompletion(ctx context.Context, span trace.Span, operationID, stepID string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}

	span.SetAttributes(
		attribute.String("step.status", status),
		attribute.Float64("step.duration_seconds", duration.Seconds()),
	)

	infrastructure.RecordOperationStepMetrics(ctx, t.businessMetrics, operationID, stepID, duration, success)

	if success {
		span.SetStatus(codes.Ok, "step completed successfully")
	} else {
		span.SetStatus(codes.Error, "step execution failed")
	}
}

// RecordStepError attaches a step error to the active span
func (t *OperationTracer) RecordStepError(ctx context.Context, operationID, stepID string, err error) {
	infrastructure.RecordError(ctx, err,
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("step.id", stepID),
			attribute.String("error.type", string(GetErrorType(err))),
		),
	)
}

// RecordOperationError attaches a run error to the active span
func (t *OperationTracer) RecordOperationError(ctx context.Context, operationID string, err error) {
	infrastructure.RecordError(ctx, err,
		trace.WithAttributes(
			attribute.String("operation.id", operationID),
			attribute.String("error.type", string(GetErrorType(err))),
		),
	)
}

// RecordIndicatorComputation records one indicator job outcome
func (t *OperationTracer) RecordIndicatorComputation(ctx context.Context, indicator, backend string, elapsed time.Duration, err error) {
	infrastructure.RecordIndicatorMetrics(ctx, t.businessMetrics, indicator, backend, elapsed, err == nil)
}

// RecordDerivation records the shape of a finished feature derivation:
// row accounting and any backend substitutions.
func (t *OperationTracer) RecordDerivation(ctx context.Context, diag *features.Diagnostics) {
	if diag == nil {
		return
	}
	infrastructure.RecordTableMetrics(ctx, t.businessMetrics, diag.Symbol,
		diag.RowsExamined, diag.RowsEmitted, diag.RowsDropped)
	for _, fb := range diag.Fallbacks {
		infrastructure.RecordBackendFallback(ctx, t.businessMetrics, fb.From, fb.To, fb.Reason)
	}
}

// RecordFetchRequest records one upstream candles request attempt
func (t *OperationTracer) RecordFetchRequest(ctx context.Context, symbol string, statusCode int, retried bool) {
	infrastructure.RecordFetchRequest(ctx, t.businessMetrics, symbol, statusCode, retried)
}

var globalOperationTracer *OperationTracer

// InitGlobalOperationTracer initializes the global run tracer
func InitGlobalOperationTracer(providers *infrastructure.OTelProviders) error {
	tracer, err := NewOperationTracer(providers)
	if err != nil {
		return err
	}
	globalOperationTracer = tracer
	return nil
}

// GetOperationTracer returns the global run tracer
func GetOperationTracer() *OperationTracer {
	return globalOperationTracer
}
