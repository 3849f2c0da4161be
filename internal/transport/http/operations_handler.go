package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apierrors "featcli/internal/errors"
	"featcli/internal/infrastructure"
	"featcli/internal/middleware"
	api "featcli/pkg/contracts/api/v1"
	"featcli/pkg/contracts/domain"
)

// OperationsHandler handles pipeline run HTTP requests
type OperationsHandler struct {
	service    OperationServiceInterface
	validation *middleware.ValidationMiddleware
	logger     *slog.Logger
}

// NewOperationsHandler creates a new operations handler
func NewOperationsHandler(service OperationServiceInterface, validation *middleware.ValidationMiddleware, logger *slog.Logger) *OperationsHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &OperationsHandler{
		service:    service,
		validation: validation,
		logger:     logger.With(slog.String("handler", "operations")),
	}
}

// StartOperationRequest carries the POST /api/operations body. It wraps
// the v1 contract so the handler can bind and validate it with render.
type StartOperationRequest struct {
	api.OperationStartRequest
}

// Bind implements render.Binder. Field validation runs against the
// contract's tags after binding; Bind normalizes and checks the one
// cross-field rule the tags cannot express.
func (req *StartOperationRequest) Bind(*http.Request) error {
	req.Symbol = strings.TrimSpace(req.Symbol)

	// ISO dates order lexicographically
	if req.StartDate != "" && req.EndDate != "" && req.EndDate < req.StartDate {
		return fmt.Errorf("end_date %s is before start_date %s", req.EndDate, req.StartDate)
	}
	return nil
}

// Routes returns a chi router for operation endpoints
func (h *OperationsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	// Run acceptance and queries are quick; execution itself runs on a
	// detached context and is not bounded by this timeout.
	r.Use(middleware.Timeout(30*time.Second, h.logger))

	r.Post("/", h.StartOperation)
	r.Get("/", h.ListOperations)
	r.Get("/{id}", h.GetOperation)
	r.Delete("/{id}", h.CancelOperation)

	return r
}

// StartOperation handles POST /api/operations. It accepts the run,
// registers it, and returns 202 with the operation id; progress streams
// over /ws.
func (h *OperationsHandler) StartOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	traceID := infrastructure.GetTraceID(ctx)
	tracer := otel.Tracer("operations-handler")

	ctx, span := tracer.Start(ctx, "operations_handler.start_operation",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/operations"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	data := &StartOperationRequest{}
	if err := render.Bind(r, data); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "request_binding"))

		h.logger.ErrorContext(ctx, "failed to bind run request",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))

		problem := apierrors.NewProblemDetails(
			http.StatusBadRequest,
			apierrors.TypeValidation,
			"Invalid Request Body",
			err.Error(),
			r.URL.Path+"#"+reqID,
		).WithExtension("trace_id", traceID)

		render.Render(w, r, problem)
		return
	}

	if err := h.validation.ValidateStruct(data); err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("error.type", "request_validation"))

		h.logger.WarnContext(ctx, "run request failed validation",
			slog.String("error", err.Error()),
			slog.String("symbol", data.Symbol),
			slog.String("request_id", reqID))

		h.renderValidationProblem(w, r, err, traceID)
		return
	}

	span.SetAttributes(
		attribute.String("operation.symbol", data.Symbol),
		attribute.String("operation.backend", data.Backend),
		attribute.Bool("operation.skip_fetch", data.SkipFetch),
	)

	h.logger.InfoContext(ctx, "run start requested",
		slog.String("symbol", data.Symbol),
		slog.String("backend", data.Backend),
		slog.Bool("skip_fetch", data.SkipFetch),
		slog.String("request_id", reqID),
		slog.String("trace_id", traceID))

	ack, err := h.service.Start(ctx, data.ToConfig())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "run not accepted")

		h.logger.ErrorContext(ctx, "run not accepted",
			slog.String("symbol", data.Symbol),
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))

		// A rejected start because another run holds the gate includes
		// the running id so clients can watch or cancel it.
		if errors.Is(err, apierrors.ErrOperationConflict) {
			runningID, _ := h.service.Active()
			render.Render(w, r, apierrors.NewOperationConflictError(runningID, traceID))
			return
		}

		render.Render(w, r, apierrors.MapOperationError(err, traceID))
		return
	}

	span.SetAttributes(attribute.String("operation.id", ack.OperationID))

	h.logger.InfoContext(ctx, "run accepted",
		slog.String("operation_id", ack.OperationID),
		slog.String("symbol", data.Symbol),
		slog.String("request_id", reqID))

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, ack)
}

// GetOperation handles GET /api/operations/{id}
func (h *OperationsHandler) GetOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operationID := chi.URLParam(r, "id")
	reqID := middleware.GetRequestID(ctx)
	traceID := infrastructure.GetTraceID(ctx)
	tracer := otel.Tracer("operations-handler")

	ctx, span := tracer.Start(ctx, "operations_handler.get_operation",
		trace.WithAttributes(
			attribute.String("http.route", "/api/operations/{id}"),
			attribute.String("operation.id", operationID),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	h.logger.DebugContext(ctx, "operation state request",
		slog.String("operation_id", operationID),
		slog.String("request_id", reqID))

	op, err := h.service.GetOperation(ctx, operationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation lookup failed")

		h.logger.WarnContext(ctx, "operation lookup failed",
			slog.String("operation_id", operationID),
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))

		render.Render(w, r, apierrors.MapOperationError(err, traceID))
		return
	}

	span.SetAttributes(
		attribute.String("operation.status", string(op.Status)),
		attribute.Int("operation.steps_count", len(op.Steps)),
	)

	render.JSON(w, r, op)
}

// ListOperations handles GET /api/operations. The list is most recent
// first; an optional status query narrows it.
func (h *OperationsHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)
	traceID := infrastructure.GetTraceID(ctx)
	tracer := otel.Tracer("operations-handler")

	ctx, span := tracer.Start(ctx, "operations_handler.list_operations",
		trace.WithAttributes(
			attribute.String("http.route", "/api/operations"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" {
		validStatuses := map[string]domain.OperationStatus{
			"pending":   domain.OperationStatusPending,
			"running":   domain.OperationStatusRunning,
			"completed": domain.OperationStatusCompleted,
			"failed":    domain.OperationStatusFailed,
			"cancelled": domain.OperationStatusCancelled,
		}

		if _, ok := validStatuses[statusFilter]; !ok {
			problem := apierrors.NewProblemDetails(
				http.StatusBadRequest,
				apierrors.TypeValidation,
				"Invalid Status Filter",
				"Unknown status: "+statusFilter,
				r.URL.Path+"#"+reqID,
			).WithExtension("trace_id", traceID).
				WithExtension("valid_statuses", []string{"pending", "running", "completed", "failed", "cancelled"})

			render.Render(w, r, problem)
			return
		}
		span.SetAttributes(attribute.String("filter.status", statusFilter))
	}

	h.logger.DebugContext(ctx, "listing operations",
		slog.String("status_filter", statusFilter),
		slog.String("request_id", reqID))

	ops := h.service.ListOperations(ctx)
	if statusFilter != "" {
		filtered := ops[:0]
		for _, op := range ops {
			if string(op.Status) == statusFilter {
				filtered = append(filtered, op)
			}
		}
		ops = filtered
	}

	span.SetAttributes(attribute.Int("operations.count", len(ops)))

	render.JSON(w, r, map[string]interface{}{
		"operations": ops,
		"count":      len(ops),
	})
}

// CancelOperation handles DELETE /api/operations/{id}
func (h *OperationsHandler) CancelOperation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operationID := chi.URLParam(r, "id")
	reqID := middleware.GetRequestID(ctx)
	traceID := infrastructure.GetTraceID(ctx)
	tracer := otel.Tracer("operations-handler")

	ctx, span := tracer.Start(ctx, "operations_handler.cancel_operation",
		trace.WithAttributes(
			attribute.String("http.route", "/api/operations/{id}"),
			attribute.String("operation.id", operationID),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	h.logger.InfoContext(ctx, "operation cancel request",
		slog.String("operation_id", operationID),
		slog.String("request_id", reqID),
		slog.String("trace_id", traceID))

	if err := h.service.Cancel(ctx, operationID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation cancellation failed")

		h.logger.WarnContext(ctx, "operation cancellation failed",
			slog.String("operation_id", operationID),
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))

		render.Render(w, r, apierrors.MapOperationError(err, traceID))
		return
	}

	h.logger.InfoContext(ctx, "operation cancelled",
		slog.String("operation_id", operationID),
		slog.String("request_id", reqID))

	render.JSON(w, r, map[string]string{
		"operation_id": operationID,
		"message":      "operation cancelled",
	})
}

// renderValidationProblem renders a struct-validation failure as an RFC
// 7807 problem carrying the per-field errors.
func (h *OperationsHandler) renderValidationProblem(w http.ResponseWriter, r *http.Request, err error, traceID string) {
	problem := apierrors.NewProblemDetails(
		http.StatusBadRequest,
		apierrors.TypeValidation,
		"Validation Failed",
		"One or more request fields are invalid.",
		r.URL.Path+"#"+middleware.GetRequestID(r.Context()),
	).WithExtension("trace_id", traceID)

	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) && apiErr.Details != nil {
		problem.WithExtension("errors", apiErr.Details)
	} else {
		problem.Detail = err.Error()
	}

	render.Render(w, r, problem)
}
