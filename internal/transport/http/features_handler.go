package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "featcli/internal/errors"
	"featcli/internal/infrastructure"
	"featcli/internal/middleware"
)

const maxFeaturePage = 1000000

// FeaturesHandler serves the derived feature table over HTTP. It reads
// the exported artifacts through the feature data service, so responses
// always agree with the files a client could download.
type FeaturesHandler struct {
	service FeatureServiceInterface
	query   *middleware.QueryParamValidator
	logger  *slog.Logger
}

// NewFeaturesHandler creates a new features handler
func NewFeaturesHandler(service FeatureServiceInterface, query *middleware.QueryParamValidator, logger *slog.Logger) *FeaturesHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &FeaturesHandler{
		service: service,
		query:   query,
		logger:  logger.With(slog.String("handler", "features")),
	}
}

// Routes returns the feature routes
func (h *FeaturesHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", h.GetFeatures)
	r.Get("/columns", h.GetColumns)
	r.Get("/diagnostics", h.GetDiagnostics)

	return r
}

// GetFeatures handles GET /api/features with page/page_size/symbol query
// parameters.
func (h *FeaturesHandler) GetFeatures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetRequestID(ctx)

	page, ok := h.query.ValidateInt(w, r, "page", 1, maxFeaturePage, 1)
	if !ok {
		return
	}
	pageSize, ok := h.query.ValidateInt(w, r, "page_size", 1, 1000, 100)
	if !ok {
		return
	}
	symbol := r.URL.Query().Get("symbol")

	h.logger.DebugContext(ctx, "feature page request",
		slog.String("symbol", symbol),
		slog.Int("page", page),
		slog.Int("page_size", pageSize),
		slog.String("request_id", reqID))

	result, err := h.service.GetFeatures(ctx, symbol, page, pageSize)
	if err != nil {
		h.handleFeatureError(w, r, err, symbol)
		return
	}

	render.JSON(w, r, result)
}

// GetColumns handles GET /api/features/columns
func (h *FeaturesHandler) GetColumns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	symbol := r.URL.Query().Get("symbol")

	h.logger.DebugContext(ctx, "feature columns request",
		slog.String("symbol", symbol),
		slog.String("request_id", middleware.GetRequestID(ctx)))

	columns, err := h.service.GetColumns(ctx, symbol)
	if err != nil {
		h.handleFeatureError(w, r, err, symbol)
		return
	}

	render.JSON(w, r, columns)
}

// GetDiagnostics handles GET /api/features/diagnostics
func (h *FeaturesHandler) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	symbol := r.URL.Query().Get("symbol")

	h.logger.DebugContext(ctx, "feature diagnostics request",
		slog.String("symbol", symbol),
		slog.String("request_id", middleware.GetRequestID(ctx)))

	diag, err := h.service.GetDiagnostics(ctx, symbol)
	if err != nil {
		h.handleFeatureError(w, r, err, symbol)
		return
	}

	render.JSON(w, r, diag)
}

// handleFeatureError renders service errors as RFC 7807 problems. The
// not-ready case carries the symbol so clients know which table to
// derive.
func (h *FeaturesHandler) handleFeatureError(w http.ResponseWriter, r *http.Request, err error, symbol string) {
	ctx := r.Context()
	traceID := infrastructure.GetTraceID(ctx)

	h.logger.WarnContext(ctx, "feature request failed",
		slog.String("symbol", symbol),
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.GetRequestID(ctx)))

	if errors.Is(err, apierrors.ErrFeaturesNotReady) {
		render.Render(w, r, apierrors.NewFeaturesNotReadyError(symbol, traceID))
		return
	}

	render.Render(w, r, apierrors.MapOperationError(err, traceID))
}
