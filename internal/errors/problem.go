package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// Domain sentinel errors surfaced at the HTTP boundary
var (
	ErrOperationMissing    = errors.New("operation not found")
	ErrOperationConflict   = errors.New("operation already running")
	ErrOperationNotRunning = errors.New("operation not running")
	ErrFeaturesNotReady    = errors.New("feature table not ready")
	ErrNoBarData           = errors.New("no bar data available")
	ErrRateLimited         = errors.New("rate limited")
	ErrNetworkError        = errors.New("network error")
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// NewOperationConflictError creates a problem for a rejected concurrent operation
func NewOperationConflictError(runningID string, traceID string) *ProblemDetails {
	problem := NewProblemDetails(
		http.StatusConflict,
		TypeOperationRunning,
		"Operation Already Running",
		"Another operation is currently running. Wait for it to finish or cancel it first.",
		fmt.Sprintf("/api/operations#%s", traceID),
	)

	problem.WithExtension("error_type", "operation_conflict").
		WithExtension("trace_id", traceID)

	if runningID != "" {
		problem.WithExtension("running_operation_id", runningID)
	}

	return problem
}

// NewFeaturesNotReadyError creates a problem for a feature table that has not
// been derived yet
func NewFeaturesNotReadyError(symbol string, traceID string) *ProblemDetails {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeFeaturesNotReady,
		"Feature Table Not Ready",
		"No feature table has been derived yet. Run the pipeline first.",
		fmt.Sprintf("/api/features#%s", traceID),
	)

	problem.WithExtension("error_type", "features_not_ready").
		WithExtension("trace_id", traceID)

	if symbol != "" {
		problem.WithExtension("symbol", symbol)
	}

	return problem
}

// MapOperationError maps domain errors to HTTP problem details
func MapOperationError(err error, traceID string) render.Renderer {
	instance := fmt.Sprintf("/api/operations#trace-%s", traceID)

	// Check if it's an APIError from errors.go
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.ErrorCode == "OPERATION_NOT_FOUND" {
			return NewProblemDetails(
				http.StatusNotFound,
				TypeOperationNotFound,
				"Operation Not Found",
				"No operation with the given ID exists.",
				instance,
			).WithExtension("trace_id", traceID).
				WithExtension("error_code", "OPERATION_NOT_FOUND")
		}
	}

	switch {
	case errors.Is(err, ErrOperationMissing):
		return NewProblemDetails(
			http.StatusNotFound,
			TypeOperationNotFound,
			"Operation Not Found",
			"No operation with the given ID exists.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "OPERATION_NOT_FOUND")

	case errors.Is(err, ErrOperationConflict):
		return NewOperationConflictError("", traceID)

	case errors.Is(err, ErrOperationNotRunning):
		return NewProblemDetails(
			http.StatusConflict,
			TypeOperationNotRunning,
			"Operation Not Running",
			"The operation has already finished and cannot be cancelled.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "OPERATION_NOT_RUNNING")

	case errors.Is(err, ErrFeaturesNotReady):
		return NewFeaturesNotReadyError("", traceID)

	case errors.Is(err, ErrNoBarData):
		return NewProblemDetails(
			http.StatusUnprocessableEntity,
			TypeDataNotFound,
			"No Bar Data",
			"No daily bar data is available for this symbol. Fetch data first.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "NO_BAR_DATA")

	case errors.Is(err, ErrRateLimited):
		return NewProblemDetails(
			http.StatusTooManyRequests,
			TypeRateLimit,
			"Too Many Requests",
			"Too many requests. Please try again later.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "RATE_LIMITED").
			WithExtension("retry_after", 60)

	case errors.Is(err, ErrNetworkError):
		return NewProblemDetails(
			http.StatusServiceUnavailable,
			TypeServiceDown,
			"Network Error",
			"Unable to reach the upstream data source. Please check your connection.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "NETWORK_ERROR")

	default:
		return NewProblemDetails(
			http.StatusInternalServerError,
			TypeInternal,
			"Internal Server Error",
			"An unexpected error occurred while processing your request.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "INTERNAL_ERROR")
	}
}
