package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblemDetails_MarshalJSON(t *testing.T) {
	t.Run("marshal with all fields and extensions", func(t *testing.T) {
		problem := NewProblemDetails(
			http.StatusConflict,
			TypeOperationRunning,
			"Operation Already Running",
			"Another operation is currently running.",
			"/api/operations",
		).WithExtension("trace_id", "trace-123").
			WithExtension("running_operation_id", "op-456")

		data, err := json.Marshal(problem)
		require.NoError(t, err)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &body))

		assert.Equal(t, TypeOperationRunning, body["type"])
		assert.Equal(t, "Operation Already Running", body["title"])
		assert.EqualValues(t, http.StatusConflict, body["status"])
		assert.Equal(t, "Another operation is currently running.", body["detail"])
		assert.Equal(t, "/api/operations", body["instance"])

		// Extensions are flattened into the top-level object
		assert.Equal(t, "trace-123", body["trace_id"])
		assert.Equal(t, "op-456", body["running_operation_id"])
	})

	t.Run("marshal omits empty detail and instance", func(t *testing.T) {
		problem := NewProblemDetails(http.StatusInternalServerError, TypeInternal, "Internal Server Error", "", "")

		data, err := json.Marshal(problem)
		require.NoError(t, err)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &body))

		assert.NotContains(t, body, "detail")
		assert.NotContains(t, body, "instance")
	})
}

func TestProblemDetails_Render(t *testing.T) {
	t.Run("render writes status and JSON body", func(t *testing.T) {
		problem := NewProblemDetails(
			http.StatusNotFound,
			TypeFeaturesNotReady,
			"Feature Table Not Ready",
			"No feature table has been derived yet.",
			"/api/features",
		)

		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/features", nil)

		err := render.Render(w, r, problem)
		require.NoError(t, err)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.Equal(t, TypeFeaturesNotReady, body["type"])
	})
}

func TestNewOperationConflictError(t *testing.T) {
	t.Run("with running operation id", func(t *testing.T) {
		problem := NewOperationConflictError("op-789", "trace-abc")

		assert.Equal(t, http.StatusConflict, problem.Status)
		assert.Equal(t, TypeOperationRunning, problem.Type)
		assert.Equal(t, "Operation Already Running", problem.Title)
		assert.Equal(t, "operation_conflict", problem.Extensions["error_type"])
		assert.Equal(t, "trace-abc", problem.Extensions["trace_id"])
		assert.Equal(t, "op-789", problem.Extensions["running_operation_id"])
	})

	t.Run("without running operation id", func(t *testing.T) {
		problem := NewOperationConflictError("", "trace-abc")

		assert.Equal(t, http.StatusConflict, problem.Status)
		assert.NotContains(t, problem.Extensions, "running_operation_id")
	})
}

func TestNewFeaturesNotReadyError(t *testing.T) {
	t.Run("with symbol", func(t *testing.T) {
		problem := NewFeaturesNotReadyError("BTC-USD", "trace-abc")

		assert.Equal(t, http.StatusNotFound, problem.Status)
		assert.Equal(t, TypeFeaturesNotReady, problem.Type)
		assert.Equal(t, "Feature Table Not Ready", problem.Title)
		assert.Equal(t, "features_not_ready", problem.Extensions["error_type"])
		assert.Equal(t, "trace-abc", problem.Extensions["trace_id"])
		assert.Equal(t, "BTC-USD", problem.Extensions["symbol"])
	})

	t.Run("without symbol", func(t *testing.T) {
		problem := NewFeaturesNotReadyError("", "trace-abc")

		assert.NotContains(t, problem.Extensions, "symbol")
	})
}

func TestMapOperationError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantStatus   int
		wantType     string
		wantCode     string
		wantRetryKey bool
	}{
		{
			name:       "operation not found APIError",
			err:        OperationNotFoundError("op-123"),
			wantStatus: http.StatusNotFound,
			wantType:   TypeOperationNotFound,
			wantCode:   "OPERATION_NOT_FOUND",
		},
		{
			name:       "operation missing sentinel",
			err:        ErrOperationMissing,
			wantStatus: http.StatusNotFound,
			wantType:   TypeOperationNotFound,
			wantCode:   "OPERATION_NOT_FOUND",
		},
		{
			name:       "wrapped operation missing sentinel",
			err:        fmt.Errorf("lookup %q: %w", "op-1", ErrOperationMissing),
			wantStatus: http.StatusNotFound,
			wantType:   TypeOperationNotFound,
			wantCode:   "OPERATION_NOT_FOUND",
		},
		{
			name:       "operation conflict sentinel",
			err:        ErrOperationConflict,
			wantStatus: http.StatusConflict,
			wantType:   TypeOperationRunning,
		},
		{
			name:       "features not ready sentinel",
			err:        ErrFeaturesNotReady,
			wantStatus: http.StatusNotFound,
			wantType:   TypeFeaturesNotReady,
		},
		{
			name:       "no bar data sentinel",
			err:        ErrNoBarData,
			wantStatus: http.StatusUnprocessableEntity,
			wantType:   TypeDataNotFound,
			wantCode:   "NO_BAR_DATA",
		},
		{
			name:         "rate limited sentinel",
			err:          ErrRateLimited,
			wantStatus:   http.StatusTooManyRequests,
			wantType:     TypeRateLimit,
			wantCode:     "RATE_LIMITED",
			wantRetryKey: true,
		},
		{
			name:       "network error sentinel",
			err:        ErrNetworkError,
			wantStatus: http.StatusServiceUnavailable,
			wantType:   TypeServiceDown,
			wantCode:   "NETWORK_ERROR",
		},
		{
			name:       "unknown error",
			err:        fmt.Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
			wantType:   TypeInternal,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renderer := MapOperationError(tt.err, "trace-xyz")
			require.NotNil(t, renderer)

			problem, ok := renderer.(*ProblemDetails)
			require.True(t, ok, "expected *ProblemDetails, got %T", renderer)

			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, tt.wantType, problem.Type)
			assert.Equal(t, "trace-xyz", problem.Extensions["trace_id"])

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, problem.Extensions["error_code"])
			}

			if tt.wantRetryKey {
				assert.Equal(t, 60, problem.Extensions["retry_after"])
			}
		})
	}
}
