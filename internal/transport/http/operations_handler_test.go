package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apierrors "featcli/internal/errors"
	"featcli/internal/middleware"
	api "featcli/pkg/contracts/api/v1"
	"featcli/pkg/contracts/domain"
)

// MockOperationService is a mock implementation of OperationServiceInterface
type MockOperationService struct {
	mock.Mock
}

func (m *MockOperationService) Start(ctx context.Context, cfg domain.OperationConfig) (*domain.OperationResponse, error) {
	args := m.Called(ctx, cfg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OperationResponse), args.Error(1)
}

func (m *MockOperationService) GetOperation(ctx context.Context, id string) (domain.Operation, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(domain.Operation), args.Error(1)
}

func (m *MockOperationService) ListOperations(ctx context.Context) []domain.Operation {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.Operation)
}

func (m *MockOperationService) Cancel(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOperationService) Active() (string, bool) {
	args := m.Called()
	return args.String(0), args.Bool(1)
}

// Test helper to create an operations handler with a mocked service
func setupOperationsHandler(t *testing.T) (*OperationsHandler, *MockOperationService) {
	t.Helper()

	service := &MockOperationService{}
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
	validation := middleware.NewValidationMiddleware(logger, apierrors.NewErrorHandler(logger, false))
	handler := NewOperationsHandler(service, validation, logger)

	return handler, service
}

// Test helper to mount the handler the way the server does
func setupOperationsRouter(handler *OperationsHandler) chi.Router {
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer(logger))
	r.Mount("/api/operations", handler.Routes())

	return r
}

func TestNewOperationsHandler(t *testing.T) {
	t.Run("panics on nil service", func(t *testing.T) {
		assert.Panics(t, func() {
			NewOperationsHandler(nil, nil, slog.Default())
		})
	})

	t.Run("defaults logger when nil", func(t *testing.T) {
		handler := NewOperationsHandler(&MockOperationService{}, nil, nil)
		assert.NotNil(t, handler)
	})
}

func TestOperationsHandler_StartOperation(t *testing.T) {
	tests := []struct {
		name           string
		requestBody    interface{}
		setupMocks     func(*MockOperationService)
		expectedStatus int
		validateBody   func(*testing.T, map[string]interface{})
		startNotCalled bool
	}{
		{
			name:        "accepted run returns 202 with the websocket url",
			requestBody: api.OperationStartRequest{Symbol: "BTC-USD", Backend: "native"},
			setupMocks: func(s *MockOperationService) {
				s.On("Start", mock.Anything, mock.MatchedBy(func(cfg domain.OperationConfig) bool {
					return cfg.Symbol == "BTC-USD" && cfg.Backend == "native"
				})).Return(&domain.OperationResponse{
					OperationID:  "op-1",
					Status:       domain.OperationStatusPending,
					Message:      "run accepted",
					CreatedAt:    time.Now(),
					WebSocketURL: "/ws",
				}, nil)
			},
			expectedStatus: http.StatusAccepted,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "op-1", body["operation_id"])
				assert.Equal(t, string(domain.OperationStatusPending), body["status"])
				assert.Equal(t, "/ws", body["websocket_url"])
				assert.NotEmpty(t, body["created_at"])
			},
		},
		{
			name:        "symbol whitespace is trimmed before the service sees it",
			requestBody: map[string]interface{}{"symbol": "  eth-usd  "},
			setupMocks: func(s *MockOperationService) {
				s.On("Start", mock.Anything, mock.MatchedBy(func(cfg domain.OperationConfig) bool {
					return cfg.Symbol == "eth-usd"
				})).Return(&domain.OperationResponse{
					OperationID: "op-2",
					Status:      domain.OperationStatusPending,
					Message:     "run accepted",
					CreatedAt:   time.Now(),
				}, nil)
			},
			expectedStatus: http.StatusAccepted,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "op-2", body["operation_id"])
			},
		},
		{
			name:           "body that does not decode returns 400",
			requestBody:    map[string]interface{}{"symbol": 123},
			setupMocks:     func(s *MockOperationService) {},
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.TypeValidation, body["type"])
				assert.Equal(t, "Invalid Request Body", body["title"])
				assert.Equal(t, "test-request-id", body["trace_id"])
			},
			startNotCalled: true,
		},
		{
			name:           "missing symbol fails validation",
			requestBody:    api.OperationStartRequest{Backend: "native"},
			setupMocks:     func(s *MockOperationService) {},
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.TypeValidation, body["type"])
				assert.Equal(t, "Validation Failed", body["title"])

				raw, err := json.Marshal(body["errors"])
				require.NoError(t, err)
				assert.Contains(t, string(raw), "symbol is required")
			},
			startNotCalled: true,
		},
		{
			name:           "unknown backend fails validation",
			requestBody:    api.OperationStartRequest{Symbol: "BTC-USD", Backend: "pandas"},
			setupMocks:     func(s *MockOperationService) {},
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.TypeValidation, body["type"])

				raw, err := json.Marshal(body["errors"])
				require.NoError(t, err)
				assert.Contains(t, string(raw), "backend must be one of")
			},
			startNotCalled: true,
		},
		{
			name:           "malformed start date fails validation",
			requestBody:    api.OperationStartRequest{Symbol: "BTC-USD", StartDate: "01/06/2024"},
			setupMocks:     func(s *MockOperationService) {},
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.TypeValidation, body["type"])

				raw, err := json.Marshal(body["errors"])
				require.NoError(t, err)
				assert.Contains(t, string(raw), "start_date must be a date")
			},
			startNotCalled: true,
		},
		{
			name:           "window ending before it starts returns 400",
			requestBody:    api.OperationStartRequest{Symbol: "BTC-USD", StartDate: "2024-06-01", EndDate: "2024-01-01"},
			setupMocks:     func(s *MockOperationService) {},
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.TypeValidation, body["type"])
				assert.Equal(t, "Invalid Request Body", body["title"])
				assert.Contains(t, body["detail"], "before start_date")
			},
			startNotCalled: true,
		},
		{
			name:        "second run is rejected with the running id",
			requestBody: api.OperationStartRequest{Symbol: "BTC-USD"},
			setupMocks: func(s *MockOperationService) {
				s.On("Start", mock.Anything, mock.Anything).
					Return(nil, fmt.Errorf("accept run: %w", apierrors.ErrOperationConflict))
				s.On("Active").Return("op-busy", true)
			},
			expectedStatus: http.StatusConflict,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.TypeOperationRunning, body["type"])
				assert.Equal(t, "op-busy", body["running_operation_id"])
				assert.Equal(t, "test-request-id", body["trace_id"])
			},
		},
		{
			name:        "unexpected service failure maps to 500",
			requestBody: api.OperationStartRequest{Symbol: "BTC-USD"},
			setupMocks: func(s *MockOperationService) {
				s.On("Start", mock.Anything, mock.Anything).
					Return(nil, errors.New("manager exploded"))
			},
			expectedStatus: http.StatusInternalServerError,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.TypeInternal, body["type"])
				assert.Equal(t, "INTERNAL_ERROR", body["error_code"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, service := setupOperationsHandler(t)
			router := setupOperationsRouter(handler)

			if tt.setupMocks != nil {
				tt.setupMocks(service)
			}

			body, err := json.Marshal(tt.requestBody)
			require.NoError(t, err)

			req := httptest.NewRequest("POST", "/api/operations", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Request-ID", "test-request-id")

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var responseBody map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &responseBody))

			if tt.validateBody != nil {
				tt.validateBody(t, responseBody)
			}

			if tt.startNotCalled {
				service.AssertNotCalled(t, "Start")
			}
			service.AssertExpectations(t)
		})
	}
}

func TestOperationsHandler_GetOperation(t *testing.T) {
	tests := []struct {
		name           string
		operationID    string
		setupMocks     func(*MockOperationService)
		expectedStatus int
		validateBody   func(*testing.T, map[string]interface{})
	}{
		{
			name:        "returns the operation snapshot",
			operationID: "op-123",
			setupMocks: func(s *MockOperationService) {
				started := time.Now().Add(-time.Minute)
				op := domain.Operation{
					ID:     "op-123",
					Symbol: "BTC-USD",
					Status: domain.OperationStatusRunning,
					Config: domain.OperationConfig{Symbol: "BTC-USD", Backend: "native"},
					Steps: []domain.StepSummary{
						{ID: domain.StepIDFetch, Name: domain.StepNameFetch, Status: domain.StepStatusCompleted, Progress: 100},
						{ID: domain.StepIDClean, Name: domain.StepNameClean, Status: domain.StepStatusRunning, Progress: 40},
					},
					CreatedAt: time.Now().Add(-2 * time.Minute),
					StartedAt: &started,
				}
				s.On("GetOperation", mock.Anything, "op-123").Return(op, nil)
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "op-123", body["id"])
				assert.Equal(t, string(domain.OperationStatusRunning), body["status"])

				steps, ok := body["steps"].([]interface{})
				require.True(t, ok, "expected steps array")
				assert.Len(t, steps, 2)
			},
		},
		{
			name:        "unknown operation returns 404 problem",
			operationID: "ghost",
			setupMocks: func(s *MockOperationService) {
				s.On("GetOperation", mock.Anything, "ghost").
					Return(domain.Operation{}, fmt.Errorf("lookup %q: %w", "ghost", apierrors.ErrOperationMissing))
			},
			expectedStatus: http.StatusNotFound,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.TypeOperationNotFound, body["type"])
				assert.Equal(t, "OPERATION_NOT_FOUND", body["error_code"])
			},
		},
		{
			name:        "lookup failure maps to 500",
			operationID: "op-123",
			setupMocks: func(s *MockOperationService) {
				s.On("GetOperation", mock.Anything, "op-123").
					Return(domain.Operation{}, errors.New("state corrupted"))
			},
			expectedStatus: http.StatusInternalServerError,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.TypeInternal, body["type"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, service := setupOperationsHandler(t)
			router := setupOperationsRouter(handler)

			if tt.setupMocks != nil {
				tt.setupMocks(service)
			}

			req := httptest.NewRequest("GET", fmt.Sprintf("/api/operations/%s", tt.operationID), nil)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var responseBody map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &responseBody))

			if tt.validateBody != nil {
				tt.validateBody(t, responseBody)
			}

			service.AssertExpectations(t)
		})
	}
}

func TestOperationsHandler_ListOperations(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		setupMocks     func(*MockOperationService)
		expectedStatus int
		validateBody   func(*testing.T, map[string]interface{})
		listNotCalled  bool
	}{
		{
			name: "lists all stored operations",
			setupMocks: func(s *MockOperationService) {
				s.On("ListOperations", mock.Anything).Return([]domain.Operation{
					{ID: "op-3", Symbol: "BTC-USD", Status: domain.OperationStatusRunning},
					{ID: "op-2", Symbol: "BTC-USD", Status: domain.OperationStatusCompleted},
					{ID: "op-1", Symbol: "ETH-USD", Status: domain.OperationStatusFailed},
				})
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.EqualValues(t, 3, body["count"])

				ops, ok := body["operations"].([]interface{})
				require.True(t, ok, "expected operations array")
				assert.Len(t, ops, 3)
			},
		},
		{
			name:  "filters by status",
			query: "?status=completed",
			setupMocks: func(s *MockOperationService) {
				s.On("ListOperations", mock.Anything).Return([]domain.Operation{
					{ID: "op-3", Status: domain.OperationStatusRunning},
					{ID: "op-2", Status: domain.OperationStatusCompleted},
					{ID: "op-1", Status: domain.OperationStatusFailed},
				})
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.EqualValues(t, 1, body["count"])

				ops, ok := body["operations"].([]interface{})
				require.True(t, ok, "expected operations array")
				require.Len(t, ops, 1)

				op := ops[0].(map[string]interface{})
				assert.Equal(t, "op-2", op["id"])
				assert.Equal(t, string(domain.OperationStatusCompleted), op["status"])
			},
		},
		{
			name:           "unknown status filter is rejected",
			query:          "?status=archived",
			setupMocks:     func(s *MockOperationService) {},
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.TypeValidation, body["type"])
				assert.Equal(t, "Invalid Status Filter", body["title"])

				valid, ok := body["valid_statuses"].([]interface{})
				require.True(t, ok, "expected valid_statuses extension")
				assert.Contains(t, valid, "running")
			},
			listNotCalled: true,
		},
		{
			name: "empty store renders a zero count",
			setupMocks: func(s *MockOperationService) {
				s.On("ListOperations", mock.Anything).Return([]domain.Operation{})
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.EqualValues(t, 0, body["count"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, service := setupOperationsHandler(t)
			router := setupOperationsRouter(handler)

			if tt.setupMocks != nil {
				tt.setupMocks(service)
			}

			req := httptest.NewRequest("GET", "/api/operations"+tt.query, nil)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var responseBody map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &responseBody))

			if tt.validateBody != nil {
				tt.validateBody(t, responseBody)
			}

			if tt.listNotCalled {
				service.AssertNotCalled(t, "ListOperations")
			}
			service.AssertExpectations(t)
		})
	}
}

func TestOperationsHandler_CancelOperation(t *testing.T) {
	tests := []struct {
		name           string
		operationID    string
		setupMocks     func(*MockOperationService)
		expectedStatus int
		validateBody   func(*testing.T, map[string]interface{})
	}{
		{
			name:        "cancels a running operation",
			operationID: "op-123",
			setupMocks: func(s *MockOperationService) {
				s.On("Cancel", mock.Anything, "op-123").Return(nil)
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, "op-123", body["operation_id"])
				assert.Equal(t, "operation cancelled", body["message"])
			},
		},
		{
			name:        "unknown operation returns 404",
			operationID: "ghost",
			setupMocks: func(s *MockOperationService) {
				s.On("Cancel", mock.Anything, "ghost").
					Return(fmt.Errorf("cancel %q: %w", "ghost", apierrors.ErrOperationMissing))
			},
			expectedStatus: http.StatusNotFound,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.TypeOperationNotFound, body["type"])
			},
		},
		{
			name:        "finished operation cannot be cancelled",
			operationID: "op-done",
			setupMocks: func(s *MockOperationService) {
				s.On("Cancel", mock.Anything, "op-done").
					Return(fmt.Errorf("cancel %q: %w", "op-done", apierrors.ErrOperationNotRunning))
			},
			expectedStatus: http.StatusConflict,
			validateBody: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, apierrors.TypeOperationNotRunning, body["type"])
				assert.Equal(t, "OPERATION_NOT_RUNNING", body["error_code"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, service := setupOperationsHandler(t)
			router := setupOperationsRouter(handler)

			if tt.setupMocks != nil {
				tt.setupMocks(service)
			}

			req := httptest.NewRequest("DELETE", fmt.Sprintf("/api/operations/%s", tt.operationID), nil)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var responseBody map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &responseBody))

			if tt.validateBody != nil {
				tt.validateBody(t, responseBody)
			}

			service.AssertExpectations(t)
		})
	}
}
