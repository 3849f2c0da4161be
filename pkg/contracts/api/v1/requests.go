// Package api contains API contract definitions for the featcli service.
// Version v1 represents the current stable API version.
package api

import (
	"featcli/pkg/contracts/domain"
)

// Common request parameters

// PaginationRequest represents common pagination parameters
type PaginationRequest struct {
	Page     int    `json:"page" query:"page" validate:"min=1"`
	PageSize int    `json:"page_size" query:"page_size" validate:"min=1,max=1000"`
	Sort     string `json:"sort" query:"sort" validate:"omitempty,oneof=asc desc"`
	SortBy   string `json:"sort_by" query:"sort_by"`
}

// DateRangeRequest represents a date range in requests
type DateRangeRequest struct {
	From string `json:"from" query:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `json:"to" query:"to" validate:"omitempty,datetime=2006-01-02"`
}

// Operation API Requests

// OperationStartRequest represents a request to start a pipeline run.
// Dates bound the fetch window; skip_fetch reuses the raw CSV already on
// disk. The features block overrides indicator parameters for this run
// only.
type OperationStartRequest struct {
	Symbol      string                `json:"symbol" validate:"required,min=1,max=32"`
	StartDate   string                `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string                `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Backend     string                `json:"backend,omitempty" validate:"omitempty,oneof=native talib"`
	SkipFetch   bool                  `json:"skip_fetch"`
	StepTimeout int                   `json:"step_timeout,omitempty" validate:"omitempty,min=1,max=3600"`
	Features    *domain.FeatureParams `json:"features,omitempty"`
}

// ToConfig converts the request into the domain run configuration.
func (r OperationStartRequest) ToConfig() domain.OperationConfig {
	return domain.OperationConfig{
		Symbol:      r.Symbol,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Backend:     r.Backend,
		SkipFetch:   r.SkipFetch,
		StepTimeout: r.StepTimeout,
		Features:    r.Features,
	}
}

// OperationListRequest represents a request to list recent operations
type OperationListRequest struct {
	PaginationRequest
	Status string `json:"status" query:"status" validate:"omitempty,oneof=pending running completed failed cancelled"`
	Symbol string `json:"symbol" query:"symbol"`
}

// OperationGetRequest represents a request for a single operation
type OperationGetRequest struct {
	OperationID string `json:"operation_id" param:"id" validate:"required,uuid"`
}

// Feature API Requests

// FeatureTableRequest represents a request for a page of the feature table
type FeatureTableRequest struct {
	PaginationRequest
	DateRangeRequest
	Symbol  string   `json:"symbol" query:"symbol"`
	Columns []string `json:"columns,omitempty" query:"columns"`
}

// FeatureDiagnosticsRequest represents a request for run diagnostics
type FeatureDiagnosticsRequest struct {
	Symbol string `json:"symbol" query:"symbol"`
}

// WebSocket API Requests

// WebSocketSubscribeRequest represents a WebSocket subscription request
type WebSocketSubscribeRequest struct {
	Type     string                 `json:"type" validate:"required,oneof=operation features system all"`
	Channels []string               `json:"channels" validate:"required,min=1"`
	Filters  map[string]interface{} `json:"filters,omitempty"`
}

// WebSocketUnsubscribeRequest represents a WebSocket unsubscription request
type WebSocketUnsubscribeRequest struct {
	Type     string   `json:"type" validate:"required,oneof=operation features system all"`
	Channels []string `json:"channels,omitempty"`
}

// Health API Requests

// HealthCheckRequest represents a health check request
type HealthCheckRequest struct {
	Verbose bool     `json:"verbose" query:"verbose"`
	Include []string `json:"include" query:"include" validate:"omitempty,dive,oneof=data websocket services scheduler"`
}
