package domain

import (
	"time"
)

// Operation represents a complete pipeline run consisting of multiple steps:
// fetch (optional), clean, features, export.

// Operation represents one end-to-end feature derivation run
type Operation struct {
	ID          string            `json:"id" validate:"required,uuid"`
	Symbol      string            `json:"symbol" validate:"required"`
	Status      OperationStatus   `json:"status"`
	Config      OperationConfig   `json:"config"`
	Steps       []StepSummary     `json:"steps"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
	Artifacts   map[string]string `json:"artifacts,omitempty"`
}

// OperationStatus represents the status of an operation
type OperationStatus string

const (
	OperationStatusPending   OperationStatus = "pending"
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusCompleted OperationStatus = "completed"
	OperationStatusFailed    OperationStatus = "failed"
	OperationStatusCancelled OperationStatus = "cancelled"
)

// IsTerminal reports whether the operation has finished, successfully or not.
func (s OperationStatus) IsTerminal() bool {
	switch s {
	case OperationStatusCompleted, OperationStatusFailed, OperationStatusCancelled:
		return true
	}
	return false
}

// OperationConfig represents the parameters of a single run. StartDate and
// EndDate bound the fetch window and the date filter applied during
// cleaning; empty dates mean the configured lookback.
type OperationConfig struct {
	Symbol      string         `json:"symbol" validate:"required,min=1,max=32"`
	StartDate   string         `json:"start_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string         `json:"end_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Backend     string         `json:"backend,omitempty" validate:"omitempty,oneof=native talib"`
	SkipFetch   bool           `json:"skip_fetch"`
	StepTimeout int            `json:"step_timeout,omitempty" validate:"omitempty,min=1,max=3600"` // seconds
	Features    *FeatureParams `json:"features,omitempty"`
}

// FeatureParams carries per-run overrides for the feature stage. Zero
// fields keep the pipeline defaults, so a nil or empty struct runs the
// standard parameter set.
type FeatureParams struct {
	SMAWindows      []int   `json:"sma_windows,omitempty" validate:"omitempty,dive,min=1"`
	EMASpans        []int   `json:"ema_spans,omitempty" validate:"omitempty,dive,min=1"`
	RSIPeriod       int     `json:"rsi_period,omitempty" validate:"omitempty,min=1"`
	MACDFast        int     `json:"macd_fast,omitempty" validate:"omitempty,min=1"`
	MACDSlow        int     `json:"macd_slow,omitempty" validate:"omitempty,min=1"`
	MACDSignal      int     `json:"macd_signal,omitempty" validate:"omitempty,min=1"`
	BollingerWindow int     `json:"bollinger_window,omitempty" validate:"omitempty,min=2"`
	BollingerK      float64 `json:"bollinger_k,omitempty" validate:"omitempty,gt=0"`
	CloseLags       []int   `json:"close_lags,omitempty" validate:"omitempty,dive,min=1"`
	ReturnLags      []int   `json:"return_lags,omitempty" validate:"omitempty,dive,min=1"`
	VolumeLags      []int   `json:"volume_lags,omitempty" validate:"omitempty,dive,min=1"`
}

// StepSummary represents the externally visible state of one step
type StepSummary struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Status      StepStatus             `json:"status"`
	Progress    float64                `json:"progress"` // 0-100
	Message     string                 `json:"message,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"` // row counts, artifact paths, backend used
}

// StepStatus represents the status of a step
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusCancelled StepStatus = "cancelled"
)

// ProgressUpdate represents a progress update for an operation or step
type ProgressUpdate struct {
	OperationID string     `json:"operation_id"`
	StepID      string     `json:"step_id,omitempty"`
	StepName    string     `json:"step_name,omitempty"`
	Status      StepStatus `json:"status,omitempty"`
	Progress    float64    `json:"progress"` // 0-100
	Message     string     `json:"message,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// OperationResponse represents the acknowledgement returned when a run
// is accepted
type OperationResponse struct {
	OperationID  string          `json:"operation_id"`
	Status       OperationStatus `json:"status"`
	Message      string          `json:"message"`
	CreatedAt    time.Time       `json:"created_at"`
	WebSocketURL string          `json:"websocket_url,omitempty"`
}

// Step identifiers
const (
	StepIDFetch    = "fetch"
	StepIDClean    = "clean"
	StepIDFeatures = "features"
	StepIDExport   = "export"
)

// Step names
const (
	StepNameFetch    = "Bar Download"
	StepNameClean    = "Bar Cleaning"
	StepNameFeatures = "Feature Derivation"
	StepNameExport   = "Artifact Export"
)

// Artifact keys recorded on a completed operation
const (
	ArtifactRawCSV      = "raw_csv"
	ArtifactCleanCSV    = "clean_csv"
	ArtifactFeaturesCSV = "features_csv"
	ArtifactSnapshotCSV = "snapshot_csv"
	ArtifactWorkbook    = "workbook"
	ArtifactDiagnostics = "diagnostics"
)
