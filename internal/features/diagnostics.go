package features

import (
	"time"
)

// FallbackEvent records one backend substitution: either the requested
// backend was unavailable at resolution time, or a specific indicator was
// routed to another backend because the selected one does not support its
// kind. Fallbacks are diagnostics, never errors.
type FallbackEvent struct {
	// Indicator names the affected indicator, or is empty when the
	// whole backend resolution fell back.
	Indicator string `json:"indicator,omitempty"`
	From      string `json:"from"`
	To        string `json:"to"`
	Reason    string `json:"reason"`
}

// Diagnostics summarizes one pipeline run: row accounting, the backend
// actually used, any fallback events, and per-indicator failures. A
// Diagnostics record accompanies every successful run.
type Diagnostics struct {
	Symbol           string              `json:"symbol"`
	BackendRequested string              `json:"backend_requested"`
	BackendUsed      string              `json:"backend_used"`
	RowsExamined     int                 `json:"rows_examined"`
	RowsDropped      int                 `json:"rows_dropped"`
	RowsEmitted      int                 `json:"rows_emitted"`
	Columns          []string            `json:"columns"`
	Fallbacks        []FallbackEvent     `json:"fallbacks,omitempty"`
	Failures         []*ComputationError `json:"failures,omitempty"`
	StartedAt        time.Time           `json:"started_at"`
	Elapsed          time.Duration       `json:"elapsed"`
}

// Healthy reports whether the run completed without indicator failures.
func (d *Diagnostics) Healthy() bool {
	return len(d.Failures) == 0
}
