package operations

import (
	"sync"
	"time"

	"featcli/internal/cleaning"
	"featcli/internal/features"
	"featcli/pkg/contracts/domain"
)

// OperationState represents the complete state of one run. Steps read
// and write the shared artifact fields through the accessors; the API
// layer only ever sees the immutable Operation() view.
type OperationState struct {
	mu sync.RWMutex

	ID        string
	Symbol    string
	Status    domain.OperationStatus
	Config    domain.OperationConfig
	StartTime time.Time
	EndTime   *time.Time
	Error     error

	// Step states keyed by step ID, with registration order preserved
	// for snapshots.
	steps map[string]*StepState
	order []string

	// Shared artifacts passed between steps.
	rawBars     *domain.BarSeries
	bars        *domain.BarSeries
	cleanReport *cleaning.Report
	table       *features.FeatureTable
	diagnostics *features.Diagnostics
	artifacts   map[string]string
}

// NewOperationState creates a new run state
func NewOperationState(id string, cfg domain.OperationConfig) *OperationState {
	return &OperationState{
		ID:        id,
		Symbol:    cfg.Symbol,
		Status:    domain.OperationStatusPending,
		Config:    cfg,
		StartTime: time.Now(),
		steps:     make(map[string]*StepState),
		artifacts: make(map[string]string),
	}
}

// AddStep registers a step state, preserving insertion order
func (p *OperationState) AddStep(state *StepState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.steps[state.ID]; !exists {
		p.order = append(p.order, state.ID)
	}
	p.steps[state.ID] = state
}

// GetStep returns the state of a specific step
func (p *OperationState) GetStep(stepID string) *StepState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.steps[stepID]
}

// StepOrder returns the step IDs in registration order
func (p *OperationState) StepOrder() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Start marks the run as running
func (p *OperationState) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Status = domain.OperationStatusRunning
	p.StartTime = time.Now()
}

// Complete marks the run as completed
func (p *OperationState) Complete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = domain.OperationStatusCompleted
}

// Fail marks the run as failed
func (p *OperationState) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = domain.OperationStatusFailed
	p.Error = err
}

// Cancel marks the run as cancelled
func (p *OperationState) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	p.EndTime = &now
	p.Status = domain.OperationStatusCancelled
}

// Duration returns the duration of the run
func (p *OperationState) Duration() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.EndTime != nil {
		return p.EndTime.Sub(p.StartTime)
	}
	return time.Since(p.StartTime)
}

// SetRawBars stores the freshly fetched, uncleaned series
func (p *OperationState) SetRawBars(series *domain.BarSeries) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rawBars = series
}

// RawBars returns the fetched series, or nil if the fetch step was
// skipped
func (p *OperationState) RawBars() *domain.BarSeries {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rawBars
}

// SetBars stores the cleaned series together with the cleaning report
func (p *OperationState) SetBars(series *domain.BarSeries, report *cleaning.Report) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars = series
	p.cleanReport = report
}

// Bars returns the cleaned series
func (p *OperationState) Bars() *domain.BarSeries {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bars
}

// CleanReport returns the cleaning report, or nil before the clean step
func (p *OperationState) CleanReport() *cleaning.Report {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cleanReport
}

// SetTable stores the derived feature table and its diagnostics
func (p *OperationState) SetTable(table *features.FeatureTable, diag *features.Diagnostics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.table = table
	p.diagnostics = diag
}

// Table returns the derived feature table
func (p *OperationState) Table() *features.FeatureTable {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.table
}

// Diagnostics returns the feature run diagnostics
func (p *OperationState) Diagnostics() *features.Diagnostics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.diagnostics
}

// SetArtifact records the path of a written artifact
func (p *OperationState) SetArtifact(key, path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.artifacts[key] = path
}

// Artifact returns the path of a written artifact
func (p *OperationState) Artifact(key string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	path, ok := p.artifacts[key]
	return path, ok
}

// Operation returns the externally visible view of the run
func (p *OperationState) Operation() domain.Operation {
	p.mu.RLock()
	defer p.mu.RUnlock()

	op := domain.Operation{
		ID:        p.ID,
		Symbol:    p.Symbol,
		Status:    p.Status,
		Config:    p.Config,
		CreatedAt: p.StartTime,
	}
	if p.Status != domain.OperationStatusPending {
		t := p.StartTime
		op.StartedAt = &t
	}
	if p.EndTime != nil {
		t := *p.EndTime
		op.CompletedAt = &t
	}
	if p.Error != nil {
		op.Error = p.Error.Error()
	}

	op.Steps = make([]domain.StepSummary, 0, len(p.order))
	for _, id := range p.order {
		if step, ok := p.steps[id]; ok {
			op.Steps = append(op.Steps, step.Summary())
		}
	}

	if len(p.artifacts) > 0 {
		op.Artifacts = make(map[string]string, len(p.artifacts))
		for k, v := range p.artifacts {
			op.Artifacts[k] = v
		}
	}
	return op
}
