package operations

import (
	"context"
	"fmt"
	"sync"
	"time"

	"featcli/pkg/contracts/domain"
)

// Step represents a single step in a run
type Step interface {
	// ID returns the unique identifier for this step
	ID() string

	// Name returns the human-readable name for this step
	Name() string

	// Validate checks if the step can be executed with the current state.
	// Returning a skip error marks the step skipped without failing the
	// run.
	Validate(state *OperationState) error

	// Execute runs the step with the given context and run state
	Execute(ctx context.Context, state *OperationState) error
}

// StepState represents the runtime state of a step
type StepState struct {
	mu        sync.RWMutex
	ID        string
	Name      string
	Status    domain.StepStatus
	StartTime *time.Time
	EndTime   *time.Time
	Progress  float64 // 0-100
	Message   string
	Err       error
	Metadata  map[string]interface{}
}

// NewStepState creates a new step state with default values
func NewStepState(id, name string) *StepState {
	return &StepState{
		ID:       id,
		Name:     name,
		Status:   domain.StepStatusPending,
		Progress: 0,
		Metadata: make(map[string]interface{}),
	}
}

// Start marks the step as running and sets the start time
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime = &now
	s.Status = domain.StepStatusRunning
	s.Progress = 0
}

// Complete marks the step as completed and sets the end time
func (s *StepState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = domain.StepStatusCompleted
	s.Progress = 100
}

// Fail marks the step as failed with the given error
func (s *StepState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = domain.StepStatusFailed
	s.Err = err
}

// Skip marks the step as skipped with the given reason
func (s *StepState) Skip(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = domain.StepStatusSkipped
	s.Progress = 100
	s.Message = reason
}

// MarkCancelled marks the step as cancelled without starting it
func (s *StepState) MarkCancelled() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Status = domain.StepStatusCancelled
}

// UpdateProgress updates the step progress and message
func (s *StepState) UpdateProgress(progress float64, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Progress = progress
	s.Message = message
}

// SetMetadata records a step-specific detail for diagnostics
func (s *StepState) SetMetadata(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Metadata == nil {
		s.Metadata = make(map[string]interface{})
	}
	s.Metadata[key] = value
}

// Duration returns the duration of the step execution
func (s *StepState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.StartTime == nil {
		return 0
	}
	if s.EndTime != nil {
		return s.EndTime.Sub(*s.StartTime)
	}
	return time.Since(*s.StartTime)
}

// Summary returns the externally visible view of the step
func (s *StepState) Summary() domain.StepSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := domain.StepSummary{
		ID:       s.ID,
		Name:     s.Name,
		Status:   s.Status,
		Progress: s.Progress,
		Message:  s.Message,
	}
	if s.Err != nil {
		sum.Error = s.Err.Error()
	}
	if s.StartTime != nil {
		t := *s.StartTime
		sum.StartedAt = &t
	}
	if s.EndTime != nil {
		t := *s.EndTime
		sum.CompletedAt = &t
	}
	if len(s.Metadata) > 0 {
		sum.Metadata = make(map[string]interface{}, len(s.Metadata))
		for k, v := range s.Metadata {
			sum.Metadata[k] = v
		}
	}
	return sum
}

// BaseStage provides common functionality for step implementations
type BaseStage struct {
	id   string
	name string
}

// NewBaseStage creates a new base step
func NewBaseStage(id, name string) BaseStage {
	return BaseStage{id: id, name: name}
}

// ID returns the step ID
func (b *BaseStage) ID() string {
	if b == nil {
		return ""
	}
	return b.id
}

// Name returns the step name
func (b *BaseStage) Name() string {
	if b == nil {
		return ""
	}
	return b.name
}

// Validate provides a default validation that always passes
func (b *BaseStage) Validate(state *OperationState) error {
	if b == nil {
		return fmt.Errorf("BaseStage is nil")
	}
	return nil
}
