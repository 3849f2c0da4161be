package operations

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"featcli/pkg/contracts/domain"
	"featcli/pkg/contracts/events"
)

// Manager orchestrates run execution. Steps run sequentially in
// registration order; at most one run executes at a time and finished
// runs stay queryable until pruned.
type Manager struct {
	config      *Config
	hub         WebSocketHub
	broadcaster *StatusBroadcaster
	logger      *slog.Logger

	mu         sync.RWMutex
	steps      []Step
	operations map[string]*OperationState
	order      []string
	cancels    map[string]context.CancelFunc
	activeID   string
}

// NewManager creates a new run manager with dependency injection
func NewManager(hub WebSocketHub, config *Config, logger *slog.Logger) *Manager {
	if config == nil {
		config = NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		config:      config,
		hub:         hub,
		broadcaster: NewStatusBroadcaster(hub, logger),
		logger:      logger,
		operations:  make(map[string]*OperationState),
		cancels:     make(map[string]context.CancelFunc),
	}
}

// RegisterStep adds a step to the pipeline. Steps execute in
// registration order.
func (m *Manager) RegisterStep(step Step) error {
	if step == nil {
		return fmt.Errorf("cannot register nil step")
	}
	if step.ID() == "" {
		return fmt.Errorf("cannot register step with empty ID")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.steps {
		if existing.ID() == step.ID() {
			return fmt.Errorf("step %s already registered", step.ID())
		}
	}
	m.steps = append(m.steps, step)
	return nil
}

// Broadcaster returns the status broadcaster for centralized updates
func (m *Manager) Broadcaster() *StatusBroadcaster {
	return m.broadcaster
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

// runHandle carries a registered run between registration and execution
type runHandle struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	state  *OperationState
	steps  []Step
}

// begin registers a new run behind the single-active gate and seeds its
// step states and broadcaster snapshot. The returned handle is
// queryable through GetOperation before any step executes.
func (m *Manager) begin(ctx context.Context, cfg domain.OperationConfig) (*runHandle, error) {
	id := uuid.NewString()

	m.mu.Lock()
	if len(m.steps) == 0 {
		m.mu.Unlock()
		return nil, NewFatalError("no steps registered", nil)
	}
	if m.activeID != "" {
		m.mu.Unlock()
		return nil, ErrRunActive
	}
	runCtx, cancel := context.WithCancel(ctx)
	state := NewOperationState(id, cfg)
	steps := make([]Step, len(m.steps))
	copy(steps, m.steps)
	m.operations[id] = state
	m.order = append(m.order, id)
	m.cancels[id] = cancel
	m.activeID = id
	m.pruneLocked()
	m.mu.Unlock()

	// Seed step states and broadcaster snapshots with stable IDs so
	// later progress updates match their entries.
	snapshots := make([]events.StepSnapshot, len(steps))
	for i, step := range steps {
		state.AddStep(NewStepState(step.ID(), step.Name()))
		snapshots[i] = events.StepSnapshot{ID: step.ID(), Name: step.Name()}
	}
	m.broadcaster.CreateOperation(id, state.Symbol, snapshots)

	return &runHandle{id: id, ctx: runCtx, cancel: cancel, state: state, steps: steps}, nil
}

// execute runs a registered handle to completion and releases the gate
func (m *Manager) execute(ctx context.Context, run *runHandle) (*domain.Operation, error) {
	defer func() {
		run.cancel()
		m.mu.Lock()
		delete(m.cancels, run.id)
		if m.activeID == run.id {
			m.activeID = ""
		}
		m.mu.Unlock()
	}()

	m.logOperationStart(ctx, run.id, run.state.Config, len(run.steps))
	run.state.Start()
	m.broadcaster.StartOperation(run.id)

	execCtx := run.ctx
	tracer := GetOperationTracer()
	var span trace.Span
	if tracer != nil {
		execCtx, span = tracer.TraceOperationExecution(run.ctx, run.id, run.state.Symbol)
	}

	err := m.executeSequential(execCtx, run.state, run.steps)

	cancelled := err != nil && GetErrorType(err) == ErrorTypeCancellation
	if cancelled {
		run.state.Cancel()
		m.broadcaster.CancelOperation(run.id)
		m.logOperationError(ctx, run.id, run.state.Duration(), err)
	} else if err != nil {
		run.state.Fail(err)
		m.broadcaster.FailOperation(run.id, err)
		m.logOperationError(ctx, run.id, run.state.Duration(), err)
	} else {
		run.state.Complete()
		m.broadcaster.CompleteOperation(run.id, "Operation completed successfully")
		m.logOperationComplete(ctx, run.id, run.state.Duration())
	}

	if tracer != nil {
		if cancelled {
			reason := "user_requested"
			if execCtx.Err() == context.DeadlineExceeded {
				reason = "timeout"
			}
			tracer.RecordOperationCancellation(execCtx, span, run.id, reason)
		} else {
			if err != nil {
				tracer.RecordOperationError(execCtx, run.id, err)
			}
			tracer.RecordOperationCompletion(execCtx, span, run.id, run.state.Duration(), err)
		}
		span.End()
	}

	op := run.state.Operation()
	return &op, err
}

// Execute runs the registered pipeline for the given configuration and
// blocks until the run finishes. Only one run may execute at a time;
// ErrRunActive is returned while another run is in flight.
func (m *Manager) Execute(ctx context.Context, cfg domain.OperationConfig) (*domain.Operation, error) {
	run, err := m.begin(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return m.execute(ctx, run)
}

// RunResult carries the terminal outcome of an asynchronous run
type RunResult struct {
	Operation *domain.Operation
	Err       error
}

// ExecuteAsync registers a run and returns its ID as soon as it is
// queryable, then executes the pipeline on a background goroutine. The
// result channel is buffered, so the outcome may be discarded. The
// caller owns ctx: pass one detached from the request so the run
// survives the response.
func (m *Manager) ExecuteAsync(ctx context.Context, cfg domain.OperationConfig) (string, <-chan RunResult, error) {
	run, err := m.begin(ctx, cfg)
	if err != nil {
		return "", nil, err
	}

	done := make(chan RunResult, 1)
	go func() {
		op, execErr := m.execute(ctx, run)
		done <- RunResult{Operation: op, Err: execErr}
	}()
	return run.id, done, nil
}

// executeSequential executes steps one by one
func (m *Manager) executeSequential(ctx context.Context, state *OperationState, steps []Step) error {
	for i, step := range steps {
		select {
		case <-ctx.Done():
			slog.WarnContext(ctx, "operation_cancelled",
				slog.String("operation_id", state.ID),
				slog.String("step", step.ID()))
			m.markRemainingCancelled(state, steps[i:])
			return NewCancellationError(step.ID())
		default:
		}

		if err := m.executeStep(ctx, state, step); err != nil {
			if GetErrorType(err) == ErrorTypeCancellation {
				m.markRemainingCancelled(state, steps[i+1:])
				return err
			}
			if !m.config.ContinueOnError {
				m.skipRemaining(state, steps[i+1:], step.ID())
				return err
			}
			slog.WarnContext(ctx, "step_failed_continuing",
				slog.String("operation_id", state.ID),
				slog.String("step", step.ID()),
				slog.String("error", err.Error()))
		}
	}
	return nil
}

// executeStep executes a single step with timeout and retry handling
func (m *Manager) executeStep(ctx context.Context, state *OperationState, step Step) (stepErr error) {
	if tracer := GetOperationTracer(); tracer != nil {
		var span trace.Span
		ctx, span = tracer.TraceStepExecution(ctx, state.ID, step.ID())
		stepStart := time.Now()
		defer func() {
			if stepErr != nil {
				tracer.RecordStepError(ctx, state.ID, step.ID(), stepErr)
			}
			tracer.RecordStepCompletion(ctx, span, state.ID, step.ID(), time.Since(stepStart), stepErr == nil)
			span.End()
		}()
	}

	m.logStepStart(ctx, state.ID, step.ID())
	stepState := state.GetStep(step.ID())
	if stepState == nil {
		return NewFatalError(fmt.Sprintf("step state not found: %s", step.ID()), nil)
	}

	if err := step.Validate(state); err != nil {
		if IsSkip(err) {
			reason := err.Error()
			var opErr *OperationError
			if errors.As(err, &opErr) {
				reason = opErr.Message
			}
			stepState.Skip(reason)
			m.broadcaster.SkipStep(state.ID, step.ID(), reason)
			slog.InfoContext(ctx, "step_skipped",
				slog.String("operation_id", state.ID),
				slog.String("step", step.ID()),
				slog.String("reason", reason))
			return nil
		}
		vErr := NewValidationError(step.ID(), err.Error())
		stepState.Fail(vErr)
		m.broadcaster.FailStep(state.ID, step.ID(), vErr)
		return vErr
	}

	timeout := m.config.GetStepTimeout(step.ID())
	if state.Config.StepTimeout > 0 {
		timeout = time.Duration(state.Config.StepTimeout) * time.Second
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	retryConfig := m.config.RetryConfig
	var lastErr error

	for attempt := 1; attempt <= retryConfig.MaxAttempts; attempt++ {
		stepState.Start()
		m.broadcaster.UpdateStepProgress(state.ID, step.ID(), int(stepState.Progress), "Step started")

		startTime := time.Now()
		err := m.runAttempt(stepCtx, state, step)
		duration := time.Since(startTime)

		if err == nil {
			stepState.Complete()
			m.broadcaster.CompleteStep(state.ID, step.ID(), "Step completed successfully")
			m.logStepComplete(ctx, state.ID, step.ID(), duration)
			return nil
		}

		m.logStepError(ctx, state.ID, step.ID(), duration, err)
		lastErr = err

		// A cancelled run trumps retries and failure bookkeeping
		if ctx.Err() != nil {
			stepState.MarkCancelled()
			m.broadcaster.UpdateStepProgress(state.ID, step.ID(), int(stepState.Progress), "Step cancelled")
			return NewCancellationError(step.ID())
		}

		// An expired step deadline cannot recover by retrying
		if stepCtx.Err() == context.DeadlineExceeded {
			terr := NewTimeoutError(step.ID(), timeout.String())
			stepState.Fail(terr)
			m.broadcaster.FailStep(state.ID, step.ID(), terr)
			return terr
		}

		if !IsRetryable(err) || attempt >= retryConfig.MaxAttempts {
			stepState.Fail(err)
			m.broadcaster.FailStep(state.ID, step.ID(), err)
			return WrapError(err, step.ID(), "step execution failed")
		}

		delay := m.calculateRetryDelay(attempt, retryConfig)
		slog.WarnContext(ctx, "step_retry",
			slog.String("operation_id", state.ID),
			slog.String("step", step.ID()),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", retryConfig.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(delay):
			// Continue to next attempt
		case <-stepCtx.Done():
			terr := NewTimeoutError(step.ID(), timeout.String())
			stepState.Fail(terr)
			m.broadcaster.FailStep(state.ID, step.ID(), terr)
			return terr
		}
	}

	stepState.Fail(lastErr)
	m.broadcaster.FailStep(state.ID, step.ID(), lastErr)
	return WrapError(lastErr, step.ID(), fmt.Sprintf("step execution failed after %d attempts", retryConfig.MaxAttempts))
}

// runAttempt invokes a step's Execute, converting panics into fatal
// errors so a misbehaving step cannot take down the server.
func (m *Manager) runAttempt(ctx context.Context, state *OperationState, step Step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("step panic recovered",
				slog.String("operation_id", state.ID),
				slog.String("step", step.ID()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = NewFatalError(fmt.Sprintf("step panicked: %v", r), nil)
		}
	}()
	return step.Execute(ctx, state)
}

// skipRemaining marks the not-yet-run steps as skipped after a failure
func (m *Manager) skipRemaining(state *OperationState, rest []Step, failedStepID string) {
	for _, step := range rest {
		stepState := state.GetStep(step.ID())
		if stepState == nil || stepState.Status != domain.StepStatusPending {
			continue
		}
		reason := fmt.Sprintf("previous step %s failed", failedStepID)
		stepState.Skip(reason)
		m.broadcaster.SkipStep(state.ID, step.ID(), reason)
	}
}

// markRemainingCancelled marks the not-yet-run steps as cancelled
func (m *Manager) markRemainingCancelled(state *OperationState, rest []Step) {
	for _, step := range rest {
		if stepState := state.GetStep(step.ID()); stepState != nil {
			stepState.MarkCancelled()
		}
	}
}

// calculateRetryDelay calculates the delay before next retry
func (m *Manager) calculateRetryDelay(attempt int, config RetryConfig) time.Duration {
	delay := config.InitialDelay * time.Duration(float64(attempt-1)*config.Multiplier)
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}

// GetOperation retrieves the external view of a stored run
func (m *Manager) GetOperation(id string) (domain.Operation, error) {
	m.mu.RLock()
	state, exists := m.operations[id]
	m.mu.RUnlock()

	if !exists {
		return domain.Operation{}, ErrOperationNotFound
	}
	return state.Operation(), nil
}

// ListOperations returns all stored runs, most recent first
func (m *Manager) ListOperations() []domain.Operation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ops := make([]domain.Operation, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		if state, ok := m.operations[m.order[i]]; ok {
			ops = append(ops, state.Operation())
		}
	}
	return ops
}

// CancelOperation requests cancellation of a running run. The run
// transitions to cancelled once the current step observes the context.
func (m *Manager) CancelOperation(id string) error {
	m.mu.RLock()
	cancel, running := m.cancels[id]
	_, known := m.operations[id]
	m.mu.RUnlock()

	if !known {
		return ErrOperationNotFound
	}
	if !running {
		return ErrOperationNotRunning
	}
	cancel()
	return nil
}

// Active reports the ID of the currently executing run, if any
func (m *Manager) Active() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeID, m.activeID != ""
}

// Stop cancels any in-flight run and shuts down the broadcaster
func (m *Manager) Stop() {
	m.mu.RLock()
	cancels := make([]context.CancelFunc, 0, len(m.cancels))
	for _, cancel := range m.cancels {
		cancels = append(cancels, cancel)
	}
	m.mu.RUnlock()

	for _, cancel := range cancels {
		cancel()
	}
	m.broadcaster.Stop()
}

// pruneLocked drops the oldest terminal runs beyond MaxStored. Callers
// must hold m.mu.
func (m *Manager) pruneLocked() {
	max := m.config.MaxStored
	if max <= 0 || len(m.order) <= max {
		return
	}

	excess := len(m.order) - max
	kept := make([]string, 0, max)
	for _, id := range m.order {
		_, running := m.cancels[id]
		if excess > 0 && !running {
			delete(m.operations, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}
