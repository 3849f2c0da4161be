package operations

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"featcli/pkg/contracts/events"
)

// StatusBroadcaster is the single authority for all run status updates.
// It maintains the complete state of every run and broadcasts full
// snapshots so clients never need to reassemble state from deltas.
type StatusBroadcaster struct {
	mu         sync.RWMutex
	operations map[string]*events.OperationSnapshot
	hub        WebSocketHub
	logger     *slog.Logger
	updates    chan updateRequest
	stop       chan struct{}
}

type updateRequest struct {
	operationID string
	updateFunc  func(*events.OperationSnapshot)
	done        chan struct{}
}

// NewStatusBroadcaster creates a new status broadcaster
func NewStatusBroadcaster(hub WebSocketHub, logger *slog.Logger) *StatusBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}

	sb := &StatusBroadcaster{
		operations: make(map[string]*events.OperationSnapshot),
		hub:        hub,
		logger:     logger,
		updates:    make(chan updateRequest, 100),
		stop:       make(chan struct{}),
	}

	// Start the update processor
	go sb.processUpdates()

	return sb
}

// processUpdates handles all updates sequentially to avoid race conditions
func (sb *StatusBroadcaster) processUpdates() {
	for {
		select {
		case <-sb.stop:
			return
		case req := <-sb.updates:
			sb.handleUpdate(req)
		}
	}
}

// handleUpdate processes a single update request
func (sb *StatusBroadcaster) handleUpdate(req updateRequest) {
	defer close(req.done)

	sb.mu.Lock()
	defer sb.mu.Unlock()

	// Get or create snapshot
	snapshot, exists := sb.operations[req.operationID]
	if !exists {
		snapshot = &events.OperationSnapshot{
			OperationID: req.operationID,
			Status:      "pending",
			Progress:    0,
			StartedAt:   time.Now(),
			UpdatedAt:   time.Now(),
			Steps:       []events.StepSnapshot{},
		}
		sb.operations[req.operationID] = snapshot
	}

	// Apply the update
	req.updateFunc(snapshot)
	snapshot.UpdatedAt = time.Now()

	// Calculate overall progress from steps
	if len(snapshot.Steps) > 0 {
		totalProgress := 0
		for _, step := range snapshot.Steps {
			totalProgress += step.Progress
		}
		snapshot.Progress = totalProgress / len(snapshot.Steps)
	}

	// Set completed time once the status is terminal
	if snapshot.Status == "completed" || snapshot.Status == "failed" || snapshot.Status == "cancelled" {
		if snapshot.CompletedAt == nil {
			now := time.Now()
			snapshot.CompletedAt = &now
		}
	}

	// Broadcast the complete snapshot
	sb.broadcast(snapshot)
}

// broadcast sends the complete snapshot to all connected clients
func (sb *StatusBroadcaster) broadcast(snapshot *events.OperationSnapshot) {
	if sb.hub == nil {
		return
	}

	sb.logger.Debug("broadcasting operation snapshot",
		slog.String("operation_id", snapshot.OperationID),
		slog.String("status", snapshot.Status),
		slog.Int("progress", snapshot.Progress),
		slog.String("current_step", snapshot.CurrentStep),
		slog.Int("steps", len(snapshot.Steps)),
	)

	sb.hub.BroadcastUpdate(string(events.MessageTypeOperationSnapshot), snapshot.OperationID, "update", snapshot)
}

// UpdateStatus applies a mutation to a run snapshot and broadcasts the
// result. This is the ONLY path that modifies run status.
func (sb *StatusBroadcaster) UpdateStatus(operationID string, updateFunc func(*events.OperationSnapshot)) {
	req := updateRequest{
		operationID: operationID,
		updateFunc:  updateFunc,
		done:        make(chan struct{}),
	}

	sb.updates <- req
	<-req.done // Wait for update to complete
}

// CreateOperation initializes a new run with the given step snapshots.
// Steps must carry stable IDs so later updates can match them.
func (sb *StatusBroadcaster) CreateOperation(operationID, symbol string, steps []events.StepSnapshot) {
	sb.UpdateStatus(operationID, func(snapshot *events.OperationSnapshot) {
		snapshot.Symbol = symbol
		snapshot.Status = "pending"
		snapshot.Progress = 0
		snapshot.Steps = make([]events.StepSnapshot, len(steps))
		for i, step := range steps {
			snapshot.Steps[i] = events.StepSnapshot{
				ID:       step.ID,
				Name:     step.Name,
				Status:   "pending",
				Progress: 0,
			}
		}
		snapshot.Message = "Operation created"
	})
}

// StartOperation marks a run as running
func (sb *StatusBroadcaster) StartOperation(operationID string) {
	sb.UpdateStatus(operationID, func(snapshot *events.OperationSnapshot) {
		snapshot.Status = "running"
		snapshot.Message = "Operation started"
	})
}

// UpdateStepProgress updates a specific step's progress
func (sb *StatusBroadcaster) UpdateStepProgress(operationID, stepID string, progress int, message string) {
	sb.UpdateStepWithMetadata(operationID, stepID, progress, message, nil)
}

// UpdateStepWithMetadata updates a specific step's progress with metadata
func (sb *StatusBroadcaster) UpdateStepWithMetadata(operationID, stepID string, progress int, message string, metadata map[string]interface{}) {
	sb.UpdateStatus(operationID, func(snapshot *events.OperationSnapshot) {
		found := false
		for i := range snapshot.Steps {
			if snapshot.Steps[i].ID != stepID {
				continue
			}
			found = true
			// Enforce monotonic step progress while running so late or
			// out-of-order events cannot walk progress backwards.
			if !(progress < snapshot.Steps[i].Progress && snapshot.Steps[i].Status == "running") {
				snapshot.Steps[i].Progress = progress
			}
			snapshot.Steps[i].Message = message
			if metadata != nil {
				snapshot.Steps[i].Metadata = metadata
			}
			if progress > 0 && progress < 100 {
				snapshot.Steps[i].Status = "running"
				snapshot.CurrentStep = snapshot.Steps[i].Name
			} else if progress >= 100 {
				snapshot.Steps[i].Status = "completed"
				snapshot.Steps[i].Progress = 100
			}
			break
		}
		if !found {
			// Unknown step ID; append a minimal entry so progress keeps moving
			snapshot.Steps = append(snapshot.Steps, events.StepSnapshot{
				ID:       stepID,
				Name:     stepID,
				Status:   map[bool]string{true: "completed", false: "running"}[progress >= 100],
				Progress: minInt(maxInt(progress, 0), 100),
				Message:  message,
				Metadata: metadata,
			})
			if progress > 0 && progress < 100 {
				snapshot.CurrentStep = stepID
			}
		}
	})
}

// Helpers to clamp ints without importing math just for this
func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// CompleteStep marks a step as completed
func (sb *StatusBroadcaster) CompleteStep(operationID, stepID string, message string) {
	sb.UpdateStatus(operationID, func(snapshot *events.OperationSnapshot) {
		for i := range snapshot.Steps {
			if snapshot.Steps[i].ID == stepID {
				snapshot.Steps[i].Status = "completed"
				snapshot.Steps[i].Progress = 100
				snapshot.Steps[i].Message = message
				break
			}
		}
	})
}

// SkipStep marks a step as skipped with a reason
func (sb *StatusBroadcaster) SkipStep(operationID, stepID string, reason string) {
	sb.UpdateStatus(operationID, func(snapshot *events.OperationSnapshot) {
		for i := range snapshot.Steps {
			if snapshot.Steps[i].ID == stepID {
				snapshot.Steps[i].Status = "skipped"
				snapshot.Steps[i].Progress = 100
				snapshot.Steps[i].Message = reason
				break
			}
		}
	})
}

// FailStep marks a step as failed
func (sb *StatusBroadcaster) FailStep(operationID, stepID string, err error) {
	sb.UpdateStatus(operationID, func(snapshot *events.OperationSnapshot) {
		for i := range snapshot.Steps {
			if snapshot.Steps[i].ID == stepID {
				snapshot.Steps[i].Status = "failed"
				snapshot.Steps[i].Error = err.Error()
				break
			}
		}
	})
}

// CompleteOperation marks a run as completed
func (sb *StatusBroadcaster) CompleteOperation(operationID string, message string) {
	sb.UpdateStatus(operationID, func(snapshot *events.OperationSnapshot) {
		snapshot.Status = "completed"
		snapshot.Progress = 100
		snapshot.CurrentStep = ""
		snapshot.Message = message
		// A completed run implies every non-terminal step finished
		for i := range snapshot.Steps {
			if snapshot.Steps[i].Status == "running" || snapshot.Steps[i].Status == "pending" {
				snapshot.Steps[i].Status = "completed"
				snapshot.Steps[i].Progress = 100
			}
		}
	})
}

// FailOperation marks a run as failed
func (sb *StatusBroadcaster) FailOperation(operationID string, err error) {
	sb.UpdateStatus(operationID, func(snapshot *events.OperationSnapshot) {
		snapshot.Status = "failed"
		snapshot.Error = err.Error()
		snapshot.CurrentStep = ""
	})
}

// CancelOperation marks a run as cancelled
func (sb *StatusBroadcaster) CancelOperation(operationID string) {
	sb.UpdateStatus(operationID, func(snapshot *events.OperationSnapshot) {
		snapshot.Status = "cancelled"
		snapshot.CurrentStep = ""
		snapshot.Message = "Operation cancelled"
		for i := range snapshot.Steps {
			if snapshot.Steps[i].Status == "running" || snapshot.Steps[i].Status == "pending" {
				snapshot.Steps[i].Status = "cancelled"
			}
		}
	})
}

// GetSnapshot returns the current snapshot for a run
func (sb *StatusBroadcaster) GetSnapshot(operationID string) (*events.OperationSnapshot, bool) {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	snapshot, exists := sb.operations[operationID]
	if !exists {
		return nil, false
	}

	// Return a copy to prevent external modification
	snap := *snapshot
	snap.Steps = append([]events.StepSnapshot(nil), snapshot.Steps...)
	return &snap, true
}

// GetAllSnapshots returns the snapshots of all known runs
func (sb *StatusBroadcaster) GetAllSnapshots() []*events.OperationSnapshot {
	sb.mu.RLock()
	defer sb.mu.RUnlock()

	snapshots := make([]*events.OperationSnapshot, 0, len(sb.operations))
	for _, snapshot := range sb.operations {
		snap := *snapshot
		snap.Steps = append([]events.StepSnapshot(nil), snapshot.Steps...)
		snapshots = append(snapshots, &snap)
	}

	return snapshots
}

// CleanupOldOperations removes terminal runs older than maxAge
func (sb *StatusBroadcaster) CleanupOldOperations(ctx context.Context, maxAge time.Duration) {
	sb.mu.Lock()
	defer sb.mu.Unlock()

	now := time.Now()
	for id, snapshot := range sb.operations {
		if snapshot.Status != "completed" && snapshot.Status != "failed" && snapshot.Status != "cancelled" {
			continue
		}
		if snapshot.CompletedAt != nil && now.Sub(*snapshot.CompletedAt) > maxAge {
			delete(sb.operations, id)
			sb.logger.InfoContext(ctx, "cleaned up old operation",
				slog.String("operation_id", id),
				slog.String("status", snapshot.Status),
				slog.Duration("age", now.Sub(*snapshot.CompletedAt)),
			)
		}
	}
}

// Stop gracefully shuts down the broadcaster
func (sb *StatusBroadcaster) Stop() {
	close(sb.stop)
}
