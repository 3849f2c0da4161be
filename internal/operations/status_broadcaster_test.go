package operations_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"featcli/internal/operations"
	"featcli/internal/operations/testutil"
	"featcli/pkg/contracts/events"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func pipelineSteps() []events.StepSnapshot {
	return []events.StepSnapshot{
		{ID: "fetch", Name: "Bar Download"},
		{ID: "clean", Name: "Bar Cleaning"},
		{ID: "features", Name: "Feature Derivation"},
		{ID: "export", Name: "Artifact Export"},
	}
}

func newTestBroadcaster(t *testing.T) (*operations.StatusBroadcaster, *testutil.MockWebSocketHub) {
	t.Helper()
	hub := &testutil.MockWebSocketHub{}
	sb := operations.NewStatusBroadcaster(hub, quietLogger())
	t.Cleanup(sb.Stop)
	return sb, hub
}

func TestStatusBroadcasterCreateOperation(t *testing.T) {
	sb, hub := newTestBroadcaster(t)

	sb.CreateOperation("op-1", "BTC-USD", pipelineSteps())

	snap, ok := sb.GetSnapshot("op-1")
	require.True(t, ok)
	assert.Equal(t, "op-1", snap.OperationID)
	assert.Equal(t, "BTC-USD", snap.Symbol)
	assert.Equal(t, "pending", snap.Status)
	assert.Equal(t, 0, snap.Progress)
	require.Len(t, snap.Steps, 4)
	assert.Equal(t, "fetch", snap.Steps[0].ID)
	assert.Equal(t, "Bar Download", snap.Steps[0].Name)
	assert.Equal(t, "pending", snap.Steps[0].Status)

	// Every update broadcasts a full snapshot
	msgs := hub.GetMessagesByType(string(events.MessageTypeOperationSnapshot))
	require.Len(t, msgs, 1)
	assert.Equal(t, "op-1", msgs[0].Subtype)
	assert.Equal(t, "update", msgs[0].Action)
}

func TestStatusBroadcasterStepProgress(t *testing.T) {
	sb, _ := newTestBroadcaster(t)
	sb.CreateOperation("op-1", "BTC-USD", pipelineSteps())
	sb.StartOperation("op-1")

	sb.UpdateStepProgress("op-1", "fetch", 40, "Downloading")

	snap, ok := sb.GetSnapshot("op-1")
	require.True(t, ok)
	assert.Equal(t, "running", snap.Status)
	assert.Equal(t, "running", snap.Steps[0].Status)
	assert.Equal(t, 40, snap.Steps[0].Progress)
	assert.Equal(t, "Bar Download", snap.CurrentStep)
	// Overall progress is the average across all four steps
	assert.Equal(t, 10, snap.Progress)
}

func TestStatusBroadcasterMonotonicProgress(t *testing.T) {
	sb, _ := newTestBroadcaster(t)
	sb.CreateOperation("op-1", "BTC-USD", pipelineSteps())

	sb.UpdateStepProgress("op-1", "fetch", 50, "page 5")
	sb.UpdateStepProgress("op-1", "fetch", 30, "late event")

	snap, _ := sb.GetSnapshot("op-1")
	assert.Equal(t, 50, snap.Steps[0].Progress, "progress must not walk backwards while running")
	assert.Equal(t, "late event", snap.Steps[0].Message, "message still updates")
}

func TestStatusBroadcasterUnknownStepAppended(t *testing.T) {
	sb, _ := newTestBroadcaster(t)
	sb.CreateOperation("op-1", "BTC-USD", pipelineSteps())

	sb.UpdateStepProgress("op-1", "surprise", 25, "unexpected")

	snap, _ := sb.GetSnapshot("op-1")
	require.Len(t, snap.Steps, 5)
	assert.Equal(t, "surprise", snap.Steps[4].ID)
	assert.Equal(t, "running", snap.Steps[4].Status)
}

func TestStatusBroadcasterStepMetadata(t *testing.T) {
	sb, _ := newTestBroadcaster(t)
	sb.CreateOperation("op-1", "BTC-USD", pipelineSteps())

	sb.UpdateStepWithMetadata("op-1", "clean", 60, "cleaning", map[string]interface{}{"rows_in": 100})

	snap, _ := sb.GetSnapshot("op-1")
	require.NotNil(t, snap.Steps[1].Metadata)
	assert.Equal(t, 100, snap.Steps[1].Metadata["rows_in"])
}

func TestStatusBroadcasterSkipStep(t *testing.T) {
	sb, _ := newTestBroadcaster(t)
	sb.CreateOperation("op-1", "BTC-USD", pipelineSteps())

	sb.SkipStep("op-1", "fetch", "fetch disabled for this run")

	snap, _ := sb.GetSnapshot("op-1")
	assert.Equal(t, "skipped", snap.Steps[0].Status)
	assert.Equal(t, 100, snap.Steps[0].Progress)
	assert.Equal(t, "fetch disabled for this run", snap.Steps[0].Message)
	// A skipped step still counts toward overall progress
	assert.Equal(t, 25, snap.Progress)
}

func TestStatusBroadcasterFailStep(t *testing.T) {
	sb, _ := newTestBroadcaster(t)
	sb.CreateOperation("op-1", "BTC-USD", pipelineSteps())

	sb.FailStep("op-1", "features", assert.AnError)

	snap, _ := sb.GetSnapshot("op-1")
	assert.Equal(t, "failed", snap.Steps[2].Status)
	assert.Equal(t, assert.AnError.Error(), snap.Steps[2].Error)
}

func TestStatusBroadcasterTerminalStates(t *testing.T) {
	t.Run("complete", func(t *testing.T) {
		sb, _ := newTestBroadcaster(t)
		sb.CreateOperation("op-1", "BTC-USD", pipelineSteps())
		sb.StartOperation("op-1")
		sb.UpdateStepProgress("op-1", "fetch", 50, "halfway")

		sb.CompleteOperation("op-1", "all done")

		snap, _ := sb.GetSnapshot("op-1")
		assert.Equal(t, "completed", snap.Status)
		assert.Equal(t, 100, snap.Progress)
		assert.Empty(t, snap.CurrentStep)
		require.NotNil(t, snap.CompletedAt)
		for _, step := range snap.Steps {
			assert.Equal(t, "completed", step.Status)
			assert.Equal(t, 100, step.Progress)
		}
	})

	t.Run("fail", func(t *testing.T) {
		sb, _ := newTestBroadcaster(t)
		sb.CreateOperation("op-2", "BTC-USD", pipelineSteps())
		sb.StartOperation("op-2")

		sb.FailOperation("op-2", assert.AnError)

		snap, _ := sb.GetSnapshot("op-2")
		assert.Equal(t, "failed", snap.Status)
		assert.Equal(t, assert.AnError.Error(), snap.Error)
		require.NotNil(t, snap.CompletedAt)
	})

	t.Run("cancel marks unfinished steps", func(t *testing.T) {
		sb, _ := newTestBroadcaster(t)
		sb.CreateOperation("op-3", "BTC-USD", pipelineSteps())
		sb.StartOperation("op-3")
		sb.CompleteStep("op-3", "fetch", "done")
		sb.UpdateStepProgress("op-3", "clean", 50, "cleaning")

		sb.CancelOperation("op-3")

		snap, _ := sb.GetSnapshot("op-3")
		assert.Equal(t, "cancelled", snap.Status)
		assert.Equal(t, "completed", snap.Steps[0].Status)
		assert.Equal(t, "cancelled", snap.Steps[1].Status)
		assert.Equal(t, "cancelled", snap.Steps[2].Status)
	})
}

func TestStatusBroadcasterSnapshotIsolation(t *testing.T) {
	sb, _ := newTestBroadcaster(t)
	sb.CreateOperation("op-1", "BTC-USD", pipelineSteps())

	snap, ok := sb.GetSnapshot("op-1")
	require.True(t, ok)
	snap.Status = "mutated"
	snap.Steps[0].Status = "mutated"

	fresh, _ := sb.GetSnapshot("op-1")
	assert.Equal(t, "pending", fresh.Status)
	assert.Equal(t, "pending", fresh.Steps[0].Status)

	_, ok = sb.GetSnapshot("missing")
	assert.False(t, ok)
}

func TestStatusBroadcasterGetAllSnapshots(t *testing.T) {
	sb, _ := newTestBroadcaster(t)
	sb.CreateOperation("op-1", "BTC-USD", pipelineSteps())
	sb.CreateOperation("op-2", "ETH-USD", pipelineSteps())

	snaps := sb.GetAllSnapshots()
	assert.Len(t, snaps, 2)
}

func TestStatusBroadcasterCleanup(t *testing.T) {
	sb, _ := newTestBroadcaster(t)
	sb.CreateOperation("done", "BTC-USD", pipelineSteps())
	sb.CompleteOperation("done", "finished")
	sb.CreateOperation("live", "BTC-USD", pipelineSteps())
	sb.StartOperation("live")

	time.Sleep(10 * time.Millisecond)
	sb.CleanupOldOperations(context.Background(), time.Nanosecond)

	_, ok := sb.GetSnapshot("done")
	assert.False(t, ok, "terminal run past max age must be removed")
	_, ok = sb.GetSnapshot("live")
	assert.True(t, ok, "running run must survive cleanup")
}
