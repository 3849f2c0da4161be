// Package operations provides the execution framework for end-to-end
// feature derivation runs.
//
// A run is a fixed, sequential pipeline of steps: fetch (optional),
// clean, features, export. Steps share artifacts through the
// OperationState (bar series, feature table, diagnostics, written file
// paths) instead of rediscovering each other's output on disk.
//
// Core components:
//
// Manager: orchestrates a run. It owns the registered steps, enforces a
// single active run, applies per-step timeouts, recovers step panics,
// retries steps whose errors are marked retryable, and keeps a bounded
// in-memory store of recent runs for the API layer.
//
// Step: a single unit of work. Validate decides whether the step can
// (or should) run against the current state; a skip error marks the
// step skipped without failing the run. Execute does the work.
//
// OperationState: the mutable state of one run, including per-step
// status and progress plus the shared artifacts.
//
// StatusBroadcaster: the single authority for externally visible run
// state. Every change is broadcast to the WebSocket hub as a complete
// snapshot, never a delta.
//
// Example usage:
//
//	manager := operations.NewManager(hub, operations.NewConfig(), logger)
//	manager.RegisterStep(operations.NewFetchStage(fetchCfg, paths, logger, manager.Broadcaster()))
//	manager.RegisterStep(operations.NewCleanStage(paths, logger, manager.Broadcaster()))
//	manager.RegisterStep(operations.NewFeaturesStage(pipelineCfg, logger, manager.Broadcaster()))
//	manager.RegisterStep(operations.NewExportStage(paths, pipelineCfg.ExportExcel, logger, manager.Broadcaster()))
//
//	op, err := manager.Execute(ctx, domain.OperationConfig{Symbol: "BTC-USD"})
package operations
