// Package scheduler fires unattended pipeline refreshes on a cron
// expression.
//
// The refresh runs the full registered pipeline with configured
// defaults, in UTC, and is skipped when a run is already active rather
// than queued behind it. The scheduler only ever runs inside the server
// binary; the one-shot CLIs invoke the pipeline directly.
package scheduler
