// Package services implements the business logic layer between the
// HTTP handlers and the pipeline packages.
//
// # Architecture
//
// Services follow these architectural principles:
//
//	1. Interface-driven design for testability
//	2. Context propagation for cancellation and tracing
//	3. Dependency injection for loose coupling
//	4. Domain-focused methods that encapsulate business rules
//
// # Available Services
//
// The package provides three services:
//
//	- OperationService: owns the run manager, registers the pipeline
//	  steps, and starts runs synchronously (scheduler, CLIs) or
//	  asynchronously (HTTP 202)
//	- FeatureDataService: serves the exported feature table, its column
//	  list, and run diagnostics out of the features directory
//	- HealthService: health, readiness, liveness, and version checks
//
// # Error Handling
//
// Services translate the run manager's sentinels into the boundary
// sentinels of internal/errors, so handlers render every failure
// through one RFC 7807 mapping:
//
//	op, err := svc.GetOperation(ctx, id)
//	if err != nil {
//	    render.Render(w, r, apperrors.MapOperationError(err, traceID))
//	    return
//	}
//
// # Testing
//
// Services are tested against temp-dir path layouts and a recording
// hub mock; no network or real WebSocket connections are involved.
package services
