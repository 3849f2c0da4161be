// Package http implements the HTTP handlers for the feature derivation
// service. It provides a thin layer between transport and business logic:
// handlers parse and validate requests, delegate to the service layer, and
// format responses.
//
// # Architecture Principles
//
// Handlers in this package follow these principles:
//
//	1. Thin handlers - minimal logic, delegate to services
//	2. HTTP-only concerns - request parsing, response formatting
//	3. Error transformation - convert service errors to HTTP responses
//	4. No business logic - all logic belongs in the service layer
//
// # Request Flow
//
// A typical request flows through these layers:
//
//	HTTP Request → Chi Router → Middleware → Handler → Service
//	                                              ↓
//	HTTP Response ← Handler ← Service Response ←─┘
//
// Starting a run is the one asymmetric case: POST /api/operations returns
// 202 as soon as the run is registered, and execution continues on a
// context detached from the request. Progress reaches clients as full
// operation snapshots over the /ws WebSocket, not through polling this
// package.
//
// # Error Handling
//
// Service errors surface as RFC 7807 problem details. Handlers translate
// the sentinel errors from internal/errors through MapOperationError:
//
//	{
//	    "type": "/errors/operation/already-running",
//	    "title": "Operation Already Running",
//	    "status": 409,
//	    "detail": "Another operation is currently running. ...",
//	    "running_operation_id": "2f2e...",
//	    "trace_id": "a1b4..."
//	}
//
// # Testing
//
// Handlers are tested with httptest against mocked service interfaces:
// each test mounts the handler's Routes() on a chi router with RequestID
// and Recoverer, performs real HTTP round trips, and asserts on status
// codes and decoded JSON bodies.
package http
