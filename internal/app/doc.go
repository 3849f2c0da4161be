// Package app provides application initialization and lifecycle
// management for the feature derivation server. It wires configuration,
// services, transport, and observability together and owns graceful
// shutdown.
//
// # Initialization Flow
//
// The typical initialization sequence:
//
//	1. Load configuration from environment and files
//	2. Initialize logging and resolve data directories
//	3. Initialize OpenTelemetry providers and metric singletons
//	4. Create the WebSocket hub and services
//	5. Set up HTTP handlers and middleware
//	6. Configure the HTTP server
//
// # Usage
//
// The main entry point is typically:
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := application.Run(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Graceful Shutdown
//
// The package handles SIGINT and SIGTERM signals to ensure:
//
//	- Active requests are completed within the shutdown timeout
//	- The refresh scheduler finishes or abandons its current run
//	- In-flight operations are cancelled
//	- WebSocket connections are closed cleanly
//	- Final metrics are flushed
//
// # Error Handling
//
// All initialization errors are returned to the caller for proper
// handling. The app does not call os.Exit() directly, allowing
// the main function to control the exit process.
package app
