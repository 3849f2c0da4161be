package config

import "time"

// Application constants for the feature pipeline system
const (
	// Application Info
	AppName    = "featcli"
	AppVersion = "1.2.0"

	// Rate Limiting
	DefaultRateLimit = 100 // requests per minute
	DefaultBurstSize = 50

	// Network Timeouts
	DefaultHTTPTimeout  = 30 * time.Second
	WebSocketPingPeriod = 30 * time.Second
	WebSocketPongWait   = 60 * time.Second

	// File Paths (relative to executable)
	DefaultDataDir      = "data"
	DefaultLogsDir      = "logs"
	DefaultRawDir       = "data/raw"
	DefaultProcessedDir = "data/processed"
	DefaultFeaturesDir  = "data/features"

	// Operation Timeouts
	DefaultOperationTimeout = 30 * time.Minute
	FetchTimeout            = 15 * time.Minute
	CleanTimeout            = 5 * time.Minute
	FeaturesTimeout         = 10 * time.Minute
	ExportTimeout           = 5 * time.Minute

	// WebSocket Buffer Sizes
	WebSocketReadBufferSize  = 1024
	WebSocketWriteBufferSize = 1024

	// Log Settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	MaxLogFileSize   = 100 * 1024 * 1024 // 100MB
)

// URLs and Endpoints
const (
	// API Endpoints (internal)
	APIBasePath        = "/api"
	OperationsEndpoint = "/api/operations"
	FeaturesEndpoint   = "/api/features"
	HealthEndpoint     = "/api/health"
	MetricsEndpoint    = "/metrics"

	// WebSocket Endpoints
	WebSocketEndpoint = "/ws"
)
