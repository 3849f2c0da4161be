// Package config provides centralized configuration management for the feature
// pipeline. It handles loading configuration from multiple sources, validation,
// and provides a type-safe API for accessing configuration values throughout
// the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. Configuration files (YAML)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern FEAT_* for namespacing:
//
//	FEAT_SERVER_PORT=8080
//	FEAT_FETCH_SYMBOL=BTC-USD
//	FEAT_PIPELINE_BACKEND=talib
//	FEAT_LOGGING_LEVEL=info
//	FEAT_SCHEDULE_ENABLED=true
//
// # Path Management
//
// The package provides centralized path management through the Paths type,
// which handles all file system paths relative to the executable location:
//
//	paths, err := config.GetPaths()
//	rawPath := paths.GetRawCSVPath("BTC-USD")
//	featuresPath := paths.GetFeaturesCSVPath("BTC-USD")
//
// # Validation
//
// All configuration is validated at load time to ensure:
//
//	- Required fields are present
//	- Values are within acceptable ranges
//	- Derivation parameters are usable (positive windows, fast < slow)
//	- Output directories exist or can be created
//
// # Usage
//
// Load configuration at application startup:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
