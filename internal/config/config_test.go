package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad tests the Load function with various scenarios
func TestLoad(t *testing.T) {
	// Save original environment to restore later
	originalEnv := make(map[string]string)
	envVars := []string{
		"FEAT_SERVER_PORT", "FEAT_SERVER_READ_TIMEOUT", "FEAT_SERVER_WRITE_TIMEOUT",
		"FEAT_SECURITY_ALLOWED_ORIGINS", "FEAT_SECURITY_ENABLE_CORS",
		"FEAT_LOGGING_LEVEL", "FEAT_LOGGING_FORMAT", "FEAT_LOGGING_OUTPUT",
		"FEAT_FETCH_SYMBOL", "FEAT_FETCH_PAGE_SIZE", "FEAT_FETCH_RPS",
		"FEAT_PIPELINE_BACKEND", "FEAT_PIPELINE_SMA_WINDOWS", "FEAT_PIPELINE_RSI_PERIOD",
		"FEAT_PIPELINE_MACD_FAST", "FEAT_PIPELINE_MACD_SLOW",
		"FEAT_SCHEDULE_ENABLED", "FEAT_SCHEDULE_SPEC",
	}

	for _, envVar := range envVars {
		originalEnv[envVar] = os.Getenv(envVar)
	}

	defer func() {
		for _, envVar := range envVars {
			if val, exists := originalEnv[envVar]; exists && val != "" {
				os.Setenv(envVar, val)
			} else {
				os.Unsetenv(envVar)
			}
		}
	}()

	tests := []struct {
		name        string
		setupEnv    func()
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "default configuration with no env vars",
			setupEnv: func() {
				for _, envVar := range envVars {
					os.Unsetenv(envVar)
				}
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, 30*time.Minute, cfg.Server.OperationTimeout)

				assert.Equal(t, []string{"http://localhost:8080"}, cfg.Security.AllowedOrigins)
				assert.True(t, cfg.Security.EnableCORS)
				assert.Equal(t, 100.0, cfg.Security.RateLimit.RPS)

				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "json", cfg.Logging.Format)
				assert.Equal(t, "both", cfg.Logging.Output)

				assert.Equal(t, "BTC-USD", cfg.Fetch.Symbol)
				assert.Equal(t, 300, cfg.Fetch.PageSize)
				assert.Equal(t, 5, cfg.Fetch.LookbackYears)

				assert.Equal(t, "native", cfg.Pipeline.Backend)
				assert.True(t, cfg.Pipeline.Parallel)
				assert.Equal(t, []int{5, 10}, cfg.Pipeline.SMAWindows)
				assert.Equal(t, []int{5, 10}, cfg.Pipeline.EMASpans)
				assert.Equal(t, 14, cfg.Pipeline.RSIPeriod)
				assert.Equal(t, 12, cfg.Pipeline.MACDFast)
				assert.Equal(t, 26, cfg.Pipeline.MACDSlow)
				assert.Equal(t, 9, cfg.Pipeline.MACDSignal)
				assert.Equal(t, 20, cfg.Pipeline.BollingerWindow)
				assert.Equal(t, 2.0, cfg.Pipeline.BollingerK)
				assert.Equal(t, []int{1, 2, 3}, cfg.Pipeline.CloseLags)

				assert.False(t, cfg.Schedule.Enabled)
				assert.Equal(t, "30 0 * * *", cfg.Schedule.Spec)
			},
		},
		{
			name: "custom environment variables",
			setupEnv: func() {
				os.Setenv("FEAT_SERVER_PORT", "9090")
				os.Setenv("FEAT_FETCH_SYMBOL", "ETH-USD")
				os.Setenv("FEAT_PIPELINE_BACKEND", "talib")
				os.Setenv("FEAT_PIPELINE_SMA_WINDOWS", "3,7,21")
				os.Setenv("FEAT_SCHEDULE_ENABLED", "true")
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, "ETH-USD", cfg.Fetch.Symbol)
				assert.Equal(t, "talib", cfg.Pipeline.Backend)
				assert.Equal(t, []int{3, 7, 21}, cfg.Pipeline.SMAWindows)
				assert.True(t, cfg.Schedule.Enabled)
			},
		},
		{
			name: "invalid port number",
			setupEnv: func() {
				os.Setenv("FEAT_SERVER_PORT", "99999")
			},
			wantErr: true,
		},
		{
			name: "zero fetch page size",
			setupEnv: func() {
				os.Setenv("FEAT_FETCH_PAGE_SIZE", "0")
			},
			wantErr: true,
		},
		{
			name: "macd fast not shorter than slow",
			setupEnv: func() {
				os.Setenv("FEAT_PIPELINE_MACD_FAST", "26")
				os.Setenv("FEAT_PIPELINE_MACD_SLOW", "12")
			},
			wantErr: true,
		},
		{
			name: "zero rsi period",
			setupEnv: func() {
				os.Setenv("FEAT_PIPELINE_RSI_PERIOD", "0")
			},
			wantErr: true,
		},
		{
			name: "empty allowed origins",
			setupEnv: func() {
				os.Setenv("FEAT_SECURITY_ALLOWED_ORIGINS", "")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, envVar := range envVars {
				os.Unsetenv(envVar)
			}

			if tt.setupEnv != nil {
				tt.setupEnv()
			}

			cfg, err := Load()

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

// TestLoadFromFile tests the loadFromFile function
func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name        string
		fileContent string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "valid YAML config",
			fileContent: `
server:
  port: 9000
  read_timeout: 25s
fetch:
  symbol: SOL-USD
  page_size: 200
pipeline:
  backend: talib
  rsi_period: 21
schedule:
  enabled: true
  spec: "0 1 * * *"
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, 25*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, "SOL-USD", cfg.Fetch.Symbol)
				assert.Equal(t, 200, cfg.Fetch.PageSize)
				assert.Equal(t, "talib", cfg.Pipeline.Backend)
				assert.Equal(t, 21, cfg.Pipeline.RSIPeriod)
				assert.True(t, cfg.Schedule.Enabled)
				assert.Equal(t, "0 1 * * *", cfg.Schedule.Spec)
			},
		},
		{
			name:        "invalid YAML syntax",
			fileContent: "invalid: yaml: content: [unclosed",
			wantErr:     true,
		},
		{
			name: "partial config",
			fileContent: `
server:
  port: 8888
pipeline:
  bollinger_window: 30
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8888, cfg.Server.Port)
				assert.Equal(t, 30, cfg.Pipeline.BollingerWindow)
				assert.Equal(t, time.Duration(0), cfg.Server.ReadTimeout)
				assert.Empty(t, cfg.Fetch.Symbol)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			configFile := filepath.Join(tempDir, "config.yaml")
			require.NoError(t, os.WriteFile(configFile, []byte(tt.fileContent), 0644))

			cfg, err := loadFromFile(configFile)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}

	t.Run("non-existent file", func(t *testing.T) {
		_, err := loadFromFile("/non/existent/file.yaml")
		assert.Error(t, err)
	})
}

// TestMergeConfigs tests the mergeConfigs function
func TestMergeConfigs(t *testing.T) {
	fileConfig := Config{
		Server: ServerConfig{
			Port:             6060,
			OperationTimeout: 20 * time.Minute,
		},
		Logging: LoggingConfig{Level: "error"},
		Fetch: FetchConfig{
			Symbol:  "ETH-USD",
			BaseURL: "https://file.example.com",
		},
		Pipeline: PipelineConfig{
			Backend:    "talib",
			SMAWindows: []int{7, 14},
			EMASpans:   []int{7},
			CloseLags:  []int{1, 5},
		},
		Schedule: ScheduleConfig{Spec: "0 2 * * *"},
	}

	envConfig := Config{
		Server:   ServerConfig{Port: 7070},
		Logging:  LoggingConfig{Level: "debug"},
		Fetch:    FetchConfig{Symbol: "BTC-USD"},
		Pipeline: PipelineConfig{Backend: "native"},
	}

	merged := mergeConfigs(fileConfig, envConfig)

	// Environment takes precedence when set
	assert.Equal(t, 7070, merged.Server.Port)
	assert.Equal(t, "debug", merged.Logging.Level)
	assert.Equal(t, "BTC-USD", merged.Fetch.Symbol)
	assert.Equal(t, "native", merged.Pipeline.Backend)

	// File config fills fields env left at zero
	assert.Equal(t, 20*time.Minute, merged.Server.OperationTimeout)
	assert.Equal(t, "https://file.example.com", merged.Fetch.BaseURL)
	assert.Equal(t, []int{7, 14}, merged.Pipeline.SMAWindows)
	assert.Equal(t, []int{7}, merged.Pipeline.EMASpans)
	assert.Equal(t, []int{1, 5}, merged.Pipeline.CloseLags)
	assert.Equal(t, "0 2 * * *", merged.Schedule.Spec)
}

// TestValidate tests the validate function
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid configuration",
			mutate: func(*Config) {},
		},
		{
			name:    "invalid port - zero",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: true,
			errMsg:  "invalid server port: 0",
		},
		{
			name:    "invalid port - too high",
			mutate:  func(c *Config) { c.Server.Port = 99999 },
			wantErr: true,
			errMsg:  "invalid server port: 99999",
		},
		{
			name:    "invalid read timeout",
			mutate:  func(c *Config) { c.Server.ReadTimeout = -1 * time.Second },
			wantErr: true,
			errMsg:  "server read timeout must be positive",
		},
		{
			name:    "empty allowed origins",
			mutate:  func(c *Config) { c.Security.AllowedOrigins = nil },
			wantErr: true,
			errMsg:  "at least one allowed origin",
		},
		{
			name:    "negative fetch rps",
			mutate:  func(c *Config) { c.Fetch.RPS = -1 },
			wantErr: true,
			errMsg:  "fetch rps must be positive",
		},
		{
			name:    "zero sma window",
			mutate:  func(c *Config) { c.Pipeline.SMAWindows = []int{5, 0} },
			wantErr: true,
			errMsg:  "sma window must be at least 1",
		},
		{
			name:    "zero ema span",
			mutate:  func(c *Config) { c.Pipeline.EMASpans = []int{0} },
			wantErr: true,
			errMsg:  "ema span must be at least 1",
		},
		{
			name:    "macd fast equals slow",
			mutate:  func(c *Config) { c.Pipeline.MACDFast = 26 },
			wantErr: true,
			errMsg:  "must be shorter than slow",
		},
		{
			name:    "bollinger window too small",
			mutate:  func(c *Config) { c.Pipeline.BollingerWindow = 1 },
			wantErr: true,
			errMsg:  "bollinger window must be at least 2",
		},
		{
			name:    "non-positive bollinger k",
			mutate:  func(c *Config) { c.Pipeline.BollingerK = 0 },
			wantErr: true,
			errMsg:  "bollinger k must be positive",
		},
		{
			name:    "zero close lag",
			mutate:  func(c *Config) { c.Pipeline.CloseLags = []int{0} },
			wantErr: true,
			errMsg:  "close lag must be at least 1",
		},
		{
			name: "logging format auto-correction",
			mutate: func(c *Config) {
				c.Logging.Format = "text"
				c.Logging.Output = "console"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.validate()

			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, "json", cfg.Logging.Format)
			assert.Contains(t, []string{"both", "file"}, cfg.Logging.Output)
		})
	}
}

// TestDefault tests the Default function
func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 1<<20, cfg.Server.MaxHeaderBytes)

	assert.Equal(t, "BTC-USD", cfg.Fetch.Symbol)
	assert.Equal(t, "https://api.exchange.coinbase.com", cfg.Fetch.BaseURL)
	assert.Equal(t, 3.0, cfg.Fetch.RPS)
	assert.Equal(t, 4, cfg.Fetch.MaxRetries)

	assert.Equal(t, "native", cfg.Pipeline.Backend)
	assert.Equal(t, []int{1}, cfg.Pipeline.ReturnLags)
	assert.Equal(t, []int{1}, cfg.Pipeline.VolumeLags)
	assert.True(t, cfg.Pipeline.ExportExcel)

	// Default config must pass its own validation
	assert.NoError(t, cfg.validate())
}

// TestGetConfigFilePath tests the getConfigFilePath function
func TestGetConfigFilePath(t *testing.T) {
	t.Run("no config file exists", func(t *testing.T) {
		tempDir := t.TempDir()
		originalDir, _ := os.Getwd()
		defer os.Chdir(originalDir)
		os.Chdir(tempDir)

		path := getConfigFilePath()
		assert.Empty(t, path)
	})

	t.Run("config file in current directory", func(t *testing.T) {
		tempDir := t.TempDir()
		originalDir, _ := os.Getwd()
		defer os.Chdir(originalDir)
		os.Chdir(tempDir)

		configFile := filepath.Join(tempDir, "config.yaml")
		require.NoError(t, os.WriteFile(configFile, []byte("test"), 0644))

		path := getConfigFilePath()
		assert.Equal(t, "config.yaml", path)
	})

	t.Run("config file in configs directory", func(t *testing.T) {
		tempDir := t.TempDir()
		originalDir, _ := os.Getwd()
		defer os.Chdir(originalDir)
		os.Chdir(tempDir)

		configsDir := filepath.Join(tempDir, "configs")
		require.NoError(t, os.MkdirAll(configsDir, 0755))
		configFile := filepath.Join(configsDir, "config.yaml")
		require.NoError(t, os.WriteFile(configFile, []byte("test"), 0644))

		path := getConfigFilePath()
		assert.Equal(t, "configs/config.yaml", path)
	})
}

// TestEnvironmentVariableParsing tests environment variable parsing edge cases
func TestEnvironmentVariableParsing(t *testing.T) {
	originalEnv := map[string]string{
		"FEAT_SECURITY_ALLOWED_ORIGINS": os.Getenv("FEAT_SECURITY_ALLOWED_ORIGINS"),
		"FEAT_SECURITY_RATE_LIMIT_RPS":  os.Getenv("FEAT_SECURITY_RATE_LIMIT_RPS"),
		"FEAT_FETCH_REQUEST_TIMEOUT":    os.Getenv("FEAT_FETCH_REQUEST_TIMEOUT"),
		"FEAT_PIPELINE_BOLLINGER_K":     os.Getenv("FEAT_PIPELINE_BOLLINGER_K"),
		"FEAT_PIPELINE_PARALLEL":        os.Getenv("FEAT_PIPELINE_PARALLEL"),
	}

	defer func() {
		for key, val := range originalEnv {
			if val == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, val)
			}
		}
	}()

	tests := []struct {
		name     string
		setupEnv func()
		validate func(*testing.T, *Config)
	}{
		{
			name: "comma-separated origins",
			setupEnv: func() {
				os.Setenv("FEAT_SECURITY_ALLOWED_ORIGINS", "http://localhost:3000,https://app.example.com")
			},
			validate: func(t *testing.T, cfg *Config) {
				expected := []string{"http://localhost:3000", "https://app.example.com"}
				assert.Equal(t, expected, cfg.Security.AllowedOrigins)
			},
		},
		{
			name: "float bollinger k",
			setupEnv: func() {
				os.Setenv("FEAT_PIPELINE_BOLLINGER_K", "2.5")
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 2.5, cfg.Pipeline.BollingerK)
			},
		},
		{
			name: "duration parsing",
			setupEnv: func() {
				os.Setenv("FEAT_FETCH_REQUEST_TIMEOUT", "1m30s")
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 90*time.Second, cfg.Fetch.RequestTimeout)
			},
		},
		{
			name: "boolean parsing",
			setupEnv: func() {
				os.Setenv("FEAT_PIPELINE_PARALLEL", "false")
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.False(t, cfg.Pipeline.Parallel)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key := range originalEnv {
				os.Unsetenv(key)
			}

			if tt.setupEnv != nil {
				tt.setupEnv()
			}

			cfg, err := Load()
			require.NoError(t, err)

			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}
