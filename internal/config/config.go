package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Security  SecurityConfig  `yaml:"security" envconfig:"SECURITY"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	WebSocket WebSocketConfig `yaml:"websocket" envconfig:"WEBSOCKET"`
	Fetch     FetchConfig     `yaml:"fetch" envconfig:"FETCH"`
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Schedule  ScheduleConfig  `yaml:"schedule" envconfig:"SCHEDULE"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port             int           `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout      time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes   int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES" default:"1048576"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	OperationTimeout time.Duration `yaml:"operation_timeout" envconfig:"OPERATION_TIMEOUT" default:"30m"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8080"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS" default:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"100"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"50"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format      string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output      string `yaml:"output" envconfig:"OUTPUT" default:"both"`
	FilePath    string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/app.log"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT" default:"true"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	ExecutableDir string `yaml:"executable_dir" envconfig:"EXECUTABLE_DIR"`
	DataDir       string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	LogsDir       string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE" default:"1024"`
	WriteBufferSize int           `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE" default:"1024"`
	PingPeriod      time.Duration `yaml:"ping_period" envconfig:"PING_PERIOD" default:"30s"`
	PongWait        time.Duration `yaml:"pong_wait" envconfig:"PONG_WAIT" default:"60s"`
}

// FetchConfig contains bar acquisition configuration
type FetchConfig struct {
	Symbol         string        `yaml:"symbol" envconfig:"SYMBOL" default:"BTC-USD"`
	BaseURL        string        `yaml:"base_url" envconfig:"BASE_URL" default:"https://api.exchange.coinbase.com"`
	LookbackYears  int           `yaml:"lookback_years" envconfig:"LOOKBACK_YEARS" default:"5"`
	PageSize       int           `yaml:"page_size" envconfig:"PAGE_SIZE" default:"300"`
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" default:"30s"`
	RPS            float64       `yaml:"rps" envconfig:"RPS" default:"3"`
	MaxRetries     int           `yaml:"max_retries" envconfig:"MAX_RETRIES" default:"4"`
}

// PipelineConfig contains feature derivation configuration.
// Zero-length slices fall back to the engine defaults.
type PipelineConfig struct {
	Backend         string `yaml:"backend" envconfig:"BACKEND" default:"native"`
	Parallel        bool   `yaml:"parallel" envconfig:"PARALLEL" default:"true"`
	SMAWindows      []int  `yaml:"sma_windows" envconfig:"SMA_WINDOWS" default:"5,10"`
	EMASpans        []int  `yaml:"ema_spans" envconfig:"EMA_SPANS" default:"5,10"`
	RSIPeriod       int    `yaml:"rsi_period" envconfig:"RSI_PERIOD" default:"14"`
	MACDFast        int    `yaml:"macd_fast" envconfig:"MACD_FAST" default:"12"`
	MACDSlow        int    `yaml:"macd_slow" envconfig:"MACD_SLOW" default:"26"`
	MACDSignal      int    `yaml:"macd_signal" envconfig:"MACD_SIGNAL" default:"9"`
	BollingerWindow int    `yaml:"bollinger_window" envconfig:"BOLLINGER_WINDOW" default:"20"`
	BollingerK      float64 `yaml:"bollinger_k" envconfig:"BOLLINGER_K" default:"2"`
	CloseLags       []int  `yaml:"close_lags" envconfig:"CLOSE_LAGS" default:"1,2,3"`
	ReturnLags      []int  `yaml:"return_lags" envconfig:"RETURN_LAGS" default:"1"`
	VolumeLags      []int  `yaml:"volume_lags" envconfig:"VOLUME_LAGS" default:"1"`
	ExportExcel     bool   `yaml:"export_excel" envconfig:"EXPORT_EXCEL" default:"true"`
}

// ScheduleConfig contains the cron refresh configuration
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED" default:"false"`
	Spec    string `yaml:"spec" envconfig:"SPEC" default:"30 0 * * *"`
}

// Load loads configuration from environment variables and config file
func Load() (*Config, error) {
	var cfg Config

	// Load from environment variables first
	if err := envconfig.Process("FEAT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// Load from config file if exists
	configFile := getConfigFilePath()
	if configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	// Resolve relative paths
	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// Validate paths
	if err := cfg.ValidatePaths(); err != nil {
		return nil, fmt.Errorf("path validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config (env takes precedence).
// Only fields envconfig left at their zero value pick up the file value.
func mergeConfigs(fileConfig, envConfig Config) Config {
	if envConfig.Server.Port == 0 {
		envConfig.Server.Port = fileConfig.Server.Port
	}
	if envConfig.Server.OperationTimeout == 0 {
		envConfig.Server.OperationTimeout = fileConfig.Server.OperationTimeout
	}
	if len(envConfig.Security.AllowedOrigins) == 0 {
		envConfig.Security.AllowedOrigins = fileConfig.Security.AllowedOrigins
	}
	if envConfig.Logging.Level == "" {
		envConfig.Logging.Level = fileConfig.Logging.Level
	}
	if envConfig.Fetch.Symbol == "" {
		envConfig.Fetch.Symbol = fileConfig.Fetch.Symbol
	}
	if envConfig.Fetch.BaseURL == "" {
		envConfig.Fetch.BaseURL = fileConfig.Fetch.BaseURL
	}
	if envConfig.Pipeline.Backend == "" {
		envConfig.Pipeline.Backend = fileConfig.Pipeline.Backend
	}
	if len(envConfig.Pipeline.SMAWindows) == 0 {
		envConfig.Pipeline.SMAWindows = fileConfig.Pipeline.SMAWindows
	}
	if len(envConfig.Pipeline.EMASpans) == 0 {
		envConfig.Pipeline.EMASpans = fileConfig.Pipeline.EMASpans
	}
	if len(envConfig.Pipeline.CloseLags) == 0 {
		envConfig.Pipeline.CloseLags = fileConfig.Pipeline.CloseLags
	}
	if envConfig.Schedule.Spec == "" {
		envConfig.Schedule.Spec = fileConfig.Schedule.Spec
	}

	return envConfig
}

// resolvePaths sets up the executable directory and validates paths
func (c *Config) resolvePaths() error {
	paths, err := GetPaths()
	if err != nil {
		return fmt.Errorf("failed to get paths: %w", err)
	}

	c.Paths.ExecutableDir = paths.ExecutableDir

	return nil
}

// ValidatePaths validates that critical paths exist or can be created
func (c *Config) ValidatePaths() error {
	paths, err := GetPaths()
	if err != nil {
		return fmt.Errorf("failed to get paths: %w", err)
	}

	if err := paths.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to ensure directories: %w", err)
	}

	paths.LogPathResolution()

	return nil
}

// GetDataDir returns the resolved data directory path
func (c *Config) GetDataDir() string {
	paths, err := GetPaths()
	if err != nil {
		if filepath.IsAbs(c.Paths.DataDir) {
			return c.Paths.DataDir
		}
		return filepath.Join(c.Paths.ExecutableDir, c.Paths.DataDir)
	}
	return paths.DataDir
}

// GetLogsDir returns the resolved logs directory path
func (c *Config) GetLogsDir() string {
	paths, err := GetPaths()
	if err != nil {
		if filepath.IsAbs(c.Paths.LogsDir) {
			return c.Paths.LogsDir
		}
		return filepath.Join(c.Paths.ExecutableDir, c.Paths.LogsDir)
	}
	return paths.LogsDir
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	if c.Fetch.PageSize <= 0 {
		return fmt.Errorf("fetch page size must be positive: %d", c.Fetch.PageSize)
	}

	if c.Fetch.RPS <= 0 {
		return fmt.Errorf("fetch rps must be positive: %g", c.Fetch.RPS)
	}

	if err := c.Pipeline.validate(); err != nil {
		return err
	}

	// Always JSON format with dual output
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	if c.Logging.Output != "both" && c.Logging.Output != "file" {
		c.Logging.Output = "both"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/app.log"
	}

	return nil
}

// validate checks the derivation parameters that would otherwise surface
// as indicator failures deep inside a run.
func (p *PipelineConfig) validate() error {
	for _, w := range p.SMAWindows {
		if w < 1 {
			return fmt.Errorf("sma window must be at least 1: %d", w)
		}
	}
	for _, s := range p.EMASpans {
		if s < 1 {
			return fmt.Errorf("ema span must be at least 1: %d", s)
		}
	}
	if p.RSIPeriod < 1 {
		return fmt.Errorf("rsi period must be at least 1: %d", p.RSIPeriod)
	}
	if p.MACDFast < 1 || p.MACDSlow < 1 || p.MACDSignal < 1 {
		return fmt.Errorf("macd periods must be at least 1: %d/%d/%d",
			p.MACDFast, p.MACDSlow, p.MACDSignal)
	}
	if p.MACDFast >= p.MACDSlow {
		return fmt.Errorf("macd fast period %d must be shorter than slow period %d",
			p.MACDFast, p.MACDSlow)
	}
	if p.BollingerWindow < 2 {
		return fmt.Errorf("bollinger window must be at least 2: %d", p.BollingerWindow)
	}
	if p.BollingerK <= 0 {
		return fmt.Errorf("bollinger k must be positive: %g", p.BollingerK)
	}
	for _, lag := range p.CloseLags {
		if lag < 1 {
			return fmt.Errorf("close lag must be at least 1: %d", lag)
		}
	}
	for _, lag := range p.ReturnLags {
		if lag < 1 {
			return fmt.Errorf("return lag must be at least 1: %d", lag)
		}
	}
	for _, lag := range p.VolumeLags {
		if lag < 1 {
			return fmt.Errorf("volume lag must be at least 1: %d", lag)
		}
	}
	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	// Check for config file in common locations
	locations := []string{
		"config.yaml",
		"configs/config.yaml",
		"../configs/config.yaml",
		"../../configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:             8080,
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     15 * time.Second,
			IdleTimeout:      60 * time.Second,
			MaxHeaderBytes:   1 << 20, // 1MB
			ShutdownTimeout:  30 * time.Second,
			OperationTimeout: 30 * time.Minute,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "json",
			Output:      "both",
			FilePath:    "logs/app.log",
			Development: true,
		},
		Paths: PathsConfig{
			DataDir: "data",
			LogsDir: "logs",
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			PingPeriod:      30 * time.Second,
			PongWait:        60 * time.Second,
		},
		Fetch: FetchConfig{
			Symbol:         "BTC-USD",
			BaseURL:        "https://api.exchange.coinbase.com",
			LookbackYears:  5,
			PageSize:       300,
			RequestTimeout: 30 * time.Second,
			RPS:            3,
			MaxRetries:     4,
		},
		Pipeline: PipelineConfig{
			Backend:         "native",
			Parallel:        true,
			SMAWindows:      []int{5, 10},
			EMASpans:        []int{5, 10},
			RSIPeriod:       14,
			MACDFast:        12,
			MACDSlow:        26,
			MACDSignal:      9,
			BollingerWindow: 20,
			BollingerK:      2,
			CloseLags:       []int{1, 2, 3},
			ReturnLags:      []int{1},
			VolumeLags:      []int{1},
			ExportExcel:     true,
		},
		Schedule: ScheduleConfig{
			Enabled: false,
			Spec:    "30 0 * * *",
		},
	}
}
