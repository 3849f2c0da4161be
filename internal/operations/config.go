package operations

import (
	"time"

	"featcli/pkg/contracts/domain"
)

// DefaultStepTimeout is applied to any step that has no explicit
// timeout configured.
const DefaultStepTimeout = 10 * time.Minute

// RetryConfig defines retry behavior for failed steps
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// NewRetryConfig creates a retry configuration with default values
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Config holds execution settings for the run manager
type Config struct {
	// StepTimeouts maps step IDs to their execution timeouts
	StepTimeouts map[string]time.Duration

	// RetryConfig controls retries for retryable step failures
	RetryConfig RetryConfig

	// ContinueOnError lets a run proceed past a failed step
	ContinueOnError bool

	// MaxStored bounds how many finished runs are kept in memory
	MaxStored int
}

// NewConfig creates a run configuration with default values
func NewConfig() *Config {
	return &Config{
		StepTimeouts: map[string]time.Duration{
			domain.StepIDFetch:    15 * time.Minute,
			domain.StepIDClean:    2 * time.Minute,
			domain.StepIDFeatures: 5 * time.Minute,
			domain.StepIDExport:   2 * time.Minute,
		},
		RetryConfig:     NewRetryConfig(),
		ContinueOnError: false,
		MaxStored:       32,
	}
}

// GetStepTimeout returns the timeout for the given step
func (c *Config) GetStepTimeout(stepID string) time.Duration {
	if timeout, ok := c.StepTimeouts[stepID]; ok {
		return timeout
	}
	return DefaultStepTimeout
}

// SetStepTimeout sets the timeout for the given step
func (c *Config) SetStepTimeout(stepID string, timeout time.Duration) {
	if c.StepTimeouts == nil {
		c.StepTimeouts = make(map[string]time.Duration)
	}
	c.StepTimeouts[stepID] = timeout
}

// ConfigBuilder provides a fluent interface for building run configs
type ConfigBuilder struct {
	config *Config
}

// NewConfigBuilder creates a new configuration builder
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{config: NewConfig()}
}

// WithStepTimeout sets a timeout for a specific step
func (b *ConfigBuilder) WithStepTimeout(stepID string, timeout time.Duration) *ConfigBuilder {
	b.config.SetStepTimeout(stepID, timeout)
	return b
}

// WithRetryConfig sets the retry configuration
func (b *ConfigBuilder) WithRetryConfig(rc RetryConfig) *ConfigBuilder {
	b.config.RetryConfig = rc
	return b
}

// WithContinueOnError sets whether runs continue past failed steps
func (b *ConfigBuilder) WithContinueOnError(continueOnError bool) *ConfigBuilder {
	b.config.ContinueOnError = continueOnError
	return b
}

// WithMaxStored sets how many finished runs are retained
func (b *ConfigBuilder) WithMaxStored(n int) *ConfigBuilder {
	if n > 0 {
		b.config.MaxStored = n
	}
	return b
}

// Build returns the configured Config
func (b *ConfigBuilder) Build() *Config {
	return b.config
}
