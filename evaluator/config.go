package evaluator

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// NewDefaultConfig creates a config with sensible defaults
func NewDefaultConfig(apiKey string) Config {
	return Config{
		APIKey:          apiKey,
		BaseURL:         DefaultBaseURL,
		Model:           DefaultModel,
		SystemPrompt:    DefaultSystemPrompt,
		HasHeader:       true,
		MaxPromptLength: DefaultMaxPromptLength,
		Timeout:         DefaultTimeout,
	}
}

// DefaultCircuitBreakerConfig trips after 5 consecutive failures or when more
// than 60% of at least 10 requests failed.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 10 && failureRatio > 0.6)
		},
	}
}

// WithCircuitBreaker enables circuit breaker with default settings
func (c Config) WithCircuitBreaker() Config {
	c.EnableCircuitBreaker = true
	c.CircuitBreakerConfig = DefaultCircuitBreakerConfig()
	return c
}

// WithCircuitBreakerConfig enables circuit breaker with custom settings
func (c Config) WithCircuitBreakerConfig(config *CircuitBreakerConfig) Config {
	c.EnableCircuitBreaker = true
	c.CircuitBreakerConfig = config
	return c
}

// WithModel sets the model identifier
func (c Config) WithModel(model string) Config {
	c.Model = model
	return c
}

// WithBaseURL points the client at another OpenAI compatible endpoint
func (c Config) WithBaseURL(baseURL string) Config {
	c.BaseURL = baseURL
	return c
}

// WithSystemPrompt replaces the system instruction
func (c Config) WithSystemPrompt(prompt string) Config {
	c.SystemPrompt = prompt
	return c
}

// WithHeader controls whether the first CSV row is treated as a header
func (c Config) WithHeader(hasHeader bool) Config {
	c.HasHeader = hasHeader
	return c
}

// WithTimeout sets the request timeout
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// WithMaxPromptLength sets the maximum prompt length, 0 disables the check
func (c Config) WithMaxPromptLength(n int) Config {
	c.MaxPromptLength = n
	return c
}

// Validate checks if the config is valid
func (c Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}

	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}

	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: invalid base URL %q", ErrInvalidConfig, c.BaseURL)
		}
	}

	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}

	if c.MaxPromptLength < 0 {
		return fmt.Errorf("%w: MaxPromptLength must be non-negative", ErrInvalidConfig)
	}

	if c.EnableCircuitBreaker && c.CircuitBreakerConfig == nil {
		return fmt.Errorf("%w: circuit breaker enabled but config is nil", ErrInvalidConfig)
	}

	return nil
}
