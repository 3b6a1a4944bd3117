// Package config assembles the run configuration of prompt-evaluator from
// defaults, an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JohnPlummer/prompt-evaluator/evaluator"
	"github.com/JohnPlummer/prompt-evaluator/hub"
)

const (
	// DefaultFile is read from the working directory when no path is given
	DefaultFile = "prompt-evaluator.yaml"
	// DefaultInputPath is the CSV read when no input is configured
	DefaultInputPath = "prompts.csv"
)

// Environment variables consulted by Load
const (
	EnvInferenceAPIKey = "GROQ_API_KEY"
	EnvHubToken        = "HUGGINGFACE_TOKEN"
	EnvHubTokenAlt     = "HF_TOKEN"
	EnvHubEndpoint     = "HF_ENDPOINT"
	EnvDatasetOwner    = "HUGGINGFACE_USERNAME"
)

// Error definitions
var (
	ErrMissingInferenceKey = errors.New("inference API key is required (set " + EnvInferenceAPIKey + ")")
	ErrMissingHubToken     = errors.New("hub token is required (set " + EnvHubToken + ")")
	ErrMissingInputPath    = errors.New("input path is required")
)

// RunConfig is everything a run needs, built once at startup
type RunConfig struct {
	InferenceAPIKey string `yaml:"inference_api_key"`
	HubToken        string `yaml:"hub_token"`
	DatasetOwner    string `yaml:"dataset_owner"`
	DatasetName     string `yaml:"dataset_name"`
	InputPath       string `yaml:"input_path"`

	Model           string        `yaml:"model"`
	BaseURL         string        `yaml:"base_url"`
	SystemPrompt    string        `yaml:"system_prompt"`
	HasHeader       bool          `yaml:"has_header"`
	MaxPromptLength int           `yaml:"max_prompt_length"`
	Timeout         time.Duration `yaml:"timeout"`

	CommitMessage string        `yaml:"commit_message"`
	HubEndpoint   string        `yaml:"hub_endpoint"`
	HubTimeout    time.Duration `yaml:"hub_timeout"`
	Private       bool          `yaml:"private"`
	Compress      bool          `yaml:"compress"`

	EnableCircuitBreaker bool   `yaml:"enable_circuit_breaker"`
	MetricsPushURL       string `yaml:"metrics_push_url"`

	// DryRun skips the upload. It is only set from the command line.
	DryRun bool `yaml:"-"`
}

// Default returns a RunConfig holding the built-in defaults
func Default() RunConfig {
	return RunConfig{
		DatasetName:     hub.DefaultDatasetName,
		InputPath:       DefaultInputPath,
		Model:           evaluator.DefaultModel,
		BaseURL:         evaluator.DefaultBaseURL,
		SystemPrompt:    evaluator.DefaultSystemPrompt,
		HasHeader:       true,
		MaxPromptLength: evaluator.DefaultMaxPromptLength,
		Timeout:         evaluator.DefaultTimeout,
		CommitMessage:   hub.DefaultCommitMessage,
		HubEndpoint:     hub.DefaultEndpoint,
		HubTimeout:      hub.DefaultTimeout,
	}
}

// Load builds a RunConfig from defaults, the YAML file at path and the
// environment, in increasing precedence. An empty path reads DefaultFile
// when it exists.
func Load(path string) (RunConfig, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return RunConfig{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return RunConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

func (c *RunConfig) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}

	set(&c.InferenceAPIKey, EnvInferenceAPIKey)
	set(&c.HubToken, EnvHubToken, EnvHubTokenAlt)
	set(&c.HubEndpoint, EnvHubEndpoint)
	set(&c.DatasetOwner, EnvDatasetOwner)
}

// Validate reports the first missing or malformed setting
func (c RunConfig) Validate() error {
	if strings.TrimSpace(c.InputPath) == "" {
		return ErrMissingInputPath
	}
	if c.InferenceAPIKey == "" {
		return ErrMissingInferenceKey
	}
	if err := c.Evaluator().Validate(); err != nil {
		return err
	}

	if c.DryRun {
		return nil
	}
	if c.HubToken == "" {
		return ErrMissingHubToken
	}
	return c.Hub().Validate()
}

// Evaluator returns the processor configuration
func (c RunConfig) Evaluator() evaluator.Config {
	cfg := evaluator.NewDefaultConfig(c.InferenceAPIKey).
		WithModel(c.Model).
		WithBaseURL(c.BaseURL).
		WithSystemPrompt(c.SystemPrompt).
		WithHeader(c.HasHeader).
		WithMaxPromptLength(c.MaxPromptLength).
		WithTimeout(c.Timeout)

	if c.EnableCircuitBreaker {
		cfg = cfg.WithCircuitBreaker()
	}
	return cfg
}

// Hub returns the uploader configuration
func (c RunConfig) Hub() hub.Config {
	cfg := hub.NewDefaultConfig(c.HubToken, c.DatasetOwner)
	cfg.Name = c.DatasetName
	cfg.CommitMessage = c.CommitMessage
	cfg.Endpoint = c.HubEndpoint
	cfg.Private = c.Private
	cfg.Compress = c.Compress
	cfg.Timeout = c.HubTimeout
	return cfg
}
