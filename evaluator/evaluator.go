package evaluator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"

	"github.com/JohnPlummer/prompt-evaluator/metrics"
)

// Processor sends prompts to the inference API one at a time and turns every
// outcome into a ResultRecord.
type Processor struct {
	client  ChatClient
	breaker *CircuitBreakerClient
	config  Config
	metrics *metrics.Recorder
}

// Option customizes a Processor
type Option func(*Processor)

// WithMetrics records request metrics on m
func WithMetrics(m *metrics.Recorder) Option {
	return func(p *Processor) {
		p.metrics = m
	}
}

// New creates a Processor talking to the configured OpenAI compatible endpoint
func New(cfg Config, opts ...Option) (*Processor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}

	return NewWithClient(openai.NewClientWithConfig(clientCfg), cfg, opts...), nil
}

// NewWithClient creates a Processor around an existing client
func NewWithClient(client ChatClient, cfg Config, opts ...Option) *Processor {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}

	p := &Processor{
		client: client,
		config: cfg,
	}
	for _, opt := range opts {
		opt(p)
	}

	if cfg.EnableCircuitBreaker {
		p.breaker = NewCircuitBreakerClient(client, p.circuitBreakerConfig())
		p.client = p.breaker
	}

	slog.Debug("Prompt processor created",
		"model", cfg.Model,
		"base_url", cfg.BaseURL,
		"circuit_breaker", cfg.EnableCircuitBreaker)

	return p
}

// circuitBreakerConfig copies the configured settings and chains the metrics
// callback in front of any caller supplied OnStateChange.
func (p *Processor) circuitBreakerConfig() *CircuitBreakerConfig {
	cbCfg := DefaultCircuitBreakerConfig()
	if p.config.CircuitBreakerConfig != nil {
		copied := *p.config.CircuitBreakerConfig
		cbCfg = &copied
	}

	next := cbCfg.OnStateChange
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		p.metrics.RecordCircuitBreakerState(name, stateToInt(to))
		if to == gobreaker.StateOpen {
			p.metrics.RecordCircuitBreakerTrip(name)
		}
		if next != nil {
			next(name, from, to)
		}
	}
	return cbCfg
}

// Model returns the model identifier sent with every request
func (p *Processor) Model() string {
	return p.config.Model
}

// CircuitBreaker returns the breaker guarding the client, or nil when disabled
func (p *Processor) CircuitBreaker() *CircuitBreakerClient {
	return p.breaker
}

func (p *Processor) buildChatRequest(prompt string) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model: p.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: p.config.SystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	}
}

// Complete issues one synchronous chat completion for prompt.
func (p *Processor) Complete(ctx context.Context, prompt string) (Completion, error) {
	if err := ValidatePrompt(prompt, p.config.MaxPromptLength); err != nil {
		return Completion{}, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, p.buildChatRequest(prompt))
	if err != nil {
		return Completion{}, fmt.Errorf("inference request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Completion{}, ErrEmptyResponse
	}

	model := resp.Model
	if model == "" {
		model = p.config.Model
	}

	return Completion{
		Text:         resp.Choices[0].Message.Content,
		Model:        model,
		Created:      resp.Created,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// ProcessPrompt runs one prompt and returns its record. Failures are captured
// in the record instead of being returned.
func (p *Processor) ProcessPrompt(ctx context.Context, prompt string) ResultRecord {
	start := time.Now()
	completion, err := p.Complete(ctx, prompt)
	p.metrics.RecordRequestDuration(time.Since(start).Seconds(), p.config.Model)

	if err != nil {
		p.metrics.RecordRequest("error", p.config.Model)
		p.metrics.RecordError(ClassifyError(err))

		slog.Error("Error processing prompt",
			"prompt", truncate(prompt, 80),
			"error", err)

		return newFailureRecord(prompt, p.config.Model, err)
	}

	p.metrics.RecordRequest("success", p.config.Model)
	p.metrics.RecordTokensUsed("prompt", completion.InputTokens)
	p.metrics.RecordTokensUsed("completion", completion.OutputTokens)

	slog.Debug("Prompt processed",
		"prompt", truncate(prompt, 80),
		"served_by", completion.Model,
		"input_tokens", completion.InputTokens,
		"output_tokens", completion.OutputTokens)

	return newSuccessRecord(prompt, p.config.Model, completion)
}

// ProcessPrompts runs every prompt in order and returns one record per prompt
func (p *Processor) ProcessPrompts(ctx context.Context, prompts []PromptRecord) ResultBatch {
	batch := make(ResultBatch, 0, len(prompts))
	p.metrics.RecordBatchSize(len(prompts))

	for i, prompt := range prompts {
		slog.Info("Processing prompt",
			"index", i+1,
			"total", len(prompts),
			"row", prompt.Row)

		batch = append(batch, p.ProcessPrompt(ctx, prompt.Text))
	}

	slog.Info("All prompts processed",
		"total", len(batch),
		"succeeded", batch.Succeeded(),
		"failed", batch.Failed())

	return batch
}

// ProcessReader reads prompts from a CSV stream and processes them
func (p *Processor) ProcessReader(ctx context.Context, r io.Reader) (ResultBatch, error) {
	prompts, err := ReadPrompts(r, p.config.HasHeader)
	if err != nil {
		return nil, err
	}

	return p.ProcessPrompts(ctx, prompts), nil
}

// ProcessCSV processes every prompt of the CSV file at path
func (p *Processor) ProcessCSV(ctx context.Context, path string) (ResultBatch, error) {
	if path == "" {
		return nil, ErrMissingInput
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file %s: %w", path, err)
	}
	defer f.Close()

	slog.Info("Reading prompts", "path", path)

	batch, err := p.ProcessReader(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts from %s: %w", path, err)
	}
	return batch, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
