package evaluator

import (
	"context"
	"errors"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

// PromptRecord is one non-empty data row of the input file
type PromptRecord struct {
	Row  int    // 1-based line of the row in the input file
	Text string // Prompt text from the first column
}

// Metadata describes a successful inference request
type Metadata struct {
	Timestamp    int64 `json:"timestamp"`     // Provider creation time (unix seconds)
	InputTokens  int   `json:"input_tokens"`  // Prompt tokens reported by the provider
	OutputTokens int   `json:"output_tokens"` // Completion tokens reported by the provider
}

// ResultRecord is the outcome of processing one prompt.
//
// A successful record carries Response and Metadata and has an empty Error.
// A failed record has a nil Response, a nil Metadata and a non-empty Error.
// Records are built through newSuccessRecord and newFailureRecord only.
type ResultRecord struct {
	Prompt   string    `json:"prompt"`
	Response *string   `json:"response"`
	Model    string    `json:"model"`
	Error    string    `json:"error,omitempty"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Succeeded reports whether the record holds a model response
func (r ResultRecord) Succeeded() bool {
	return r.Response != nil && r.Error == ""
}

// ResponseText returns the response, or an empty string for failed records
func (r ResultRecord) ResponseText() string {
	if r.Response == nil {
		return ""
	}
	return *r.Response
}

func newSuccessRecord(prompt, model string, c Completion) ResultRecord {
	text := c.Text
	return ResultRecord{
		Prompt:   prompt,
		Response: &text,
		Model:    model,
		Metadata: &Metadata{
			Timestamp:    c.Created,
			InputTokens:  max(c.InputTokens, 0),
			OutputTokens: max(c.OutputTokens, 0),
		},
	}
}

func newFailureRecord(prompt, model string, err error) ResultRecord {
	msg := "unknown error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return ResultRecord{
		Prompt: prompt,
		Model:  model,
		Error:  msg,
	}
}

// ResultBatch is the ordered set of records of one run, one per input row
type ResultBatch []ResultRecord

// Prompts returns the prompt of every record in batch order
func (b ResultBatch) Prompts() []string {
	prompts := make([]string, len(b))
	for i, r := range b {
		prompts[i] = r.Prompt
	}
	return prompts
}

// Succeeded counts successful records
func (b ResultBatch) Succeeded() int {
	n := 0
	for _, r := range b {
		if r.Succeeded() {
			n++
		}
	}
	return n
}

// Failed counts failed records
func (b ResultBatch) Failed() int {
	return len(b) - b.Succeeded()
}

// Completion is the successful outcome of a single inference request
type Completion struct {
	Text         string // Model response text
	Model        string // Model that served the request
	Created      int64  // Provider creation time (unix seconds)
	InputTokens  int    // Prompt tokens
	OutputTokens int    // Completion tokens
}

// ChatClient defines the interface for interacting with an OpenAI compatible
// chat completion API
type ChatClient interface {
	CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// BatchProcessor turns an input file into a ResultBatch
type BatchProcessor interface {
	ProcessCSV(ctx context.Context, path string) (ResultBatch, error)
}

// Publisher hands a finished batch to its destination
type Publisher interface {
	Publish(ctx context.Context, batch ResultBatch) error
}

// Config holds the configuration for the processor
type Config struct {
	APIKey               string                // Inference API key (required)
	BaseURL              string                // OpenAI compatible endpoint
	Model                string                // Model identifier sent with every request
	SystemPrompt         string                // Fixed system instruction
	HasHeader            bool                  // Skip the first CSV row
	MaxPromptLength      int                   // Maximum prompt length in characters (0 = no limit)
	Timeout              time.Duration         // Per-request HTTP timeout
	EnableCircuitBreaker bool                  // Fail fast after repeated hard failures
	CircuitBreakerConfig *CircuitBreakerConfig // Circuit breaker configuration
}

// CircuitBreakerConfig holds circuit breaker settings
type CircuitBreakerConfig struct {
	MaxRequests   uint32                                      // Max requests in half-open state
	Interval      time.Duration                               // Interval for closed state
	Timeout       time.Duration                               // Timeout for open state
	ReadyToTrip   func(counts gobreaker.Counts) bool          // Custom trip condition
	OnStateChange func(name string, from, to gobreaker.State) // State change callback
}

const (
	// DefaultBaseURL is Groq's OpenAI compatible endpoint
	DefaultBaseURL = "https://api.groq.com/openai/v1"
	// DefaultModel is the model requested when none is configured
	DefaultModel = "mixtral-8x7b-32768"
	// DefaultSystemPrompt is the fixed system instruction sent with every prompt
	DefaultSystemPrompt = "You are a helpful assistant."
	// DefaultTimeout bounds a single inference request
	DefaultTimeout = 60 * time.Second
	// DefaultMaxPromptLength is the maximum prompt length in characters
	DefaultMaxPromptLength = 100000
)

// Error definitions
var (
	ErrMissingAPIKey  = errors.New("inference API key is required")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrEmptyResponse  = errors.New("inference API returned no choices")
	ErrPromptTooLong  = errors.New("prompt exceeds maximum length")
	ErrEmptyPrompt    = errors.New("prompt is empty")
	ErrMissingInput   = errors.New("input path is required")
	ErrMalformedInput = errors.New("malformed input file")
)
