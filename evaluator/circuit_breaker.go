package evaluator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

const circuitBreakerName = "inference-api"

// CircuitBreakerClient wraps a ChatClient with circuit breaker functionality.
// Once open, requests fail immediately with gobreaker.ErrOpenState instead of
// reaching the inference API.
type CircuitBreakerClient struct {
	client ChatClient
	cb     *gobreaker.CircuitBreaker[openai.ChatCompletionResponse]
}

// NewCircuitBreakerClient creates a new circuit breaker wrapper around a ChatClient
func NewCircuitBreakerClient(client ChatClient, config *CircuitBreakerConfig) *CircuitBreakerClient {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	settings := gobreaker.Settings{
		Name:        circuitBreakerName,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: config.ReadyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())

			if config.OnStateChange != nil {
				config.OnStateChange(name, from, to)
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !ShouldTripCircuit(err)
		},
	}

	return &CircuitBreakerClient{
		client: client,
		cb:     gobreaker.NewCircuitBreaker[openai.ChatCompletionResponse](settings),
	}
}

// CreateChatCompletion executes the API call through the circuit breaker
func (w *CircuitBreakerClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	resp, err := w.cb.Execute(func() (openai.ChatCompletionResponse, error) {
		return w.client.CreateChatCompletion(ctx, req)
	})

	switch {
	case err == nil:
	case errors.Is(err, gobreaker.ErrOpenState):
		slog.Debug("Circuit breaker is open, request rejected")
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		slog.Debug("Circuit breaker in half-open state, too many requests")
	default:
		slog.Debug("Request failed through circuit breaker",
			"error", err,
			"should_trip", ShouldTripCircuit(err))
	}

	return resp, err
}

// State returns the current state of the circuit breaker
func (w *CircuitBreakerClient) State() gobreaker.State {
	return w.cb.State()
}

// Counts returns the current counts of the circuit breaker
func (w *CircuitBreakerClient) Counts() gobreaker.Counts {
	return w.cb.Counts()
}

// ShouldTripCircuit determines if an error should count against the breaker.
// Rate limits, timeouts and cancellations are transient and never trip it.
func ShouldTripCircuit(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return false
		case apiErr.HTTPStatusCode >= 400:
			return true
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode != 429
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	return true
}

// stateToInt converts circuit breaker state to int for metrics
func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
