package evaluator

import (
	"context"
	"errors"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

// ClassifyError returns the error class used as a metrics label
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.HTTPStatusCode, "api_error")
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(reqErr.HTTPStatusCode, "request_error")
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, gobreaker.ErrOpenState):
		return "circuit_open"
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_half_open"
	case errors.Is(err, ErrPromptTooLong), errors.Is(err, ErrEmptyPrompt):
		return "invalid_prompt"
	case errors.Is(err, ErrEmptyResponse):
		return "empty_response"
	}

	return "unknown"
}

func classifyStatus(code int, fallback string) string {
	switch {
	case code == 429:
		return "rate_limit"
	case code == 401 || code == 403:
		return "auth_error"
	case code >= 500:
		return "server_error"
	case code >= 400:
		return "client_error"
	default:
		return fallback
	}
}
