package evaluator_test

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"

	"github.com/JohnPlummer/prompt-evaluator/evaluator"
)

var _ = Describe("CircuitBreaker", func() {
	var (
		cb     *evaluator.CircuitBreakerClient
		client *fakeChatClient
		ctx    context.Context
		config evaluator.CircuitBreakerConfig
	)

	failWith := func(err error) {
		client.respond = func(string) (openai.ChatCompletionResponse, error) {
			return openai.ChatCompletionResponse{}, err
		}
	}

	request := openai.ChatCompletionRequest{
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "hi"}},
	}

	BeforeEach(func() {
		ctx = context.Background()
		client = &fakeChatClient{}
		config = evaluator.CircuitBreakerConfig{
			MaxRequests: 1,
			Interval:    10 * time.Second,
			Timeout:     5 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}
		cb = evaluator.NewCircuitBreakerClient(client, &config)
	})

	Describe("Normal Operation", func() {
		It("should pass through successful requests", func() {
			resp, err := cb.CreateChatCompletion(ctx, request)
			Expect(err).ToNot(HaveOccurred())
			Expect(resp.Choices[0].Message.Content).To(Equal("echo: hi"))
			Expect(cb.State()).To(Equal(gobreaker.StateClosed))
			Expect(cb.Counts().TotalSuccesses).To(Equal(uint32(1)))
		})
	})

	Describe("Error Handling", func() {
		It("should not trip on rate limit errors", func() {
			failWith(&openai.APIError{HTTPStatusCode: 429, Message: "Rate limit exceeded"})

			for i := 0; i < 5; i++ {
				_, err := cb.CreateChatCompletion(ctx, request)
				Expect(err).To(HaveOccurred())
			}
			Expect(cb.State()).To(Equal(gobreaker.StateClosed))
		})

		It("should not trip on timeouts", func() {
			failWith(context.DeadlineExceeded)

			for i := 0; i < 5; i++ {
				_, _ = cb.CreateChatCompletion(ctx, request)
			}
			Expect(cb.State()).To(Equal(gobreaker.StateClosed))
		})

		It("should trip on server errors and reject further requests", func() {
			failWith(&openai.APIError{HTTPStatusCode: 500, Message: "Internal server error"})

			for i := 0; i < 3; i++ {
				_, err := cb.CreateChatCompletion(ctx, request)
				Expect(err).To(HaveOccurred())
			}
			Expect(cb.State()).To(Equal(gobreaker.StateOpen))

			_, err := cb.CreateChatCompletion(ctx, request)
			Expect(errors.Is(err, gobreaker.ErrOpenState)).To(BeTrue())
			Expect(client.calls()).To(Equal(3))
		})

		It("should trip on authentication errors", func() {
			failWith(&openai.APIError{HTTPStatusCode: 401, Message: "Invalid API key"})

			for i := 0; i < 3; i++ {
				_, _ = cb.CreateChatCompletion(ctx, request)
			}
			Expect(cb.State()).To(Equal(gobreaker.StateOpen))
		})
	})

	Describe("Recovery", func() {
		It("should close again after a successful half-open request", func() {
			config.Timeout = 50 * time.Millisecond
			cb = evaluator.NewCircuitBreakerClient(client, &config)

			failWith(errors.New("server error"))
			for i := 0; i < 3; i++ {
				_, _ = cb.CreateChatCompletion(ctx, request)
			}
			Expect(cb.State()).To(Equal(gobreaker.StateOpen))

			client.respond = nil
			Eventually(func() error {
				_, err := cb.CreateChatCompletion(ctx, request)
				return err
			}).WithTimeout(time.Second).WithPolling(20 * time.Millisecond).Should(Succeed())
			Expect(cb.State()).To(Equal(gobreaker.StateClosed))
		})
	})

	Describe("inside a Processor", func() {
		It("should keep one failed record per row after the breaker opens", func() {
			failWith(&openai.APIError{HTTPStatusCode: 503, Message: "Service unavailable"})

			var transitions []gobreaker.State
			config.ReadyToTrip = func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 2
			}
			config.OnStateChange = func(_ string, _, to gobreaker.State) {
				transitions = append(transitions, to)
			}

			cfg := evaluator.NewDefaultConfig("test-api-key").WithCircuitBreakerConfig(&config)
			p := evaluator.NewWithClient(client, cfg)
			Expect(p.CircuitBreaker()).ToNot(BeNil())

			batch, err := p.ProcessReader(ctx, strings.NewReader("prompt\na\nb\nc\nd\n"))
			Expect(err).ToNot(HaveOccurred())
			Expect(batch).To(HaveLen(4))
			Expect(batch.Failed()).To(Equal(4))
			Expect(client.calls()).To(Equal(2))
			Expect(batch[3].Error).To(ContainSubstring(gobreaker.ErrOpenState.Error()))
			Expect(transitions).To(Equal([]gobreaker.State{gobreaker.StateOpen}))
		})
	})
})

var _ = Describe("ShouldTripCircuit", func() {
	DescribeTable("classifies errors",
		func(err error, expected bool) {
			Expect(evaluator.ShouldTripCircuit(err)).To(Equal(expected))
		},
		Entry("nil", nil, false),
		Entry("rate limit", &openai.APIError{HTTPStatusCode: 429}, false),
		Entry("unauthorized", &openai.APIError{HTTPStatusCode: 401}, true),
		Entry("bad request", &openai.APIError{HTTPStatusCode: 400}, true),
		Entry("server error", &openai.APIError{HTTPStatusCode: 502}, true),
		Entry("raw rate limit", &openai.RequestError{HTTPStatusCode: 429, Err: errors.New("slow down")}, false),
		Entry("raw server error", &openai.RequestError{HTTPStatusCode: 500, Err: errors.New("oops")}, true),
		Entry("deadline", context.DeadlineExceeded, false),
		Entry("cancelled", context.Canceled, false),
		Entry("unknown", errors.New("boom"), true),
	)
})

var _ = Describe("ClassifyError", func() {
	DescribeTable("maps errors to metric labels",
		func(err error, expected string) {
			Expect(evaluator.ClassifyError(err)).To(Equal(expected))
		},
		Entry("nil", nil, "none"),
		Entry("rate limit", &openai.APIError{HTTPStatusCode: 429}, "rate_limit"),
		Entry("auth", &openai.APIError{HTTPStatusCode: 403}, "auth_error"),
		Entry("server", &openai.APIError{HTTPStatusCode: 503}, "server_error"),
		Entry("client", &openai.APIError{HTTPStatusCode: 404}, "client_error"),
		Entry("timeout", context.DeadlineExceeded, "timeout"),
		Entry("cancelled", context.Canceled, "cancelled"),
		Entry("circuit open", gobreaker.ErrOpenState, "circuit_open"),
		Entry("too long", evaluator.ErrPromptTooLong, "invalid_prompt"),
		Entry("empty prompt", evaluator.ErrEmptyPrompt, "invalid_prompt"),
		Entry("empty", evaluator.ErrEmptyResponse, "empty_response"),
		Entry("unknown", errors.New("boom"), "unknown"),
	)
})
