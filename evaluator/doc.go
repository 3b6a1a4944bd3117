// Package evaluator sends prompts read from a CSV file to an OpenAI compatible
// chat completion API and collects one ResultRecord per prompt.
//
// Prompts are processed sequentially in input order. A failed request never
// stops the batch: it produces a failed record carrying the error message
// while the remaining prompts are still sent.
//
// Features:
//   - CSV input with optional header row, prompt text in the first column
//   - Success/failure records with token usage metadata
//   - Optional circuit breaker that fails fast after repeated hard failures
//   - Prometheus metrics through the metrics package
//
// Basic usage:
//
//	cfg := evaluator.NewDefaultConfig(os.Getenv("GROQ_API_KEY"))
//	p, err := evaluator.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	summary, err := evaluator.Run(ctx, p, uploader, "prompts.csv")
package evaluator
