// Command prompt-evaluator sends every prompt of a CSV file to an inference
// API and publishes the responses as a dataset on the Hugging Face Hub.
//
// Usage:
//
//	prompt-evaluator --input prompts.csv --owner my-org
//	prompt-evaluator --config prompt-evaluator.yaml --dry-run
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "Error loading .env file:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
