package evaluator

import (
	"context"
	"log/slog"
)

// Summary describes a finished run
type Summary struct {
	Batch      ResultBatch // Records in input order
	Total      int         // Number of records
	Succeeded  int         // Records holding a response
	Failed     int         // Records holding an error
	Published  bool        // Whether the publisher accepted the batch
	PublishErr error       // Publisher failure, logged and not returned
}

// Run processes the CSV at inputPath and hands the batch to pub.
//
// The publisher is invoked even for an empty batch. Its failure is logged and
// stored in the summary; only an unreadable input is returned as an error. A
// nil publisher skips publishing.
func Run(ctx context.Context, proc BatchProcessor, pub Publisher, inputPath string) (Summary, error) {
	batch, err := proc.ProcessCSV(ctx, inputPath)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		Batch:     batch,
		Total:     len(batch),
		Succeeded: batch.Succeeded(),
		Failed:    batch.Failed(),
	}

	if pub == nil {
		slog.Info("Publishing disabled, results not uploaded", "records", summary.Total)
		return summary, nil
	}

	if err := pub.Publish(ctx, batch); err != nil {
		slog.Error("Error uploading dataset", "error", err)
		summary.PublishErr = err
		return summary, nil
	}

	summary.Published = true
	return summary, nil
}
