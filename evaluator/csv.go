package evaluator

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const utf8BOM = "\ufeff"

// ReadPrompts reads prompts from the first column of a CSV stream.
//
// When hasHeader is set the first record is dropped. Lines with no fields at
// all are ignored. Every other row yields one PromptRecord, including rows
// whose first column is empty; those are rejected later as ErrEmptyPrompt so
// they still show up in the results. Rows may have any number of columns.
func ReadPrompts(r io.Reader, hasHeader bool) ([]PromptRecord, error) {
	reader := csv.NewReader(stripBOM(r))
	reader.FieldsPerRecord = -1

	var prompts []PromptRecord
	first := true
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedInput, err)
		}

		line, _ := reader.FieldPos(0)

		if first {
			first = false
			if hasHeader {
				slog.Debug("Skipping header row", "line", line)
				continue
			}
		}

		if len(row) == 0 {
			continue
		}

		prompts = append(prompts, PromptRecord{Row: line, Text: row[0]})
	}

	return prompts, nil
}

func stripBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && string(head) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}
