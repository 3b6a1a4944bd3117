package evaluator

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// IsBlankPrompt reports whether a prompt has no content worth sending
func IsBlankPrompt(prompt string) bool {
	return strings.TrimSpace(prompt) == ""
}

// ValidatePrompt checks a prompt before it is sent. Blank prompts are
// rejected. Length is measured in characters, not bytes. A maxLength of 0
// disables the length check.
func ValidatePrompt(prompt string, maxLength int) error {
	if IsBlankPrompt(prompt) {
		return ErrEmptyPrompt
	}

	if maxLength <= 0 {
		return nil
	}

	if n := utf8.RuneCountInString(prompt); n > maxLength {
		return fmt.Errorf("%w (%d chars, maximum %d)", ErrPromptTooLong, n, maxLength)
	}

	return nil
}
