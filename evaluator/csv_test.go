package evaluator_test

import (
	"errors"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/JohnPlummer/prompt-evaluator/evaluator"
)

func promptTexts(records []evaluator.PromptRecord) []string {
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	return texts
}

var _ = Describe("ReadPrompts", func() {
	It("should skip the header row and read the first column", func() {
		input := "prompt,category\nhello,greeting\nworld,noun\n"

		prompts, err := evaluator.ReadPrompts(strings.NewReader(input), true)
		Expect(err).ToNot(HaveOccurred())
		Expect(promptTexts(prompts)).To(Equal([]string{"hello", "world"}))
		Expect(prompts[0].Row).To(Equal(2))
		Expect(prompts[1].Row).To(Equal(3))
	})

	It("should keep the first row when there is no header", func() {
		prompts, err := evaluator.ReadPrompts(strings.NewReader("hello\nworld\n"), false)
		Expect(err).ToNot(HaveOccurred())
		Expect(promptTexts(prompts)).To(Equal([]string{"hello", "world"}))
	})

	It("should preserve quoted commas and newlines inside a prompt", func() {
		input := "prompt\n\"Summarize: a, b, and c\"\n\"line one\nline two\"\n"

		prompts, err := evaluator.ReadPrompts(strings.NewReader(input), true)
		Expect(err).ToNot(HaveOccurred())
		Expect(promptTexts(prompts)).To(Equal([]string{
			"Summarize: a, b, and c",
			"line one\nline two",
		}))
	})

	It("should keep rows with an empty first column in order", func() {
		input := "prompt,extra\nfirst,x\n,only extra\n   ,spaces\nsecond\n"

		prompts, err := evaluator.ReadPrompts(strings.NewReader(input), true)
		Expect(err).ToNot(HaveOccurred())
		Expect(promptTexts(prompts)).To(Equal([]string{"first", "", "   ", "second"}))
		Expect(prompts[1].Row).To(Equal(3))
	})

	It("should ignore blank lines", func() {
		prompts, err := evaluator.ReadPrompts(strings.NewReader("prompt\n\nhello\n\n\nworld\n"), true)
		Expect(err).ToNot(HaveOccurred())
		Expect(promptTexts(prompts)).To(Equal([]string{"hello", "world"}))
	})

	It("should accept rows with different column counts", func() {
		input := "prompt\na,b,c\nd\ne,f\n"

		prompts, err := evaluator.ReadPrompts(strings.NewReader(input), true)
		Expect(err).ToNot(HaveOccurred())
		Expect(promptTexts(prompts)).To(Equal([]string{"a", "d", "e"}))
	})

	It("should strip a UTF-8 byte order mark", func() {
		prompts, err := evaluator.ReadPrompts(strings.NewReader("\ufeffhello\nworld\n"), false)
		Expect(err).ToNot(HaveOccurred())
		Expect(prompts[0].Text).To(Equal("hello"))
	})

	Context("with empty input", func() {
		It("should return no prompts for an empty stream", func() {
			prompts, err := evaluator.ReadPrompts(strings.NewReader(""), true)
			Expect(err).ToNot(HaveOccurred())
			Expect(prompts).To(BeEmpty())
		})

		It("should return no prompts for a header-only file", func() {
			prompts, err := evaluator.ReadPrompts(strings.NewReader("prompt\n"), true)
			Expect(err).ToNot(HaveOccurred())
			Expect(prompts).To(BeEmpty())
		})
	})

	It("should report malformed quoting", func() {
		_, err := evaluator.ReadPrompts(strings.NewReader("prompt\n\"unterminated\n"), true)
		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, evaluator.ErrMalformedInput)).To(BeTrue())
	})
})
