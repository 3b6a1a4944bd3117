package hub_test

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gopkg.in/yaml.v3"

	"github.com/JohnPlummer/prompt-evaluator/evaluator"
	"github.com/JohnPlummer/prompt-evaluator/hub"
)

func decodeLines(data []byte) []map[string]any {
	var rows []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var row map[string]any
		Expect(json.Unmarshal([]byte(line), &row)).To(Succeed())
		rows = append(rows, row)
	}
	return rows
}

var _ = Describe("Dataset", func() {
	It("should reject an empty batch", func() {
		_, err := hub.NewDataset(nil)
		Expect(err).To(MatchError(hub.ErrEmptyBatch))

		_, err = hub.NewDataset(evaluator.ResultBatch{})
		Expect(err).To(MatchError(hub.ErrEmptyBatch))
	})

	It("should keep batch order and map every record to one row", func() {
		dataset, err := hub.NewDataset(sampleBatch())
		Expect(err).ToNot(HaveOccurred())
		Expect(dataset.Len()).To(Equal(3))
		Expect(dataset.Rows[0].Prompt).To(Equal("hello"))
		Expect(dataset.Rows[1].Prompt).To(Equal("<force network error>"))
		Expect(dataset.Rows[2].Prompt).To(Equal("world"))
	})

	Describe("WriteJSONL", func() {
		It("should write every column with nulls for absent values", func() {
			dataset, err := hub.NewDataset(sampleBatch())
			Expect(err).ToNot(HaveOccurred())

			var buf bytes.Buffer
			Expect(dataset.WriteJSONL(&buf)).To(Succeed())

			rows := decodeLines(buf.Bytes())
			Expect(rows).To(HaveLen(3))
			for _, row := range rows {
				Expect(row).To(HaveLen(len(hub.Columns)))
				for _, col := range hub.Columns {
					Expect(row).To(HaveKey(col))
				}
			}

			Expect(rows[0]["response"]).To(Equal("Hi there!"))
			Expect(rows[0]["error"]).To(BeNil())
			Expect(rows[0]["metadata"]).To(Equal(map[string]any{
				"timestamp":     float64(1700000000),
				"input_tokens":  float64(12),
				"output_tokens": float64(4),
			}))

			Expect(rows[1]["response"]).To(BeNil())
			Expect(rows[1]["metadata"]).To(BeNil())
			Expect(rows[1]["error"]).To(Equal("inference request failed: connection refused"))
			Expect(rows[1]["model"]).To(Equal(evaluator.DefaultModel))
		})

		It("should not escape HTML characters in prompts", func() {
			dataset, err := hub.NewDataset(sampleBatch())
			Expect(err).ToNot(HaveOccurred())

			var buf bytes.Buffer
			Expect(dataset.WriteJSONL(&buf)).To(Succeed())
			Expect(buf.String()).To(ContainSubstring(`"<force network error>"`))
		})
	})

	Describe("DataFile", func() {
		It("should produce a plain JSONL shard", func() {
			dataset, err := hub.NewDataset(sampleBatch())
			Expect(err).ToNot(HaveOccurred())

			file, err := dataset.DataFile(false)
			Expect(err).ToNot(HaveOccurred())
			Expect(file.Path).To(Equal("data/train-00000-of-00001.jsonl"))
			Expect(decodeLines(file.Content)).To(HaveLen(3))
		})

		It("should gzip the shard when compression is enabled", func() {
			dataset, err := hub.NewDataset(sampleBatch())
			Expect(err).ToNot(HaveOccurred())

			file, err := dataset.DataFile(true)
			Expect(err).ToNot(HaveOccurred())
			Expect(file.Path).To(Equal("data/train-00000-of-00001.jsonl.gz"))

			zr, err := gzip.NewReader(bytes.NewReader(file.Content))
			Expect(err).ToNot(HaveOccurred())
			plain, err := io.ReadAll(zr)
			Expect(err).ToNot(HaveOccurred())

			rows := decodeLines(plain)
			Expect(rows).To(HaveLen(3))
			Expect(rows[2]["response"]).To(Equal("Earth"))
		})
	})

	Describe("Card", func() {
		It("should carry YAML front matter describing the data file and split", func() {
			dataset, err := hub.NewDataset(sampleBatch())
			Expect(err).ToNot(HaveOccurred())

			card, err := dataset.Card("alice/results", "data/train-00000-of-00001.jsonl", "run-1", 2)
			Expect(err).ToNot(HaveOccurred())

			text := string(card)
			Expect(text).To(HavePrefix("---\n"))
			parts := strings.SplitN(text, "---\n", 3)
			Expect(parts).To(HaveLen(3))

			var meta struct {
				Configs []struct {
					ConfigName string `yaml:"config_name"`
					DataFiles  []struct {
						Split string `yaml:"split"`
						Path  string `yaml:"path"`
					} `yaml:"data_files"`
				} `yaml:"configs"`
				DatasetInfo struct {
					Features []struct {
						Name string `yaml:"name"`
					} `yaml:"features"`
					Splits []struct {
						Name        string `yaml:"name"`
						NumExamples int    `yaml:"num_examples"`
					} `yaml:"splits"`
				} `yaml:"dataset_info"`
			}
			Expect(yaml.Unmarshal([]byte(parts[1]), &meta)).To(Succeed())

			Expect(meta.Configs).To(HaveLen(1))
			Expect(meta.Configs[0].DataFiles[0].Path).To(Equal("data/train-00000-of-00001.jsonl"))
			Expect(meta.DatasetInfo.Features).To(HaveLen(len(hub.Columns)))
			Expect(meta.DatasetInfo.Splits[0].NumExamples).To(Equal(3))

			Expect(parts[2]).To(ContainSubstring("# alice/results"))
			Expect(parts[2]).To(ContainSubstring("- Succeeded: 2"))
			Expect(parts[2]).To(ContainSubstring("- Failed: 1"))
			Expect(parts[2]).To(ContainSubstring("- Run: run-1"))
		})
	})
})
