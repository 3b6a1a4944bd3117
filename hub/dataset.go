package hub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	"github.com/JohnPlummer/prompt-evaluator/evaluator"
)

const (
	dataDir   = "data"
	shardName = "train-00000-of-00001.jsonl"
	cardPath  = "README.md"
)

// Columns lists the dataset columns in order
var Columns = []string{"prompt", "response", "model", "error", "metadata"}

// Row is one dataset row. Every column is always present; values a record
// does not carry are null so all rows share one schema.
type Row struct {
	Prompt   string              `json:"prompt"`
	Response *string             `json:"response"`
	Model    string              `json:"model"`
	Error    *string             `json:"error"`
	Metadata *evaluator.Metadata `json:"metadata"`
}

// Dataset is the tabular form of a ResultBatch
type Dataset struct {
	Rows []Row
}

// NewDataset builds a dataset from batch, keeping batch order
func NewDataset(batch evaluator.ResultBatch) (*Dataset, error) {
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}

	rows := make([]Row, len(batch))
	for i, r := range batch {
		row := Row{
			Prompt:   r.Prompt,
			Response: r.Response,
			Model:    r.Model,
			Metadata: r.Metadata,
		}
		if r.Error != "" {
			msg := r.Error
			row.Error = &msg
		}
		rows[i] = row
	}

	return &Dataset{Rows: rows}, nil
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// WriteJSONL writes one JSON object per row
func (d *Dataset) WriteJSONL(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, row := range d.Rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("failed to encode row %d: %w", i, err)
		}
	}
	return nil
}

// DataFile encodes the dataset as the single train shard, gzip compressed
// when compress is set
func (d *Dataset) DataFile(compress bool) (CommitFile, error) {
	var buf bytes.Buffer
	path := dataDir + "/" + shardName

	if !compress {
		if err := d.WriteJSONL(&buf); err != nil {
			return CommitFile{}, err
		}
		return CommitFile{Path: path, Content: buf.Bytes()}, nil
	}

	zw := gzip.NewWriter(&buf)
	if err := d.WriteJSONL(zw); err != nil {
		return CommitFile{}, err
	}
	if err := zw.Close(); err != nil {
		return CommitFile{}, fmt.Errorf("failed to compress dataset: %w", err)
	}
	return CommitFile{Path: path + ".gz", Content: buf.Bytes()}, nil
}

type cardFeature struct {
	Name   string        `yaml:"name"`
	Dtype  string        `yaml:"dtype,omitempty"`
	Struct []cardFeature `yaml:"struct,omitempty"`
}

type cardSplit struct {
	Name        string `yaml:"name"`
	NumExamples int    `yaml:"num_examples"`
}

type cardDataFiles struct {
	Split string `yaml:"split"`
	Path  string `yaml:"path"`
}

type cardConfig struct {
	ConfigName string          `yaml:"config_name"`
	DataFiles  []cardDataFiles `yaml:"data_files"`
}

type cardMetadata struct {
	Configs     []cardConfig `yaml:"configs"`
	DatasetInfo struct {
		Features []cardFeature `yaml:"features"`
		Splits   []cardSplit   `yaml:"splits"`
	} `yaml:"dataset_info"`
	Tags []string `yaml:"tags"`
}

// Card renders the README.md dataset card. Its YAML front matter points the
// hub viewer at dataFile and declares the column types.
func (d *Dataset) Card(repoID, dataFile, runID string, succeeded int) ([]byte, error) {
	var meta cardMetadata
	meta.Configs = []cardConfig{{
		ConfigName: "default",
		DataFiles:  []cardDataFiles{{Split: "train", Path: dataFile}},
	}}
	meta.DatasetInfo.Features = []cardFeature{
		{Name: "prompt", Dtype: "string"},
		{Name: "response", Dtype: "string"},
		{Name: "model", Dtype: "string"},
		{Name: "error", Dtype: "string"},
		{Name: "metadata", Struct: []cardFeature{
			{Name: "timestamp", Dtype: "int64"},
			{Name: "input_tokens", Dtype: "int64"},
			{Name: "output_tokens", Dtype: "int64"},
		}},
	}
	meta.DatasetInfo.Splits = []cardSplit{{Name: "train", NumExamples: d.Len()}}
	meta.Tags = []string{"prompt-evaluation", "llm-responses"}

	front, err := yaml.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode dataset card metadata: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(front)
	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "# %s\n\n", repoID)
	fmt.Fprintf(&buf, "Model responses collected by %s.\n\n", userAgent)
	fmt.Fprintf(&buf, "- Records: %d\n", d.Len())
	fmt.Fprintf(&buf, "- Succeeded: %d\n", succeeded)
	fmt.Fprintf(&buf, "- Failed: %d\n", d.Len()-succeeded)
	fmt.Fprintf(&buf, "- Run: %s\n", runID)

	return buf.Bytes(), nil
}
