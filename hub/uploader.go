package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JohnPlummer/prompt-evaluator/evaluator"
	"github.com/JohnPlummer/prompt-evaluator/metrics"
)

const (
	// DefaultEndpoint is the public Hugging Face Hub
	DefaultEndpoint = "https://huggingface.co"
	// DefaultDatasetName is the repository name results are pushed to
	DefaultDatasetName = "prompt-evaluation-dataset"
	// DefaultCommitMessage is the summary of every upload commit
	DefaultCommitMessage = "Automated prompt evaluation dataset upload"
	// DefaultRevision is the branch commits are made on
	DefaultRevision = "main"
	// DefaultTimeout bounds each hub request
	DefaultTimeout = 2 * time.Minute
)

var userAgent = evaluator.GetVersion().UserAgent()

// Error definitions
var (
	ErrEmptyBatch         = errors.New("refusing to upload an empty batch")
	ErrMissingToken       = errors.New("hub token is required")
	ErrMissingDatasetName = errors.New("dataset name is required")
	ErrInvalidRepoID      = errors.New("dataset owner and name must not contain '/'")
	ErrInvalidConfig      = errors.New("invalid hub configuration")
)

// Config holds the configuration for the uploader
type Config struct {
	Token         string        // Hub access token (required)
	Owner         string        // User or organization; empty means the token owner
	Name          string        // Dataset repository name
	CommitMessage string        // Commit summary
	Endpoint      string        // Hub base URL
	Revision      string        // Target branch
	Private       bool          // Create the repository as private
	Compress      bool          // Gzip the data shard
	Timeout       time.Duration // Per-request timeout
}

// NewDefaultConfig creates a config with sensible defaults
func NewDefaultConfig(token, owner string) Config {
	return Config{
		Token:         token,
		Owner:         owner,
		Name:          DefaultDatasetName,
		CommitMessage: DefaultCommitMessage,
		Endpoint:      DefaultEndpoint,
		Revision:      DefaultRevision,
		Timeout:       DefaultTimeout,
	}
}

// Validate checks if the config is valid
func (c Config) Validate() error {
	if c.Token == "" {
		return ErrMissingToken
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrMissingDatasetName
	}
	if strings.Contains(c.Owner, "/") || strings.Contains(c.Name, "/") {
		return ErrInvalidRepoID
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Uploader publishes result batches as a dataset repository on the hub
type Uploader struct {
	client  *Client
	config  Config
	metrics *metrics.Recorder
	runID   func() string
}

// Option customizes an Uploader
type Option func(*Uploader)

// WithMetrics records upload metrics on m
func WithMetrics(m *metrics.Recorder) Option {
	return func(u *Uploader) {
		u.metrics = m
	}
}

// WithHTTPClient replaces the HTTP client used for hub requests
func WithHTTPClient(c *http.Client) Option {
	return func(u *Uploader) {
		u.client.httpClient = c
	}
}

// NewUploader creates an uploader from cfg
func NewUploader(cfg Config, opts ...Option) (*Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Revision == "" {
		cfg.Revision = DefaultRevision
	}
	if cfg.CommitMessage == "" {
		cfg.CommitMessage = DefaultCommitMessage
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	u := &Uploader{
		client: NewClient(cfg.Endpoint, cfg.Token, &http.Client{Timeout: timeout}),
		config: cfg,
		runID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u, nil
}

// Publish authenticates, makes sure the dataset repository exists and
// commits the batch together with its dataset card.
func (u *Uploader) Publish(ctx context.Context, batch evaluator.ResultBatch) (err error) {
	start := time.Now()
	defer func() {
		status := "success"
		switch {
		case errors.Is(err, ErrEmptyBatch):
			status = "skipped"
		case err != nil:
			status = "error"
		}
		u.metrics.RecordUpload(status, time.Since(start).Seconds())
	}()

	dataset, err := NewDataset(batch)
	if err != nil {
		return err
	}

	user, err := u.client.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("hub authentication failed: %w", err)
	}
	slog.Debug("Authenticated with hub", "user", user.Name)

	owner := u.config.Owner
	if owner == "" {
		owner = user.Name
	}
	repoID := owner + "/" + u.config.Name

	organization := ""
	if owner != user.Name {
		organization = owner
	}

	created, err := u.client.CreateDatasetRepo(ctx, organization, u.config.Name, u.config.Private)
	if err != nil {
		return fmt.Errorf("failed to create dataset repository %s: %w", repoID, err)
	}
	if created {
		slog.Info("Created dataset repository", "repo", repoID, "private", u.config.Private)
	}

	dataFile, err := dataset.DataFile(u.config.Compress)
	if err != nil {
		return err
	}

	runID := u.runID()
	card, err := dataset.Card(repoID, dataFile.Path, runID, batch.Succeeded())
	if err != nil {
		return err
	}

	files, err := u.prepareFiles(ctx, repoID, []CommitFile{dataFile, {Path: cardPath, Content: card}})
	if err != nil {
		return err
	}

	info, err := u.client.Commit(ctx, repoID, u.config.Revision, u.config.CommitMessage, "Run "+runID, files)
	if err != nil {
		return fmt.Errorf("failed to push dataset %s: %w", repoID, err)
	}

	slog.Info("Dataset successfully uploaded",
		"repo", repoID,
		"records", dataset.Len(),
		"commit", info.CommitURL,
		"run_id", runID)

	return nil
}

// prepareFiles asks the hub how each file must travel and pushes the ones
// bound for LFS ahead of the commit. Files the hub ignores are dropped.
func (u *Uploader) prepareFiles(ctx context.Context, repoID string, files []CommitFile) ([]CommitFile, error) {
	modes, err := u.client.Preupload(ctx, repoID, u.config.Revision, files)
	if err != nil {
		return nil, fmt.Errorf("failed to negotiate upload of %s: %w", repoID, err)
	}

	kept := make([]CommitFile, 0, len(files))
	var lfs []CommitFile
	for _, f := range files {
		mode := modes[f.Path]
		if mode.ShouldIgnore {
			slog.Warn("Hub ignores file, not uploading it", "repo", repoID, "path", f.Path)
			continue
		}
		f.UploadMode = mode.UploadMode
		if f.UploadMode == UploadModeLFS {
			lfs = append(lfs, f)
		}
		kept = append(kept, f)
	}

	if err := u.client.UploadLFS(ctx, repoID, u.config.Revision, lfs); err != nil {
		return nil, fmt.Errorf("failed to upload large files to %s: %w", repoID, err)
	}
	return kept, nil
}
