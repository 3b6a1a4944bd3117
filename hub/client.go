package hub

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// APIError is a non-2xx response from the hub
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("hub API error, status code: %d, message: %s", e.StatusCode, e.Message)
}

// User is the account a token belongs to
type User struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Orgs []struct {
		Name string `json:"name"`
	} `json:"orgs"`
}

// Upload modes reported by the preupload endpoint
const (
	UploadModeRegular = "regular"
	UploadModeLFS     = "lfs"
)

// CommitFile is a file added or replaced by a commit. Files with UploadMode
// UploadModeLFS must be uploaded with UploadLFS before the commit, which then
// only references them by hash.
type CommitFile struct {
	Path       string
	Content    []byte
	UploadMode string
}

// UploadInfo is how the hub wants one file uploaded
type UploadInfo struct {
	UploadMode   string
	ShouldIgnore bool
}

// CommitInfo identifies a created commit
type CommitInfo struct {
	CommitURL string `json:"commitUrl"`
	CommitOID string `json:"commitOid"`
}

// Client is a minimal client for the Hugging Face Hub HTTP API
type Client struct {
	endpoint   string
	token      string
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a client for endpoint authenticated with token
func NewClient(endpoint, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		token:      token,
		userAgent:  userAgent,
		httpClient: httpClient,
	}
}

// WhoAmI returns the user owning the token
func (c *Client) WhoAmI(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/api/whoami-v2", "", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

type createRepoRequest struct {
	Type         string `json:"type"`
	Name         string `json:"name"`
	Organization string `json:"organization,omitempty"`
	Private      bool   `json:"private"`
}

// CreateDatasetRepo creates a dataset repository. An empty organization
// creates it under the token owner. created is false when the repository
// already exists.
func (c *Client) CreateDatasetRepo(ctx context.Context, organization, name string, private bool) (created bool, err error) {
	body, err := json.Marshal(createRepoRequest{
		Type:         "dataset",
		Name:         name,
		Organization: organization,
		Private:      private,
	})
	if err != nil {
		return false, fmt.Errorf("failed to encode create repo request: %w", err)
	}

	err = c.do(ctx, http.MethodPost, "/api/repos/create", "application/json", bytes.NewReader(body), nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type commitOperation struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

type commitHeader struct {
	Summary     string `json:"summary"`
	Description string `json:"description"`
}

type commitFileValue struct {
	Content  string `json:"content"`
	Path     string `json:"path"`
	Encoding string `json:"encoding"`
}

type commitLFSFileValue struct {
	Path string `json:"path"`
	Algo string `json:"algo"`
	OID  string `json:"oid"`
	Size int    `json:"size"`
}

// Commit adds files to a dataset repository in a single commit. Regular files
// travel inline as base64; LFS files are referenced by their sha256.
func (c *Client) Commit(ctx context.Context, repoID, revision, summary, description string, files []CommitFile) (*CommitInfo, error) {
	var body bytes.Buffer
	enc := json.NewEncoder(&body)

	ops := make([]commitOperation, 0, len(files)+1)
	ops = append(ops, commitOperation{
		Key:   "header",
		Value: commitHeader{Summary: summary, Description: description},
	})
	for _, f := range files {
		if f.UploadMode == UploadModeLFS {
			ops = append(ops, commitOperation{
				Key: "lfsFile",
				Value: commitLFSFileValue{
					Path: f.Path,
					Algo: "sha256",
					OID:  sha256Hex(f.Content),
					Size: len(f.Content),
				},
			})
			continue
		}
		ops = append(ops, commitOperation{
			Key: "file",
			Value: commitFileValue{
				Content:  base64.StdEncoding.EncodeToString(f.Content),
				Path:     f.Path,
				Encoding: "base64",
			},
		})
	}

	for _, op := range ops {
		if err := enc.Encode(op); err != nil {
			return nil, fmt.Errorf("failed to encode commit operation: %w", err)
		}
	}

	path := fmt.Sprintf("/api/datasets/%s/commit/%s", repoID, url.PathEscape(revision))

	var info CommitInfo
	if err := c.do(ctx, http.MethodPost, path, "application/x-ndjson", &body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := c.newRequest(ctx, method, c.endpoint+path, contentType, body)
	if err != nil {
		return err
	}
	return c.send(req, path, out)
}

func (c *Client) newRequest(ctx context.Context, method, target, contentType string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s request: %w", method, target, err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// send executes req and decodes a 2xx JSON body into out. path only labels
// errors.
func (c *Client) send(req *http.Request, path string, out any) error {
	method := req.Method
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hub request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read hub response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode hub response from %s: %w", path, err)
	}
	return nil
}

func newAPIError(resp *http.Response, data []byte) *APIError {
	var payload struct {
		Error string `json:"error"`
	}
	msg := http.StatusText(resp.StatusCode)
	if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	} else if s := strings.TrimSpace(string(data)); s != "" && len(s) < 512 {
		msg = s
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}

type preuploadFile struct {
	Path   string `json:"path"`
	Sample string `json:"sample"`
	Size   int    `json:"size"`
}

type preuploadRequest struct {
	Files []preuploadFile `json:"files"`
}

type preuploadResponse struct {
	Files []struct {
		Path         string `json:"path"`
		UploadMode   string `json:"uploadMode"`
		ShouldIgnore bool   `json:"shouldIgnore"`
	} `json:"files"`
}

const preuploadSampleSize = 512

// Preupload asks the hub how each file has to be uploaded, keyed by path.
// Files the hub does not mention are regular uploads.
func (c *Client) Preupload(ctx context.Context, repoID, revision string, files []CommitFile) (map[string]UploadInfo, error) {
	req := preuploadRequest{Files: make([]preuploadFile, len(files))}
	for i, f := range files {
		sample := f.Content
		if len(sample) > preuploadSampleSize {
			sample = sample[:preuploadSampleSize]
		}
		req.Files[i] = preuploadFile{
			Path:   f.Path,
			Sample: base64.StdEncoding.EncodeToString(sample),
			Size:   len(f.Content),
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode preupload request: %w", err)
	}

	path := fmt.Sprintf("/api/datasets/%s/preupload/%s", repoID, url.PathEscape(revision))

	var resp preuploadResponse
	if err := c.do(ctx, http.MethodPost, path, "application/json", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}

	modes := make(map[string]UploadInfo, len(files))
	for _, f := range files {
		modes[f.Path] = UploadInfo{UploadMode: UploadModeRegular}
	}
	for _, f := range resp.Files {
		mode := f.UploadMode
		if mode == "" {
			mode = UploadModeRegular
		}
		modes[f.Path] = UploadInfo{UploadMode: mode, ShouldIgnore: f.ShouldIgnore}
	}
	return modes, nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
