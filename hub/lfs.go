package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
)

const lfsMediaType = "application/vnd.git-lfs+json"

type lfsObject struct {
	OID  string `json:"oid"`
	Size int    `json:"size"`
}

type lfsRef struct {
	Name string `json:"name"`
}

type lfsBatchRequest struct {
	Operation string      `json:"operation"`
	Transfers []string    `json:"transfers"`
	Objects   []lfsObject `json:"objects"`
	HashAlgo  string      `json:"hash_algo"`
	Ref       *lfsRef     `json:"ref,omitempty"`
}

type lfsAction struct {
	Href   string            `json:"href"`
	Header map[string]string `json:"header"`
}

type lfsBatchObject struct {
	lfsObject
	Actions map[string]lfsAction `json:"actions"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type lfsBatchResponse struct {
	Transfer string           `json:"transfer"`
	Objects  []lfsBatchObject `json:"objects"`
}

type lfsPart struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}

type lfsCompletion struct {
	OID   string    `json:"oid"`
	Parts []lfsPart `json:"parts"`
}

// UploadLFS stores the content of files in the repository's LFS storage so a
// commit can reference them. Objects the hub already holds are not sent again.
func (c *Client) UploadLFS(ctx context.Context, repoID, revision string, files []CommitFile) error {
	if len(files) == 0 {
		return nil
	}

	content := make(map[string][]byte, len(files))
	req := lfsBatchRequest{
		Operation: "upload",
		Transfers: []string{"basic", "multipart"},
		HashAlgo:  "sha256",
	}
	if revision != "" {
		req.Ref = &lfsRef{Name: revision}
	}
	for _, f := range files {
		oid := sha256Hex(f.Content)
		if _, seen := content[oid]; seen {
			continue
		}
		content[oid] = f.Content
		req.Objects = append(req.Objects, lfsObject{OID: oid, Size: len(f.Content)})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode LFS batch request: %w", err)
	}

	path := "/datasets/" + repoID + ".git/info/lfs/objects/batch"
	httpReq, err := c.newRequest(ctx, http.MethodPost, c.endpoint+path, lfsMediaType, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", lfsMediaType)

	var resp lfsBatchResponse
	if err := c.send(httpReq, path, &resp); err != nil {
		return err
	}

	for _, obj := range resp.Objects {
		if obj.Error != nil {
			return fmt.Errorf("LFS upload of %s rejected: %w", obj.OID, &APIError{StatusCode: obj.Error.Code, Message: obj.Error.Message})
		}

		data, ok := content[obj.OID]
		if !ok {
			return fmt.Errorf("LFS batch returned unknown object %s", obj.OID)
		}

		upload, ok := obj.Actions["upload"]
		if !ok {
			slog.Debug("LFS object already stored", "oid", obj.OID)
			continue
		}

		if _, multipart := upload.Header["chunk_size"]; multipart {
			err = c.uploadMultipart(ctx, obj.OID, upload, data)
		} else {
			err = c.uploadSingle(ctx, upload, data)
		}
		if err != nil {
			return fmt.Errorf("failed to upload LFS object %s: %w", obj.OID, err)
		}

		if verify, ok := obj.Actions["verify"]; ok {
			if err := c.verifyLFS(ctx, verify, obj.lfsObject); err != nil {
				return fmt.Errorf("failed to verify LFS object %s: %w", obj.OID, err)
			}
		}

		slog.Debug("LFS object uploaded", "oid", obj.OID, "size", len(data))
	}

	return nil
}

// storageRequest targets the storage backend behind an LFS action. It carries
// only the headers of the action; presigned URLs reject other credentials.
func (c *Client) storageRequest(ctx context.Context, method, href string, headers map[string]string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, href, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", method, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (c *Client) uploadSingle(ctx context.Context, action lfsAction, data []byte) error {
	req, err := c.storageRequest(ctx, http.MethodPut, action.Href, action.Header, bytes.NewReader(data))
	if err != nil {
		return err
	}
	_, err = c.sendStorage(req)
	return err
}

// uploadMultipart sends data in chunk_size parts to the presigned URLs listed
// in the action header under their part numbers, then completes the upload.
func (c *Client) uploadMultipart(ctx context.Context, oid string, action lfsAction, data []byte) error {
	chunkSize, err := strconv.Atoi(action.Header["chunk_size"])
	if err != nil || chunkSize <= 0 {
		return fmt.Errorf("invalid chunk_size %q", action.Header["chunk_size"])
	}

	type partURL struct {
		number int
		href   string
	}
	var urls []partURL
	for key, href := range action.Header {
		if n, err := strconv.Atoi(key); err == nil {
			urls = append(urls, partURL{number: n, href: href})
		}
	}
	sort.Slice(urls, func(i, j int) bool { return urls[i].number < urls[j].number })

	if want := (len(data) + chunkSize - 1) / chunkSize; len(urls) != want {
		return fmt.Errorf("expected %d part URLs, got %d", want, len(urls))
	}

	parts := make([]lfsPart, 0, len(urls))
	for i, u := range urls {
		start := i * chunkSize
		end := min(start+chunkSize, len(data))

		req, err := c.storageRequest(ctx, http.MethodPut, u.href, nil, bytes.NewReader(data[start:end]))
		if err != nil {
			return err
		}
		header, err := c.sendStorage(req)
		if err != nil {
			return fmt.Errorf("part %d: %w", u.number, err)
		}
		etag := header.Get("ETag")
		if etag == "" {
			return fmt.Errorf("part %d: storage returned no ETag", u.number)
		}
		parts = append(parts, lfsPart{PartNumber: u.number, ETag: etag})
	}

	body, err := json.Marshal(lfsCompletion{OID: oid, Parts: parts})
	if err != nil {
		return fmt.Errorf("failed to encode multipart completion: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, action.Href, lfsMediaType, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", lfsMediaType)
	return c.send(req, "LFS multipart completion", nil)
}

func (c *Client) verifyLFS(ctx context.Context, action lfsAction, obj lfsObject) error {
	body, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to encode LFS verify request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, action.Href, lfsMediaType, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", lfsMediaType)
	for k, v := range action.Header {
		req.Header.Set(k, v)
	}
	return c.send(req, "LFS verify", nil)
}

func (c *Client) sendStorage(req *http.Request) (http.Header, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storage request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp, data)
	}
	return resp.Header, nil
}
