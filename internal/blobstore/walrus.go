// Package blobstore publishes and fetches opaque blobs on Walrus.
package blobstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/facebuddy/facebuddy/internal/constants"
)

var (
	// ErrDisabled is returned by Put when publishing is switched off.
	ErrDisabled = errors.New("blob publishing is disabled")
	// ErrNoBlobID means the publisher accepted the upload but named no blob.
	ErrNoBlobID = errors.New("blob id not found in response")
	// ErrNotFound means the aggregator does not know the blob.
	ErrNotFound = errors.New("blob not found")
)

// Store puts and gets whole blobs by id.
type Store interface {
	Enabled() bool
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, blobID string) ([]byte, error)
}

// Walrus talks to a Walrus publisher for writes and an aggregator for reads.
type Walrus struct {
	publisherURL  string
	aggregatorURL string
	epochs        int
	enabled       bool
	maxBody       int
	client        *http.Client
}

func NewWalrus(publisherURL, aggregatorURL string, epochs int, enabled bool) *Walrus {
	if epochs <= 0 {
		epochs = constants.DefaultBlobEpochs
	}
	return &Walrus{
		publisherURL:  strings.TrimSuffix(publisherURL, "/"),
		aggregatorURL: strings.TrimSuffix(aggregatorURL, "/"),
		epochs:        epochs,
		enabled:       enabled,
		maxBody:       constants.MaxSnapshotSize,
		client:        &http.Client{Timeout: 60 * time.Second},
	}
}

// Enabled reports whether Put will publish.
func (w *Walrus) Enabled() bool {
	return w.enabled
}

type storeResponse struct {
	AlreadyCertified *struct {
		BlobID string `json:"blobId"`
	} `json:"alreadyCertified"`
	NewlyCreated *struct {
		BlobObject struct {
			BlobID string `json:"blobId"`
		} `json:"blobObject"`
	} `json:"newlyCreated"`
}

func (r storeResponse) blobID() string {
	if r.AlreadyCertified != nil && r.AlreadyCertified.BlobID != "" {
		return r.AlreadyCertified.BlobID
	}
	if r.NewlyCreated != nil {
		return r.NewlyCreated.BlobObject.BlobID
	}
	return ""
}

// Put stores data for the configured number of epochs and returns its blob id.
func (w *Walrus) Put(ctx context.Context, data []byte) (string, error) {
	if !w.enabled {
		return "", ErrDisabled
	}

	endpoint := w.publisherURL + "/v1/blobs?epochs=" + strconv.Itoa(w.epochs)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")

	body, err := w.do(req)
	if err != nil {
		return "", err
	}

	var resp storeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	id := resp.blobID()
	if id == "" {
		return "", ErrNoBlobID
	}
	return id, nil
}

// Get fetches a blob by id.
func (w *Walrus) Get(ctx context.Context, blobID string) ([]byte, error) {
	if blobID == "" {
		return nil, fmt.Errorf("%w: empty blob id", ErrNotFound)
	}

	endpoint := w.aggregatorURL + "/v1/blobs/" + url.PathEscape(blobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return w.do(req)
}

func (w *Walrus) do(req *http.Request) ([]byte, error) {
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(w.maxBody)+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > w.maxBody {
		return nil, fmt.Errorf("response exceeds %d bytes", w.maxBody)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("walrus API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
