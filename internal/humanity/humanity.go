// Package humanity issues verifiable credentials through the Humanity
// Protocol issuer API.
package humanity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/facebuddy/facebuddy/internal/constants"
)

const DefaultIssuerURL = "https://issuer.humanity.org"

// ErrNoAPIKey is returned when the client was built without a token.
var ErrNoAPIKey = errors.New("humanity API key not configured")

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultIssuerURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c.apiKey != ""
}

type issueRequest struct {
	SubjectAddress string `json:"subject_address"`
	Claims         any    `json:"claims"`
}

// Credential is the issuer's reply. Only the commonly used fields are typed;
// Raw keeps the full document.
type Credential struct {
	ID     string          `json:"id,omitempty"`
	Status string          `json:"status,omitempty"`
	Raw    json.RawMessage `json:"-"`
}

// Issue asks the issuer to sign claims about subjectAddress.
func (c *Client) Issue(ctx context.Context, subjectAddress string, claims any) (*Credential, error) {
	if !c.Enabled() {
		return nil, ErrNoAPIKey
	}

	jsonBody, err := json.Marshal(issueRequest{SubjectAddress: subjectAddress, Claims: claims})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/credentials/issue", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Token", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > constants.MaxResponseSize {
		return nil, fmt.Errorf("response exceeds %d bytes", constants.MaxResponseSize)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("issuer API error (status %d): %s", resp.StatusCode, string(body))
	}

	var cred Credential
	if err := json.Unmarshal(body, &cred); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	cred.Raw = body

	return &cred, nil
}
