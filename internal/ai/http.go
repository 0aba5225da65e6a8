package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/facebuddy/facebuddy/internal/constants"
)

// DefaultAgentURL is the hosted verifiable-inference agent.
const DefaultAgentURL = "https://ai-quickstart.onrender.com/api/generate"

// HTTPInferer posts prompts to an agent endpoint that already speaks the
// Response wire format.
type HTTPInferer struct {
	url    string
	client *http.Client
	usage  usageTracker
}

type httpInferRequest struct {
	Prompt string `json:"prompt"`
}

func NewHTTPInferer(url string, timeout time.Duration) *HTTPInferer {
	if url == "" {
		url = DefaultAgentURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPInferer{
		url:    strings.TrimSuffix(url, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPInferer) Name() string {
	return "http"
}

func (p *HTTPInferer) GetUsage() Usage {
	return p.usage.GetUsage()
}

func (p *HTTPInferer) Infer(ctx context.Context, prompt string) (*Response, error) {
	jsonBody, err := json.Marshal(httpInferRequest{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
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
		return nil, &StatusError{Provider: p.Name(), StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	p.usage.trackUsage(0, 0)

	return &out, nil
}
