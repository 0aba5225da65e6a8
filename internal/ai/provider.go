package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

// Function names the agent may ask the app to execute.
const (
	FunctionSendTransaction   = "sendTransaction"
	FunctionConnectOnLinkedIn = "connectOnLinkedin"
	FunctionConnectOnTelegram = "connectOnTelegram"
	FunctionConnectOnTwitter  = "connectOnTwitter"
)

// Inferer turns a prompt into the agent's reply.
type Inferer interface {
	Name() string
	Infer(ctx context.Context, prompt string) (*Response, error)
	GetUsage() Usage
}

// Response is the agent's reply. The JSON shape is the agent endpoint's wire
// format; the other backends produce the same structure.
type Response struct {
	Content Content `json:"content"`
	Proof   *Proof  `json:"proof,omitempty"`
}

// Content holds the free-text answer and an optional function call.
type Content struct {
	Text         string        `json:"text"`
	FunctionCall *FunctionCall `json:"functionCall,omitempty"`
}

// FunctionCall names an app action and its arguments.
type FunctionCall struct {
	FunctionName string `json:"functionName"`
	Args         Args   `json:"args"`
}

// Args are loosely typed function arguments as produced by a model.
type Args map[string]any

// String returns the argument as a string. Numbers are formatted without
// exponent so "amount": 12.5 and "amount": "12.5" read the same.
func (a Args) String(key string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}

// Proof is the verifiable-inference attestation attached by the agent endpoint.
type Proof struct {
	Type      string         `json:"type,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StatusError is returned when a backend answers with a non-success status.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// Usage tracks token usage.
type Usage struct {
	Requests     int
	InputTokens  int
	OutputTokens int
}

// usageTracker is embedded by backends that report token counts.
type usageTracker struct {
	mu    sync.Mutex
	usage Usage
}

func (u *usageTracker) trackUsage(inputTokens, outputTokens int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.usage.Requests++
	u.usage.InputTokens += int(inputTokens)
	u.usage.OutputTokens += int(outputTokens)
}

func (u *usageTracker) GetUsage() Usage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.usage
}
