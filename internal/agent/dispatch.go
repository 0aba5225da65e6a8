package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/facebuddy/facebuddy/internal/ai"
	"github.com/facebuddy/facebuddy/internal/facematch"
	"github.com/facebuddy/facebuddy/internal/logger"
)

// ErrNoResolvedFace is returned when Dispatch is called without a face.
var ErrNoResolvedFace = errors.New("no resolved face to act on")

// DispatchError reports a failed inference call. The caller decides whether
// to retry; Dispatch never does.
type DispatchError struct {
	Provider   string
	StatusCode int    // 0 when the request never got a response
	Body       string // raw response text, if any
	Err        error
}

func (e *DispatchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("agent %s returned status %d: %s", e.Provider, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("agent %s request failed: %v", e.Provider, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether repeating the same request may succeed.
func (e *DispatchError) IsRetryable() bool {
	switch {
	case errors.Is(e.Err, context.Canceled):
		return false
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return e.StatusCode >= 500
	}
}

// Dispatcher sends a transcript about a resolved face to an inference backend
// and maps the reply to an Action.
type Dispatcher struct {
	inferer ai.Inferer
}

func NewDispatcher(inferer ai.Inferer) *Dispatcher {
	return &Dispatcher{inferer: inferer}
}

// Provider names the backend in use.
func (d *Dispatcher) Provider() string {
	return d.inferer.Name()
}

// BuildPrompt appends the profile JSON directly to the transcript, the
// format the hosted agent was tuned on.
func BuildPrompt(transcript string, profile facematch.Profile) (string, error) {
	data, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("failed to marshal profile: %w", err)
	}
	return transcript + string(data), nil
}

// Dispatch makes exactly one inference call. Any backend failure comes back
// as *DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, transcript string, resolved *facematch.ResolvedFace) (Action, *ai.Response, error) {
	if resolved == nil {
		return nil, nil, ErrNoResolvedFace
	}

	prompt, err := BuildPrompt(transcript, resolved.Profile)
	if err != nil {
		return nil, nil, err
	}

	resp, err := d.inferer.Infer(ctx, prompt)
	if err != nil {
		dispatchErr := &DispatchError{Provider: d.inferer.Name(), Err: err}
		var statusErr *ai.StatusError
		if errors.As(err, &statusErr) {
			dispatchErr.StatusCode = statusErr.StatusCode
			dispatchErr.Body = statusErr.Body
		}
		return nil, nil, dispatchErr
	}

	logger.Debug("agent responded",
		logger.Options{Key: "provider", Data: d.inferer.Name()},
		logger.Options{Key: "has_function_call", Data: resp.Content.FunctionCall != nil},
	)

	return ToAction(resp.Content.FunctionCall, resolved.Profile), resp, nil
}
