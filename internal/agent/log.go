package agent

import (
	"sync"
	"time"

	"github.com/facebuddy/facebuddy/internal/constants"
)

// Stages of one agent run, in order.
const (
	StageScan     = "scan"
	StagePrompt   = "prompt"
	StageResponse = "response"
	StageExecute  = "execute"
	StageDone     = "done"
)

// Step statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Step is one entry of the run log.
type Step struct {
	Stage   string    `json:"stage"`
	Status  string    `json:"status"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at"`
}

// Log is an append-only record of a run's progress. A stage's current state
// is its latest step; earlier steps are never rewritten.
type Log struct {
	mu       sync.RWMutex
	steps    []Step
	onAppend func(Step)
}

// NewLog creates a log. onAppend, if set, is called synchronously for every
// appended step.
func NewLog(onAppend func(Step)) *Log {
	return &Log{onAppend: onAppend}
}

// Append records a step and returns it.
func (l *Log) Append(stage, status, message string) Step {
	step := Step{Stage: stage, Status: status, Message: message, At: time.Now()}

	l.mu.Lock()
	l.steps = append(l.steps, step)
	l.mu.Unlock()

	if l.onAppend != nil {
		l.onAppend(step)
	}
	return step
}

// Steps returns a copy of all recorded steps.
func (l *Log) Steps() []Step {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Step(nil), l.steps...)
}

// Latest returns the most recent step for stage.
func (l *Log) Latest(stage string) (Step, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.steps) - 1; i >= 0; i-- {
		if l.steps[i].Stage == stage {
			return l.steps[i], true
		}
	}
	return Step{}, false
}

// Summarize shortens agent text for status display.
func Summarize(text string) string {
	r := []rune(text)
	if len(r) <= constants.SummaryMaxLength {
		return text
	}
	return string(r[:constants.SummaryCutLength]) + "..."
}
