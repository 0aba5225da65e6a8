package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/facebuddy/facebuddy/internal/agent"
	"github.com/facebuddy/facebuddy/internal/constants"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventBufferSize)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// AgentJob is one asynchronous agent run.
type AgentJob struct {
	EventBroadcaster

	id          string
	transcript  string
	status      JobStatus
	steps       []agent.Step
	result      *agent.Result
	err         string
	startedAt   time.Time
	completedAt *time.Time
	state       sync.RWMutex
}

// AgentJobView is the JSON shape of a job.
type AgentJobView struct {
	ID          string        `json:"id"`
	Transcript  string        `json:"transcript"`
	Status      JobStatus     `json:"status"`
	Steps       []agent.Step  `json:"steps"`
	Result      *agent.Result `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// View returns a consistent copy of the job state.
func (j *AgentJob) View() AgentJobView {
	j.state.RLock()
	defer j.state.RUnlock()
	return AgentJobView{
		ID:          j.id,
		Transcript:  j.transcript,
		Status:      j.status,
		Steps:       append([]agent.Step(nil), j.steps...),
		Result:      j.result,
		Error:       j.err,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
	}
}

// GetStatus returns the current job status (implements SSEJob).
func (j *AgentJob) GetStatus() JobStatus {
	j.state.RLock()
	defer j.state.RUnlock()
	return j.status
}

// setRunning moves a pending job to running. It returns false when the job
// was cancelled before it started.
func (j *AgentJob) setRunning(cancel context.CancelFunc) bool {
	j.mu.Lock()
	j.cancel = cancel
	j.mu.Unlock()

	j.state.Lock()
	defer j.state.Unlock()
	if j.status != JobStatusPending {
		return false
	}
	j.status = JobStatusRunning
	return true
}

func (j *AgentJob) appendStep(step agent.Step) {
	j.state.Lock()
	j.steps = append(j.steps, step)
	j.state.Unlock()
	j.SendEvent(JobEvent{Type: "step", Message: step.Message, Data: step})
}

// finish records the terminal state first so SSE streams see it together
// with the final event.
func (j *AgentJob) finish(status JobStatus, result *agent.Result, errMsg string) {
	now := time.Now()
	j.state.Lock()
	if j.status == JobStatusCancelled {
		j.state.Unlock()
		return
	}
	j.status = status
	j.result = result
	j.err = errMsg
	j.completedAt = &now
	j.state.Unlock()

	j.SendEvent(JobEvent{Type: string(status), Message: errMsg, Data: result})
}

// Cancel cancels the job via context and sends a cancelled event.
func (j *AgentJob) Cancel() bool {
	now := time.Now()
	j.state.Lock()
	if isJobTerminal(j.status) {
		j.state.Unlock()
		return false
	}
	j.status = JobStatusCancelled
	j.completedAt = &now
	j.state.Unlock()

	j.mu.RLock()
	cancel := j.cancel
	j.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	j.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
	return true
}

func (j *AgentJob) expired(now time.Time, retention time.Duration) bool {
	j.state.RLock()
	defer j.state.RUnlock()
	return j.completedAt != nil && now.Sub(*j.completedAt) > retention
}

// JobManager manages async jobs.
type JobManager struct {
	jobs      map[string]*AgentJob
	retention time.Duration
	mu        sync.RWMutex
}

// NewJobManager creates a new job manager. Finished jobs are dropped after
// constants.JobRetention minutes.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs:      make(map[string]*AgentJob),
		retention: constants.JobRetention * time.Minute,
	}
}

// CreateJob creates a new pending agent job.
func (m *JobManager) CreateJob(id, transcript string) *AgentJob {
	job := &AgentJob{
		id:         id,
		transcript: transcript,
		status:     JobStatusPending,
		startedAt:  time.Now(),
	}

	m.mu.Lock()
	m.pruneLocked(time.Now())
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *AgentJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// Len returns the number of tracked jobs.
func (m *JobManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

func (m *JobManager) pruneLocked(now time.Time) {
	for id, job := range m.jobs {
		if job.expired(now, m.retention) {
			delete(m.jobs, id)
		}
	}
}
