package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/facebuddy/facebuddy/internal/agent"
	"github.com/facebuddy/facebuddy/internal/facematch"
	"github.com/facebuddy/facebuddy/internal/logger"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AgentHandler starts agent runs in the background and reports on them.
type AgentHandler struct {
	runner     *agent.Runner
	jobManager *JobManager
	runTimeout time.Duration
}

// NewAgentHandler creates a new agent handler. Each run is bounded by
// runTimeout when it is positive.
func NewAgentHandler(runner *agent.Runner, jobManager *JobManager, runTimeout time.Duration) *AgentHandler {
	return &AgentHandler{runner: runner, jobManager: jobManager, runTimeout: runTimeout}
}

// AgentRequest is the JSON body of an agent run.
type AgentRequest struct {
	Transcript string                `json:"transcript"`
	Detections []facematch.Detection `json:"detections"`
}

// Start validates the request, creates a job and runs it asynchronously. The
// body is either an AgentRequest or a multipart form with "image" and
// "transcript" fields.
func (h *AgentHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req AgentRequest
	var image []byte

	if isMultipart(r) {
		var err error
		image, err = readImage(w, r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		req.Transcript = r.FormValue("transcript")
	} else if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if req.Transcript == "" {
		respondError(w, http.StatusBadRequest, "transcript is required")
		return
	}
	if !h.runner.Accepts(req.Transcript) {
		respondError(w, http.StatusUnprocessableEntity, agent.ErrNotTriggered.Error())
		return
	}

	job := h.jobManager.CreateJob(uuid.New().String(), req.Transcript)
	go h.runJob(job, image, req)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.id,
		"status": string(JobStatusPending),
	})
}

func (h *AgentHandler) runJob(job *AgentJob, image []byte, req AgentRequest) {
	// Runs outlive the request, so they get their own context.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if h.runTimeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, h.runTimeout)
		defer stop()
	}
	if !job.setRunning(cancel) {
		return
	}

	var (
		result *agent.Result
		err    error
	)
	if image != nil {
		result, err = h.runner.Run(ctx, image, req.Transcript, job.appendStep)
	} else {
		result, err = h.runner.RunDetections(ctx, req.Detections, req.Transcript, job.appendStep)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		logger.Error("agent job failed",
			logger.Options{Key: "job_id", Data: job.id},
			logger.Options{Key: "error", Data: err},
		)
		job.finish(JobStatusFailed, result, err.Error())
		return
	}
	job.finish(JobStatusCompleted, result, "")
}

func (h *AgentHandler) lookup(w http.ResponseWriter, r *http.Request) *AgentJob {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return nil
	}
	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return nil
	}
	return job
}

// Status returns the status and log of an agent job
func (h *AgentHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}
	respondJSON(w, http.StatusOK, job.View())
}

// Events streams job events via SSE
func (h *AgentHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			return job.(*AgentJob).View()
		},
	)
}

// Cancel stops a running agent job
func (h *AgentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.lookup(w, r)
	if job == nil {
		return
	}
	if !job.Cancel() {
		respondError(w, http.StatusConflict, "job already finished")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(JobStatusCancelled)})
}
