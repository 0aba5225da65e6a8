package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/facebuddy/facebuddy/internal/ai"
	"github.com/facebuddy/facebuddy/internal/config"
	"github.com/facebuddy/facebuddy/internal/constants"
	"github.com/facebuddy/facebuddy/internal/facematch"
	"github.com/facebuddy/facebuddy/internal/logger"
)

// ErrNotTriggered is returned when the transcript lacks the wake words.
var ErrNotTriggered = errors.New("transcript does not address the agent")

// Run outcomes.
const (
	OutcomeCompleted = "completed"
	OutcomeNoFace    = "no_face"
	OutcomeFailed    = "failed"
)

// Detector locates faces in an encoded image.
type Detector interface {
	Detect(ctx context.Context, image []byte) ([]facematch.Detection, error)
}

// GallerySource hands out the gallery and profiles current at call time.
type GallerySource interface {
	Snapshot() (*facematch.Gallery, map[string]facematch.Profile)
}

// Result is the outcome of one run.
type Result struct {
	Outcome   string                  `json:"outcome"`
	Face      *facematch.ResolvedFace `json:"face,omitempty"`
	Action    Action                  `json:"action,omitempty"`
	Response  *ai.Response            `json:"response,omitempty"`
	Summary   string                  `json:"summary,omitempty"`
	BaseUnits string                  `json:"baseUnits,omitempty"` // payment amount in the asset's smallest unit
	Steps     []Step                  `json:"steps"`
}

// Runner drives one recognition pass: detect, resolve the largest known face,
// dispatch the transcript and record every stage.
type Runner struct {
	detector       Detector
	gallery        GallerySource
	dispatcher     *Dispatcher
	threshold      float64
	requireTrigger bool
	assets         *config.Config
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithThreshold overrides the match threshold.
func WithThreshold(t float64) RunnerOption {
	return func(r *Runner) { r.threshold = t }
}

// WithTrigger makes Run reject transcripts without the wake words.
func WithTrigger(required bool) RunnerOption {
	return func(r *Runner) { r.requireTrigger = required }
}

// WithAssets converts payment amounts into base units of the assets in cfg.
func WithAssets(cfg *config.Config) RunnerOption {
	return func(r *Runner) { r.assets = cfg }
}

func NewRunner(detector Detector, gallery GallerySource, dispatcher *Dispatcher, opts ...RunnerOption) *Runner {
	r := &Runner{
		detector:   detector,
		gallery:    gallery,
		dispatcher: dispatcher,
		threshold:  -1,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Accepts reports whether transcript passes the trigger check, if one is
// required.
func (r *Runner) Accepts(transcript string) bool {
	return !r.requireTrigger || IsTriggered(transcript)
}

// Run detects faces in image and continues with RunDetections.
func (r *Runner) Run(ctx context.Context, image []byte, transcript string, onStep func(Step)) (*Result, error) {
	if !r.Accepts(transcript) {
		return nil, ErrNotTriggered
	}
	if r.detector == nil {
		return nil, errors.New("no face detector configured")
	}

	log := NewLog(onStep)
	log.Append(StageScan, StatusRunning, "Scanning face")

	dets, err := r.detector.Detect(ctx, image)
	if err != nil {
		log.Append(StageScan, StatusFailed, err.Error())
		return &Result{Outcome: OutcomeFailed, Steps: log.Steps()}, fmt.Errorf("face detection failed: %w", err)
	}

	return r.run(ctx, dets, transcript, log)
}

// RunDetections runs the pipeline on detections computed elsewhere.
func (r *Runner) RunDetections(ctx context.Context, dets []facematch.Detection, transcript string, onStep func(Step)) (*Result, error) {
	if !r.Accepts(transcript) {
		return nil, ErrNotTriggered
	}

	log := NewLog(onStep)
	log.Append(StageScan, StatusRunning, "Scanning face")
	return r.run(ctx, dets, transcript, log)
}

func (r *Runner) run(ctx context.Context, dets []facematch.Detection, transcript string, log *Log) (*Result, error) {
	gallery, profiles := r.gallery.Snapshot()

	face, err := facematch.Resolve(dets, gallery, profiles, r.threshold)
	if err != nil {
		if errors.Is(err, facematch.ErrInconsistentGallery) {
			logger.Error("inconsistent gallery", logger.Options{Key: "error", Data: err})
		}
		log.Append(StageScan, StatusFailed, constants.NoFacesMessage)
		log.Append(StageDone, StatusSkipped, "")
		return &Result{Outcome: OutcomeNoFace, Steps: log.Steps()}, nil
	}
	log.Append(StageScan, StatusOK, "Recognized "+face.Profile.Name)

	log.Append(StagePrompt, StatusRunning, "Processing prompt")
	action, resp, err := r.dispatcher.Dispatch(ctx, transcript, face)
	if err != nil {
		log.Append(StagePrompt, StatusFailed, err.Error())
		log.Append(StageDone, StatusFailed, "")
		logger.Error("agent dispatch failed",
			logger.Options{Key: "error", Data: err},
			logger.Options{Key: "recipient", Data: face.Profile.Name},
		)
		return &Result{Outcome: OutcomeFailed, Face: face, Steps: log.Steps()}, err
	}
	log.Append(StagePrompt, StatusOK, "")

	summary := Summarize(resp.Content.Text)
	log.Append(StageResponse, StatusOK, summary)

	if _, ok := action.(NoAction); ok {
		log.Append(StageExecute, StatusSkipped, action.Describe())
	} else {
		log.Append(StageExecute, StatusOK, action.Describe())
	}
	log.Append(StageDone, StatusOK, "")

	result := &Result{
		Outcome:  OutcomeCompleted,
		Face:     face,
		Action:   action,
		Response: resp,
		Summary:  summary,
		Steps:    log.Steps(),
	}
	if payment, ok := action.(SendPayment); ok && r.assets != nil {
		units, err := payment.BaseUnitsFor(r.assets)
		if err != nil {
			logger.Warning("payment left in USD",
				logger.Options{Key: "asset", Data: payment.Asset},
				logger.Options{Key: "error", Data: err},
			)
		} else {
			result.BaseUnits = units.String()
		}
	}
	return result, nil
}
