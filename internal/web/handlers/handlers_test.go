package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/facebuddy/facebuddy/internal/agent"
	"github.com/facebuddy/facebuddy/internal/ai"
	"github.com/facebuddy/facebuddy/internal/constants"
	"github.com/facebuddy/facebuddy/internal/facematch"
	"github.com/facebuddy/facebuddy/internal/gallery"
	"github.com/go-chi/chi/v5"
)

type fakeDetector struct {
	dets []facematch.Detection
	err  error
}

func (f *fakeDetector) Detect(ctx context.Context, image []byte) ([]facematch.Detection, error) {
	return f.dets, f.err
}

// gatedInferer blocks until release is closed, then answers.
type gatedInferer struct {
	release chan struct{}
	resp    *ai.Response
	err     error
	mu      sync.Mutex
	prompts []string
}

func (g *gatedInferer) Name() string { return "fake" }

func (g *gatedInferer) GetUsage() ai.Usage { return ai.Usage{} }

func (g *gatedInferer) Infer(ctx context.Context, prompt string) (*ai.Response, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.release != nil {
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.resp, g.err
}

func paymentResponse() *ai.Response {
	return &ai.Response{Content: ai.Content{
		Text: "Sending 5 dollars",
		FunctionCall: &ai.FunctionCall{
			FunctionName: "sendTransaction",
			Args:         ai.Args{"amount": "5"},
		},
	}}
}

type testEnv struct {
	gallery  *gallery.Service
	detector *fakeDetector
	inferer  *gatedInferer
	jobs     *JobManager
	router   *chi.Mux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		gallery:  gallery.NewService(nil),
		detector: &fakeDetector{},
		inferer:  &gatedInferer{resp: paymentResponse()},
		jobs:     NewJobManager(),
	}
	runner := agent.NewRunner(env.detector, env.gallery, agent.NewDispatcher(env.inferer), agent.WithTrigger(true))

	faces := NewFacesHandler(env.gallery, env.detector, -1)
	agents := NewAgentHandler(runner, env.jobs, time.Minute)
	galleries := NewGalleryHandler(env.gallery)

	r := chi.NewRouter()
	r.Get("/api/v1/health", HealthCheck)
	r.Get("/api/v1/faces", faces.List)
	r.Post("/api/v1/faces", faces.Register)
	r.Post("/api/v1/recognize", faces.Recognize)
	r.Post("/api/v1/agent", agents.Start)
	r.Get("/api/v1/agent/{jobId}", agents.Status)
	r.Delete("/api/v1/agent/{jobId}", agents.Cancel)
	r.Get("/api/v1/agent/{jobId}/events", agents.Events)
	r.Get("/api/v1/gallery/snapshot", galleries.Export)
	r.Post("/api/v1/gallery/snapshot", galleries.Publish)
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T, name string, descriptor ...float32) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/v1/faces", RegisterRequest{
		Profile:    facematch.Profile{Name: name},
		Descriptor: descriptor,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", name, rec.Code, rec.Body.String())
	}
}

func multipartBody(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		w.WriteField(k, v)
	}
	if image != nil {
		part, err := w.CreateFormFile("image", "frame.jpg")
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		part.Write(image)
	}
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestRespondHelpers(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusCreated, map[string]int{"count": 2})
	if rec.Code != http.StatusCreated || rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("unexpected response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != "{\"count\":2}\n" {
		t.Errorf("unexpected body %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	respondJSON(rec, http.StatusNoContent, nil)
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body for nil data, got %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	respondError(rec, http.StatusBadRequest, "bad")
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusBadRequest || body["error"] != "bad" {
		t.Errorf("unexpected error response %d %v", rec.Code, body)
	}

	if got := sanitizeForLog("a\nb\rc"); got != "abc" {
		t.Errorf("sanitizeForLog = %q", got)
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}

func TestLargestDetection(t *testing.T) {
	if _, ok := largestDetection(nil); ok {
		t.Error("expected no detection for empty input")
	}
	dets := []facematch.Detection{
		{Box: facematch.Box{Width: 10, Height: 10}, Score: 1},
		{Box: facematch.Box{Width: 20, Height: 5}, Score: 2}, // same area, later
		{Box: facematch.Box{Width: 5, Height: 5}, Score: 3},
	}
	best, _ := largestDetection(dets)
	if best.Score != 1 {
		t.Errorf("expected first of the equal-area detections, got score %v", best.Score)
	}
}

func TestFaces_RegisterAndList(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "0xalice", 0, 0)
	env.register(t, "0xalice", 0.1, 0)
	env.register(t, "0xbob", 1, 1)

	rec := env.do(t, http.MethodGet, "/api/v1/faces", nil)
	var resp GalleryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 2 || resp.Embeddings != 3 || resp.Dim != 2 {
		t.Errorf("unexpected summary %+v", resp)
	}
	if resp.Names[0].Name != "0xalice" || resp.Names[0].Embeddings != 2 {
		t.Errorf("unexpected first name %+v", resp.Names[0])
	}
}

func TestFaces_RegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing name", RegisterRequest{Descriptor: facematch.Embedding{1}}, http.StatusBadRequest},
		{"missing descriptor", RegisterRequest{Profile: facematch.Profile{Name: "x"}}, http.StatusBadRequest},
		{"not an object", "just a string", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/faces", tt.body)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestFaces_RegisterDuplicateWarning(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "0xalice", 0, 0)

	rec := env.do(t, http.MethodPost, "/api/v1/faces", RegisterRequest{
		Profile:    facematch.Profile{Name: "0xmallory"},
		Descriptor: facematch.Embedding{0.05, 0},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	var reg gallery.Registration
	json.Unmarshal(rec.Body.Bytes(), &reg)
	if reg.Duplicate == nil || reg.Duplicate.Name != "0xalice" {
		t.Errorf("expected possible duplicate of alice, got %+v", reg)
	}
}

func TestFaces_RegisterMultipart(t *testing.T) {
	env := newTestEnv(t)
	env.detector.dets = []facematch.Detection{
		{Box: facematch.Box{Width: 10, Height: 10}, Embedding: facematch.Embedding{9, 9}},
		{Box: facematch.Box{Width: 50, Height: 50}, Embedding: facematch.Embedding{1, 2}},
	}

	body, ct := multipartBody(t, map[string]string{"profile": `{"name":"0xcarol","twitter":"carol"}`}, []byte("jpeg"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/faces", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	g, profiles := env.gallery.Snapshot()
	if m := g.Match(facematch.Embedding{1, 2}); m.Label != "0xcarol" {
		t.Errorf("expected largest face registered, got %+v", m)
	}
	if profiles["0xcarol"].Twitter != "carol" {
		t.Errorf("unexpected profile %+v", profiles["0xcarol"])
	}

	// No face in the image.
	env.detector.dets = nil
	body, ct = multipartBody(t, map[string]string{"profile": `{"name":"0xdan"}`}, []byte("jpeg"))
	req = httptest.NewRequest(http.MethodPost, "/api/v1/faces", body)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 without faces, got %d", rec.Code)
	}

	// Missing image.
	body, ct = multipartBody(t, map[string]string{"profile": `{"name":"0xdan"}`}, nil)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/faces", body)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without image, got %d", rec.Code)
	}
}

func TestRecognize(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "0xbob", 1, 0)
	env.register(t, "0xcarol", 0, 1)

	rec := env.do(t, http.MethodPost, "/api/v1/recognize", RecognizeRequest{Detections: []facematch.Detection{
		{Box: facematch.Box{Width: 50, Height: 50}, Embedding: facematch.Embedding{0, 1}},
		{Box: facematch.Box{Width: 100, Height: 100}, Embedding: facematch.Embedding{1, 0.1}},
		{Box: facematch.Box{Width: 200, Height: 200}, Embedding: facematch.Embedding{5, 5}},
	}})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}

	var resp RecognizeResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Face == nil || resp.Face.Profile.Name != "0xbob" || resp.Face.Index != 1 {
		t.Errorf("expected bob at index 1, got %+v", resp.Face)
	}
	if len(resp.Matches) != 3 || resp.Matches[2].Match.Label != facematch.UnknownLabel {
		t.Errorf("unexpected matches %+v", resp.Matches)
	}
}

func TestRecognize_NoFaces(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/recognize", RecognizeRequest{Detections: []facematch.Detection{
		{Box: facematch.Box{Width: 50, Height: 50}, Embedding: facematch.Embedding{0, 1}},
	}})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), constants.NoFacesMessage) {
		t.Errorf("expected %q in body, got %s", constants.NoFacesMessage, rec.Body.String())
	}
}

func TestRecognize_DetectorFailure(t *testing.T) {
	env := newTestEnv(t)
	env.detector.err = errors.New("embedding server down")

	body, ct := multipartBody(t, nil, []byte("jpeg"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/recognize", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func waitForJob(t *testing.T, env *testEnv, id string) AgentJobView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job := env.jobs.GetJob(id)
		if job != nil {
			view := job.View()
			if isJobTerminal(view.Status) {
				return view
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return AgentJobView{}
}

func startJob(t *testing.T, env *testEnv, req AgentRequest) string {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/v1/agent", req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start: status %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["job_id"] == "" {
		t.Fatal("missing job_id")
	}
	return resp["job_id"]
}

func TestAgent_Completed(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "0xbob", 1, 0)

	id := startJob(t, env, AgentRequest{
		Transcript: "Face buddy, send him five dollars",
		Detections: []facematch.Detection{{Box: facematch.Box{Width: 10, Height: 10}, Embedding: facematch.Embedding{1, 0}}},
	})
	view := waitForJob(t, env, id)

	if view.Status != JobStatusCompleted {
		t.Fatalf("status = %s (%s)", view.Status, view.Error)
	}
	if view.Result == nil || view.Result.Outcome != agent.OutcomeCompleted {
		t.Fatalf("unexpected result %+v", view.Result)
	}
	payment, ok := view.Result.Action.(agent.SendPayment)
	if !ok || payment.Recipient != "0xbob" || payment.Amount != "5" {
		t.Errorf("unexpected action %#v", view.Result.Action)
	}
	if len(view.Steps) == 0 || view.Steps[len(view.Steps)-1].Stage != agent.StageDone {
		t.Errorf("expected the log to end with done, got %+v", view.Steps)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/agent/"+id, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"send_payment"`) {
		t.Errorf("unexpected status response %d %s", rec.Code, rec.Body.String())
	}
}

func TestAgent_NoFace(t *testing.T) {
	env := newTestEnv(t)

	id := startJob(t, env, AgentRequest{
		Transcript: "face buddy hello",
		Detections: []facematch.Detection{{Box: facematch.Box{Width: 10, Height: 10}, Embedding: facematch.Embedding{1, 0}}},
	})
	view := waitForJob(t, env, id)

	if view.Status != JobStatusCompleted || view.Result.Outcome != agent.OutcomeNoFace {
		t.Errorf("expected completed no_face job, got %s / %+v", view.Status, view.Result)
	}
	if len(env.inferer.prompts) != 0 {
		t.Error("agent must not be called without a recognized face")
	}
}

func TestAgent_DispatchFailure(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "0xbob", 1, 0)
	env.inferer.err = errors.New("upstream 500")

	id := startJob(t, env, AgentRequest{
		Transcript: "face buddy pay",
		Detections: []facematch.Detection{{Box: facematch.Box{Width: 10, Height: 10}, Embedding: facematch.Embedding{1, 0}}},
	})
	view := waitForJob(t, env, id)

	if view.Status != JobStatusFailed || view.Error == "" {
		t.Errorf("expected failed job with error, got %+v", view)
	}
}

func TestAgent_StartValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/agent", AgentRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty transcript, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/v1/agent", AgentRequest{Transcript: "hello there"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 without trigger words, got %d", rec.Code)
	}
	rec = env.do(t, http.MethodGet, "/api/v1/agent/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown job, got %d", rec.Code)
	}
}

func TestAgent_Cancel(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "0xbob", 1, 0)
	env.inferer.release = make(chan struct{})
	defer close(env.inferer.release)

	id := startJob(t, env, AgentRequest{
		Transcript: "face buddy pay",
		Detections: []facematch.Detection{{Box: facematch.Box{Width: 10, Height: 10}, Embedding: facematch.Embedding{1, 0}}},
	})

	rec := env.do(t, http.MethodDelete, "/api/v1/agent/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	if view := waitForJob(t, env, id); view.Status != JobStatusCancelled {
		t.Errorf("expected cancelled, got %s", view.Status)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/agent/"+id, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on second cancel, got %d", rec.Code)
	}
}

func TestAgent_EventsStream(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "0xbob", 1, 0)
	env.inferer.release = make(chan struct{})

	server := httptest.NewServer(env.router)
	defer server.Close()

	id := startJob(t, env, AgentRequest{
		Transcript: "face buddy pay",
		Detections: []facematch.Detection{{Box: facematch.Box{Width: 10, Height: 10}, Embedding: facematch.Embedding{1, 0}}},
	})

	resp, err := http.Get(server.URL + "/api/v1/agent/" + id + "/events")
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	close(env.inferer.release)

	var events []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
			events = append(events, name)
		}
	}

	if len(events) < 2 || events[0] != "status" || events[len(events)-1] != string(JobStatusCompleted) {
		t.Errorf("unexpected event sequence %v", events)
	}
}

func TestAgent_EventsFinishedJob(t *testing.T) {
	env := newTestEnv(t)
	id := startJob(t, env, AgentRequest{Transcript: "face buddy", Detections: nil})
	waitForJob(t, env, id)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agent/"+id+"/events", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	body := rec.Body.String()
	if strings.Count(body, "event: ") != 1 || !strings.HasPrefix(body, "event: status") {
		t.Errorf("expected a single status event, got %q", body)
	}
}

func TestGallery_PublishDisabled(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/v1/gallery/snapshot", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without blob store, got %d", rec.Code)
	}
}

func TestGallery_Export(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "0xalice", 0.5, 0)

	rec := env.do(t, http.MethodGet, "/api/v1/gallery/snapshot", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	saved, err := gallery.DecodeSnapshot(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(saved) != 1 || saved[0].Label.Name != "0xalice" {
		t.Errorf("unexpected export %+v", saved)
	}
}

func TestJobManager_Prune(t *testing.T) {
	m := NewJobManager()
	old := m.CreateJob("old", "t")
	old.finish(JobStatusCompleted, nil, "")
	past := time.Now().Add(-2 * m.retention)
	old.state.Lock()
	old.completedAt = &past
	old.state.Unlock()

	m.CreateJob("running", "t")
	m.CreateJob("new", "t")

	if m.GetJob("old") != nil {
		t.Error("expected expired job pruned")
	}
	if m.GetJob("running") == nil || m.Len() != 2 {
		t.Errorf("expected 2 live jobs, got %d", m.Len())
	}
}
