package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/oko-labs/agentloop/internal/checkpoint"
	"github.com/oko-labs/agentloop/internal/events"
	"github.com/oko-labs/agentloop/internal/observability"
	"github.com/oko-labs/agentloop/internal/workflow"
	"github.com/oko-labs/agentloop/model"
)

// --- Test helpers ---

func newTestRouter(t *testing.T) (chi.Router, Dependencies) {
	t.Helper()
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	registry := workflow.NewRegistry(workflow.NewMemoryStore(), metrics)
	queue := events.NewQueue(events.NewMemoryStore(), events.NewMemoryReservationCache(), time.Hour, metrics)
	checkpoints := checkpoint.NewService(checkpoint.NewMemoryStore(), registry.Store(), metrics)

	deps := Dependencies{Registry: registry, Queue: queue, Checkpoints: checkpoints}
	r := chi.NewRouter()
	Register(r, deps)
	return r, deps
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createWorkflow(t *testing.T, r chi.Router) model.Workflow {
	t.Helper()
	w := doJSON(t, r, "POST", "/v1/workflows", map[string]any{
		"user_id":     "user-1",
		"project_id":  "project-1",
		"goal":        "migrate the billing service",
		"environment": model.EnvironmentWeb,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create workflow status = %d, body = %s", w.Code, w.Body.String())
	}
	var created model.Workflow
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode workflow: %v", err)
	}
	return created
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) model.ErrorEnvelope {
	t.Helper()
	var body struct {
		Error model.ErrorEnvelope `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

// --- Workflow handlers ---

func TestHandleWorkflowCreateAndGet(t *testing.T) {
	r, _ := newTestRouter(t)

	created := createWorkflow(t, r)
	if created.Status != model.StatusCreated {
		t.Errorf("status = %q, want created", created.Status)
	}

	w := doJSON(t, r, "GET", "/v1/workflows/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var got model.Workflow
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode workflow: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("got id %q, want %q", got.ID, created.ID)
	}
}

func TestHandleWorkflowGet_notFound(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, "GET", "/v1/workflows/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if e := decodeError(t, w); e.Code != model.ErrNotFound {
		t.Errorf("error code = %q, want NOT_FOUND", e.Code)
	}
}

func TestHandleWorkflowCreate_validation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, "POST", "/v1/workflows", map[string]any{"goal": "no owner"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	if e := decodeError(t, w); e.Code != model.ErrValidation {
		t.Errorf("error code = %q, want VALIDATION_ERROR", e.Code)
	}
}

func TestHandleWorkflowCreate_badJSON(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest("POST", "/v1/workflows", bytes.NewReader([]byte("{not json")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestHandleWorkflowList_filtersByStatus(t *testing.T) {
	r, _ := newTestRouter(t)

	createWorkflow(t, r)
	createWorkflow(t, r)

	w := doJSON(t, r, "GET", "/v1/workflows?user_id=user-1&status=created", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var body struct {
		Data []model.Workflow `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(body.Data) != 2 {
		t.Errorf("listed %d workflows, want 2", len(body.Data))
	}
}

// --- Event handlers ---

func TestHandleEventEnqueue(t *testing.T) {
	r, deps := newTestRouter(t)
	created := createWorkflow(t, r)

	w := doJSON(t, r, "POST", "/v1/workflows/"+created.ID+"/events", map[string]any{
		"event_type": model.EventMessage,
		"message":    "use the staging cluster",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("enqueue status = %d, body = %s", w.Code, w.Body.String())
	}
	var e model.Event
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if e.CorrelationID == "" {
		t.Error("correlation id not assigned")
	}

	queued, err := deps.Queue.PollQueued(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("PollQueued error: %v", err)
	}
	if len(queued) != 1 {
		t.Errorf("queued = %d events, want 1", len(queued))
	}
}

func TestHandleEventEnqueue_duplicateCorrelation(t *testing.T) {
	r, _ := newTestRouter(t)
	created := createWorkflow(t, r)

	body := map[string]any{
		"event_type":     model.EventPause,
		"correlation_id": "7f9c24e5-1f6a-4f3a-9d5b-0a8f3f1c2d4e",
	}
	if w := doJSON(t, r, "POST", "/v1/workflows/"+created.ID+"/events", body); w.Code != http.StatusAccepted {
		t.Fatalf("first enqueue status = %d", w.Code)
	}

	w := doJSON(t, r, "POST", "/v1/workflows/"+created.ID+"/events", body)
	if w.Code != http.StatusConflict {
		t.Fatalf("replay status = %d, want 409", w.Code)
	}
	if e := decodeError(t, w); e.Code != model.ErrDuplicateCorrelID {
		t.Errorf("error code = %q, want DUPLICATE_CORRELATION_ID", e.Code)
	}
}

func TestHandleEventByCorrelation(t *testing.T) {
	r, _ := newTestRouter(t)
	created := createWorkflow(t, r)

	correlID := "7f9c24e5-1f6a-4f3a-9d5b-0a8f3f1c2d4e"
	doJSON(t, r, "POST", "/v1/workflows/"+created.ID+"/events", map[string]any{
		"event_type":     model.EventStop,
		"correlation_id": correlID,
	})

	w := doJSON(t, r, "GET", "/v1/workflows/"+created.ID+"/events/"+correlID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("lookup status = %d", w.Code)
	}
	var e model.Event
	if err := json.Unmarshal(w.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if e.Type != model.EventStop {
		t.Errorf("type = %q, want stop", e.Type)
	}
}

// --- Checkpoint handlers ---

func TestHandleCheckpointLatestAndList(t *testing.T) {
	r, deps := newTestRouter(t)
	created := createWorkflow(t, r)

	for _, ts := range []string{"ts-001", "ts-002"} {
		if _, err := deps.Checkpoints.Commit(context.Background(), checkpoint.CommitParams{
			WorkflowID: created.ID,
			ThreadTS:   ts,
			Checkpoint: []byte(`{"state":"x"}`),
			Metadata:   []byte(`{}`),
		}); err != nil {
			t.Fatalf("Commit(%s) error: %v", ts, err)
		}
	}

	w := doJSON(t, r, "GET", "/v1/workflows/"+created.ID+"/checkpoints/latest", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("latest status = %d", w.Code)
	}
	var latest model.Checkpoint
	if err := json.Unmarshal(w.Body.Bytes(), &latest); err != nil {
		t.Fatalf("decode checkpoint: %v", err)
	}
	if latest.ThreadTS != "ts-002" {
		t.Errorf("latest thread_ts = %q, want ts-002", latest.ThreadTS)
	}

	w = doJSON(t, r, "GET", "/v1/workflows/"+created.ID+"/checkpoints", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var body struct {
		Data []model.Checkpoint `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(body.Data) != 2 || body.Data[0].ThreadTS != "ts-002" {
		t.Errorf("list = %+v, want 2 newest-first", body.Data)
	}
}

func TestHandleCheckpointLatest_notFound(t *testing.T) {
	r, _ := newTestRouter(t)
	created := createWorkflow(t, r)

	w := doJSON(t, r, "GET", "/v1/workflows/"+created.ID+"/checkpoints/latest", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}
