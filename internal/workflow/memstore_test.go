package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/oko-labs/agentloop/model"
)

func testWorkflow(id, userID, status string) model.Workflow {
	now := time.Now().UTC()
	return model.Workflow{
		ID:                      id,
		UserID:                  userID,
		ProjectID:               "project-1",
		Goal:                    "fix bug",
		Environment:             model.EnvironmentWeb,
		Definition:              model.DefaultDefinition,
		AgentPrivileges:         model.DefaultPrivileges,
		PreApprovedPrivileges:   model.DefaultPrivileges,
		AllowAgentToRequestUser: true,
		Status:                  status,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

func TestMemoryStore_CreateGet(t *testing.T) {
	store := NewMemoryStore()
	w := testWorkflow("wf-1", "user-1", model.StatusCreated)

	if err := store.Create(context.Background(), w); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	got, err := store.Get(context.Background(), "wf-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Status != model.StatusCreated {
		t.Errorf("status = %s, want created", got.Status)
	}

	if err := store.Create(context.Background(), w); !model.IsCode(err, model.ErrConflict) {
		t.Errorf("duplicate Create error = %v, want CONFLICT", err)
	}
}

func TestMemoryStore_Get_notFound(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "missing")
	if !model.IsCode(err, model.ErrNotFound) {
		t.Fatalf("error = %v, want NOT_FOUND", err)
	}
}

func TestMemoryStore_UpdateStatus(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Create(context.Background(), testWorkflow("wf-1", "user-1", model.StatusCreated))

	err := store.UpdateStatus(context.Background(), "wf-1", model.StatusCreated, model.StatusRunning)
	if err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	got, _ := store.Get(context.Background(), "wf-1")
	if got.Status != model.StatusRunning {
		t.Errorf("status = %s, want running", got.Status)
	}
}

func TestMemoryStore_UpdateStatus_conflict(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Create(context.Background(), testWorkflow("wf-1", "user-1", model.StatusRunning))

	// Expected source does not match the stored status.
	err := store.UpdateStatus(context.Background(), "wf-1", model.StatusCreated, model.StatusRunning)
	if !model.IsCode(err, model.ErrConflict) {
		t.Fatalf("error = %v, want CONFLICT", err)
	}
	got, _ := store.Get(context.Background(), "wf-1")
	if got.Status != model.StatusRunning {
		t.Errorf("status changed on conflict: %s", got.Status)
	}
}

func TestMemoryStore_Touch(t *testing.T) {
	store := NewMemoryStore()
	w := testWorkflow("wf-1", "user-1", model.StatusRunning)
	w.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	_ = store.Create(context.Background(), w)

	now := time.Now().UTC()
	if err := store.Touch(context.Background(), "wf-1", now); err != nil {
		t.Fatalf("Touch error: %v", err)
	}
	got, _ := store.Get(context.Background(), "wf-1")
	if !got.UpdatedAt.Equal(now) {
		t.Errorf("updated_at = %v, want %v", got.UpdatedAt, now)
	}

	// Touch with an older timestamp must not move the heartbeat backwards.
	_ = store.Touch(context.Background(), "wf-1", now.Add(-time.Minute))
	got, _ = store.Get(context.Background(), "wf-1")
	if !got.UpdatedAt.Equal(now) {
		t.Errorf("heartbeat moved backwards: %v", got.UpdatedAt)
	}
}

func TestMemoryStore_List(t *testing.T) {
	store := NewMemoryStore()
	w1 := testWorkflow("wf-1", "user-1", model.StatusRunning)
	w1.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	w2 := testWorkflow("wf-2", "user-1", model.StatusFinished)
	w2.CreatedAt = time.Now().UTC().Add(-1 * time.Hour)
	w3 := testWorkflow("wf-3", "user-2", model.StatusRunning)
	for _, w := range []model.Workflow{w1, w2, w3} {
		_ = store.Create(context.Background(), w)
	}

	got, err := store.List(context.Background(), "user-1", Filters{})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	// Newest first.
	if got[0].ID != "wf-2" || got[1].ID != "wf-1" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}

	got, _ = store.List(context.Background(), "user-1", Filters{Status: model.StatusRunning})
	if len(got) != 1 || got[0].ID != "wf-1" {
		t.Errorf("status filter returned %v", got)
	}
}

func TestMemoryStore_FindStale(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().UTC()

	stale := testWorkflow("wf-stale", "user-1", model.StatusRunning)
	stale.UpdatedAt = now.Add(-time.Hour)
	fresh := testWorkflow("wf-fresh", "user-1", model.StatusRunning)
	finished := testWorkflow("wf-done", "user-1", model.StatusFinished)
	finished.UpdatedAt = now.Add(-time.Hour)
	for _, w := range []model.Workflow{stale, fresh, finished} {
		_ = store.Create(context.Background(), w)
	}

	got, err := store.FindStale(context.Background(), now.Add(-10*time.Minute))
	if err != nil {
		t.Fatalf("FindStale error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "wf-stale" {
		t.Errorf("FindStale returned %v", got)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Create(context.Background(), testWorkflow("wf-1", "user-1", model.StatusCreated))

	if err := store.Delete(context.Background(), "wf-1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d, want 0", store.Len())
	}
	if err := store.Delete(context.Background(), "wf-1"); !model.IsCode(err, model.ErrNotFound) {
		t.Errorf("second Delete error = %v, want NOT_FOUND", err)
	}
}
