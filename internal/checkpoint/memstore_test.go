package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/oko-labs/agentloop/model"
)

func testCheckpoint(id, workflowID, threadTS string, createdAt time.Time) model.Checkpoint {
	return model.Checkpoint{
		ID:         id,
		WorkflowID: workflowID,
		ThreadTS:   threadTS,
		Checkpoint: []byte(`{}`),
		Metadata:   []byte(`{}`),
		CreatedAt:  createdAt,
	}
}

func TestMemoryStore_InsertLookup(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Insert(ctx, testCheckpoint("cp-1", "wf-1", "ts-001", now)); err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	got, err := store.Lookup(ctx, "cp-1")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if got.WorkflowID != "wf-1" || got.ThreadTS != "ts-001" {
		t.Errorf("Lookup = %+v", got)
	}

	if _, err := store.Lookup(ctx, "cp-missing"); !model.IsCode(err, model.ErrNotFound) {
		t.Errorf("Lookup missing error = %v, want NOT_FOUND", err)
	}
}

func TestMemoryStore_Insert_duplicateID(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	c := testCheckpoint("cp-1", "wf-1", "ts-001", now)
	if err := store.Insert(ctx, c); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	if err := store.Insert(ctx, c); !model.IsCode(err, model.ErrConflict) {
		t.Errorf("duplicate Insert error = %v, want CONFLICT", err)
	}
}

func TestMemoryStore_SweepExpired_dropsWholeBuckets(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	old := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	older := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)
	fresh := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	for _, c := range []model.Checkpoint{
		testCheckpoint("cp-1", "wf-1", "ts-001", old),
		testCheckpoint("cp-2", "wf-1", "ts-002", older),
		testCheckpoint("cp-3", "wf-1", "ts-003", fresh),
	} {
		if err := store.Insert(ctx, c); err != nil {
			t.Fatalf("Insert(%s) error: %v", c.ID, err)
		}
	}
	if err := store.InsertWrites(ctx, []model.CheckpointWrite{
		validWrite("wf-1", "ts-001", 0),
		validWrite("wf-1", "ts-003", 0),
	}); err != nil {
		t.Fatalf("InsertWrites error: %v", err)
	}

	dropped, err := store.SweepExpired(ctx, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("SweepExpired error: %v", err)
	}
	if dropped != 2 {
		t.Errorf("dropped = %d buckets, want 2", dropped)
	}
	if store.Partitions() != 1 {
		t.Errorf("partitions = %d, want 1", store.Partitions())
	}

	if _, err := store.Lookup(ctx, "cp-1"); !model.IsCode(err, model.ErrNotFound) {
		t.Errorf("expired checkpoint still present: %v", err)
	}
	if _, err := store.Lookup(ctx, "cp-3"); err != nil {
		t.Errorf("fresh checkpoint lost: %v", err)
	}

	// Expired write log entries go with their bucket.
	writes, err := store.WritesFor(ctx, "wf-1", "ts-001")
	if err != nil {
		t.Fatalf("WritesFor error: %v", err)
	}
	if len(writes) != 0 {
		t.Errorf("expired writes = %d, want 0", len(writes))
	}
	writes, err = store.WritesFor(ctx, "wf-1", "ts-003")
	if err != nil {
		t.Fatalf("WritesFor error: %v", err)
	}
	if len(writes) != 1 {
		t.Errorf("fresh writes = %d, want 1", len(writes))
	}
}

func TestMemoryStore_SweepExpired_cutoffDayRetained(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	cutoff := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	sameDay := time.Date(2026, 8, 15, 1, 0, 0, 0, time.UTC)
	if err := store.Insert(ctx, testCheckpoint("cp-1", "wf-1", "ts-001", sameDay)); err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	dropped, err := store.SweepExpired(ctx, cutoff)
	if err != nil {
		t.Fatalf("SweepExpired error: %v", err)
	}
	if dropped != 0 {
		t.Errorf("dropped = %d, want 0: the cutoff's own day stays", dropped)
	}
	if _, err := store.Lookup(ctx, "cp-1"); err != nil {
		t.Errorf("same-day checkpoint lost: %v", err)
	}
}

func TestMemoryStore_SweepExpired_keepsUncommittedWrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	old := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := store.Insert(ctx, testCheckpoint("cp-1", "wf-1", "ts-001", old)); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	// Writes for ts-002 land before their checkpoint commits.
	if err := store.InsertWrites(ctx, []model.CheckpointWrite{
		validWrite("wf-1", "ts-002", 0),
	}); err != nil {
		t.Fatalf("InsertWrites error: %v", err)
	}

	dropped, err := store.SweepExpired(ctx, time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("SweepExpired error: %v", err)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d buckets, want 1", dropped)
	}

	writes, err := store.WritesFor(ctx, "wf-1", "ts-002")
	if err != nil {
		t.Fatalf("WritesFor error: %v", err)
	}
	if len(writes) != 1 {
		t.Fatalf("in-flight writes = %d, want 1: sweep must not touch them", len(writes))
	}

	// The late commit still joins its writes.
	fresh := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if err := store.Insert(ctx, testCheckpoint("cp-2", "wf-1", "ts-002", fresh)); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
	got, err := store.Lookup(ctx, "cp-2")
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if len(got.Writes) != 1 {
		t.Errorf("joined writes = %d, want 1", len(got.Writes))
	}
}
