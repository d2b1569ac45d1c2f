package workflow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oko-labs/agentloop/internal/observability"
	"github.com/oko-labs/agentloop/model"
)

func testMetrics() *observability.Metrics {
	return observability.InitMetrics(prometheus.NewRegistry())
}

func newTestRegistry() *Registry {
	return NewRegistry(NewMemoryStore(), testMetrics())
}

func validParams() CreateParams {
	return CreateParams{
		UserID:      "user-1",
		ProjectID:   "project-1",
		Goal:        "fix bug",
		Environment: model.EnvironmentWeb,
	}
}

func TestRegistry_Create_defaults(t *testing.T) {
	reg := newTestRegistry()
	w, err := reg.Create(context.Background(), validParams())
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	if w.Status != model.StatusCreated {
		t.Errorf("status = %s, want created", w.Status)
	}
	if w.Definition != model.DefaultDefinition {
		t.Errorf("definition = %s, want %s", w.Definition, model.DefaultDefinition)
	}
	if !model.PrivilegeSubset(w.AgentPrivileges, model.DefaultPrivileges) ||
		!model.PrivilegeSubset(model.DefaultPrivileges, w.AgentPrivileges) {
		t.Errorf("agent privileges = %v, want defaults", w.AgentPrivileges)
	}
	if !model.PrivilegeSubset(w.PreApprovedPrivileges, w.AgentPrivileges) {
		t.Errorf("pre-approved %v not a subset of %v", w.PreApprovedPrivileges, w.AgentPrivileges)
	}
	if !w.AllowAgentToRequestUser {
		t.Error("allow_agent_to_request_user should default to true")
	}
	if w.ID == "" || w.CreatedAt.IsZero() {
		t.Error("identity and timestamps must be assigned")
	}
}

func TestRegistry_Create_validation(t *testing.T) {
	reg := newTestRegistry()

	cases := []struct {
		name   string
		mutate func(*CreateParams)
	}{
		{"missing user", func(p *CreateParams) { p.UserID = "" }},
		{"both scopes", func(p *CreateParams) { p.NamespaceID = "ns-1" }},
		{"goal too long", func(p *CreateParams) { p.Goal = strings.Repeat("g", model.MaxGoalLen+1) }},
		{"image too long", func(p *CreateParams) { p.Image = strings.Repeat("i", model.MaxImageLen+1) }},
		{"bad environment", func(p *CreateParams) { p.Environment = "desktop" }},
		{"unknown privilege", func(p *CreateParams) { p.AgentPrivileges = []int{1, 999} }},
		{"unknown pre-approved", func(p *CreateParams) { p.PreApprovedPrivileges = []int{999} }},
		{"pre-approved not subset", func(p *CreateParams) {
			p.AgentPrivileges = []int{model.PrivilegeReadWriteFiles}
			p.PreApprovedPrivileges = []int{model.PrivilegeReadOnlyAPI}
		}},
		{"pre-approved not in default grants", func(p *CreateParams) {
			p.PreApprovedPrivileges = []int{model.PrivilegeRunCommands}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validParams()
			tc.mutate(&p)
			_, err := reg.Create(context.Background(), p)
			if !model.IsCode(err, model.ErrValidation) {
				t.Fatalf("error = %v, want VALIDATION_ERROR", err)
			}
		})
	}
}

func TestRegistry_ApplyEvent(t *testing.T) {
	reg := newTestRegistry()
	w, _ := reg.Create(context.Background(), validParams())

	w, err := reg.ApplyEvent(context.Background(), w.ID, EventStart)
	if err != nil {
		t.Fatalf("start error: %v", err)
	}
	if w.Status != model.StatusRunning {
		t.Errorf("status = %s, want running", w.Status)
	}

	w, err = reg.ApplyEvent(context.Background(), w.ID, EventPause)
	if err != nil {
		t.Fatalf("pause error: %v", err)
	}
	if w.Status != model.StatusPaused {
		t.Errorf("status = %s, want paused", w.Status)
	}
}

func TestRegistry_ApplyEvent_illegal(t *testing.T) {
	reg := newTestRegistry()
	w, _ := reg.Create(context.Background(), validParams())

	// finish is only legal from running.
	_, err := reg.ApplyEvent(context.Background(), w.ID, EventFinish)
	if !model.IsCode(err, model.ErrIllegalTransition) {
		t.Fatalf("error = %v, want ILLEGAL_TRANSITION", err)
	}

	got, _ := reg.Get(context.Background(), w.ID)
	if got.Status != model.StatusCreated {
		t.Errorf("status mutated by illegal event: %s", got.Status)
	}
}

func TestRegistry_ApplyEvent_notFound(t *testing.T) {
	reg := newTestRegistry()
	_, err := reg.ApplyEvent(context.Background(), "missing", EventStart)
	if !model.IsCode(err, model.ErrNotFound) {
		t.Fatalf("error = %v, want NOT_FOUND", err)
	}
}

func TestRegistry_FindStale(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry(store, testMetrics())

	w := testWorkflow("wf-stale", "user-1", model.StatusRunning)
	w.UpdatedAt = time.Now().UTC().Add(-2 * time.Hour)
	_ = store.Create(context.Background(), w)

	got, err := reg.FindStale(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("FindStale error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "wf-stale" {
		t.Errorf("FindStale returned %v", got)
	}
}

func TestRegistry_Destroy(t *testing.T) {
	reg := newTestRegistry()
	w, _ := reg.Create(context.Background(), validParams())

	if err := reg.Destroy(context.Background(), w.ID); err != nil {
		t.Fatalf("Destroy error: %v", err)
	}
	if _, err := reg.Get(context.Background(), w.ID); !model.IsCode(err, model.ErrNotFound) {
		t.Errorf("Get after Destroy = %v, want NOT_FOUND", err)
	}
}

type stubScopeCapability struct {
	enabled bool
}

func (s stubScopeCapability) MCPEnabled(_ context.Context, _, _ string) (bool, error) {
	return s.enabled, nil
}

func TestRegistry_MCPEnabled(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry(store, testMetrics(), WithScopeCapability(stubScopeCapability{enabled: true}))

	w, err := reg.Create(context.Background(), validParams())
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	got, err := reg.MCPEnabled(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("MCPEnabled error: %v", err)
	}
	if !got {
		t.Error("MCPEnabled = false, want the resolver's answer")
	}

	if _, err := reg.MCPEnabled(context.Background(), "missing"); !model.IsCode(err, model.ErrNotFound) {
		t.Errorf("MCPEnabled on missing workflow = %v, want NOT_FOUND", err)
	}
}

func TestRegistry_MCPEnabled_noResolver(t *testing.T) {
	reg := newTestRegistry()
	w, err := reg.Create(context.Background(), validParams())
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	got, err := reg.MCPEnabled(context.Background(), w.ID)
	if err != nil {
		t.Fatalf("MCPEnabled error: %v", err)
	}
	if got {
		t.Error("MCPEnabled = true without a resolver")
	}
}
