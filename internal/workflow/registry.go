package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oko-labs/agentloop/internal/observability"
	"github.com/oko-labs/agentloop/model"
)

// CreateParams are the caller-supplied fields for a new workflow.
type CreateParams struct {
	UserID                  string
	ProjectID               string
	NamespaceID             string
	Goal                    string
	Image                   string
	Environment             string
	Definition              string
	AgentPrivileges         []int
	PreApprovedPrivileges   []int
	AllowAgentToRequestUser *bool
}

// Registry manages workflow identity and lifecycle. All status changes go
// through ApplyEvent; there is no raw status setter.
type Registry struct {
	store   Store
	metrics *observability.Metrics
	scopes  ScopeCapability
}

// ScopeCapability resolves capability flags on a workflow's owning scope.
// Implemented by the embedding platform; the core only delegates.
type ScopeCapability interface {
	MCPEnabled(ctx context.Context, projectID, namespaceID string) (bool, error)
}

// Option configures a Registry.
type Option func(*Registry)

// WithScopeCapability installs the resolver consulted by MCPEnabled.
func WithScopeCapability(sc ScopeCapability) Option {
	return func(r *Registry) { r.scopes = sc }
}

// NewRegistry creates a workflow registry backed by the given store.
func NewRegistry(store Store, metrics *observability.Metrics, opts ...Option) *Registry {
	r := &Registry{store: store, metrics: metrics}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create validates params, applies defaults, and persists a new workflow in
// status created.
func (r *Registry) Create(ctx context.Context, p CreateParams) (model.Workflow, error) {
	ctx, span := observability.StartSpan(ctx, "registry.create")

	if details := validateCreate(p); len(details) > 0 {
		err := model.NewValidationError(details...)
		observability.EndSpanWithError(span, err)
		return model.Workflow{}, err
	}

	privileges := p.AgentPrivileges
	if len(privileges) == 0 {
		privileges = append([]int(nil), model.DefaultPrivileges...)
	}
	preApproved := p.PreApprovedPrivileges
	if preApproved == nil {
		preApproved = append([]int(nil), privileges...)
	}

	definition := p.Definition
	if definition == "" {
		definition = model.DefaultDefinition
	}

	allowRequestUser := true
	if p.AllowAgentToRequestUser != nil {
		allowRequestUser = *p.AllowAgentToRequestUser
	}

	now := time.Now().UTC()
	w := model.Workflow{
		ID:                      uuid.New().String(),
		UserID:                  p.UserID,
		ProjectID:               p.ProjectID,
		NamespaceID:             p.NamespaceID,
		Goal:                    p.Goal,
		Image:                   p.Image,
		Environment:             p.Environment,
		Definition:              definition,
		AgentPrivileges:         privileges,
		PreApprovedPrivileges:   preApproved,
		AllowAgentToRequestUser: allowRequestUser,
		Status:                  model.StatusCreated,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := r.store.Create(ctx, w); err != nil {
		observability.EndSpanWithError(span, err)
		return model.Workflow{}, err
	}
	observability.EndSpanWithError(span, nil)
	return w, nil
}

// Get retrieves a workflow by ID.
func (r *Registry) Get(ctx context.Context, id string) (model.Workflow, error) {
	return r.store.Get(ctx, id)
}

// List returns workflows owned by userID, newest first.
func (r *Registry) List(ctx context.Context, userID string, filters Filters) ([]model.Workflow, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return r.store.List(ctx, userID, filters)
}

// ApplyEvent applies a state-machine event to the workflow. The persisted
// write is conditioned on the loaded status; a concurrent transition
// surfaces as CONFLICT, which the caller retries with fresh state. Illegal
// events surface as ILLEGAL_TRANSITION and leave the status unchanged.
func (r *Registry) ApplyEvent(ctx context.Context, id, event string) (model.Workflow, error) {
	ctx, span := observability.StartSpan(ctx, "registry.apply_event",
		observability.AttrWorkflowID.String(id),
		observability.AttrWorkflowEvent.String(event),
	)

	w, err := r.store.Get(ctx, id)
	if err != nil {
		observability.EndSpanWithError(span, err)
		return model.Workflow{}, err
	}

	target, err := Next(w.Status, event)
	if err != nil {
		r.metrics.IllegalTransitionsTotal.WithLabelValues(event).Inc()
		observability.EndSpanWithError(span, err)
		return model.Workflow{}, err
	}

	if err := r.store.UpdateStatus(ctx, id, w.Status, target); err != nil {
		if model.IsCode(err, model.ErrConflict) {
			r.metrics.TransitionConflicts.Inc()
		}
		observability.EndSpanWithError(span, err)
		return model.Workflow{}, err
	}

	r.metrics.TransitionsTotal.WithLabelValues(event, target).Inc()
	observability.EndSpanWithError(span, nil)
	w.Status = target
	w.UpdatedAt = time.Now().UTC()
	return w, nil
}

// FindStale returns non-terminal workflows whose heartbeat is older than
// threshold. Detection only: no transition is taken here, an external
// supervisor decides what to do with the result.
func (r *Registry) FindStale(ctx context.Context, threshold time.Duration) ([]model.Workflow, error) {
	cutoff := time.Now().UTC().Add(-threshold)
	return r.store.FindStale(ctx, cutoff)
}

// MCPEnabled reports whether the workflow's owning scope allows MCP
// tools. Without a configured resolver every scope reads as disabled.
func (r *Registry) MCPEnabled(ctx context.Context, id string) (bool, error) {
	w, err := r.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if r.scopes == nil {
		return false, nil
	}
	return r.scopes.MCPEnabled(ctx, w.ProjectID, w.NamespaceID)
}

// Destroy removes a workflow. Owner-initiated only.
func (r *Registry) Destroy(ctx context.Context, id string) error {
	return r.store.Delete(ctx, id)
}

// Store exposes the underlying store, for collaborators that need the
// heartbeat Touch (checkpoint commits).
func (r *Registry) Store() Store {
	return r.store
}

// validateCreate checks field constraints and the privilege invariants.
func validateCreate(p CreateParams) []model.FieldError {
	var details []model.FieldError

	if p.UserID == "" {
		details = append(details, model.FieldError{
			Field: "user_id", Code: "required", Message: "owning user is required",
		})
	}
	if p.ProjectID != "" && p.NamespaceID != "" {
		details = append(details, model.FieldError{
			Field: "project_id", Code: "exclusive",
			Message: "a workflow is scoped to a project or a namespace, not both",
		})
	}
	if len(p.Goal) > model.MaxGoalLen {
		details = append(details, model.FieldError{
			Field: "goal", Code: "too_long",
			Message: fmt.Sprintf("goal exceeds %d characters", model.MaxGoalLen),
		})
	}
	if len(p.Image) > model.MaxImageLen {
		details = append(details, model.FieldError{
			Field: "image", Code: "too_long",
			Message: fmt.Sprintf("image exceeds %d characters", model.MaxImageLen),
		})
	}
	if !model.ValidEnvironment(p.Environment) {
		details = append(details, model.FieldError{
			Field: "environment", Code: "invalid",
			Message: fmt.Sprintf("environment must be %q or %q", model.EnvironmentIDE, model.EnvironmentWeb),
		})
	}

	for _, id := range p.AgentPrivileges {
		if !model.KnownPrivilege(id) {
			details = append(details, model.FieldError{
				Field: "agent_privileges", Code: "invalid",
				Message: fmt.Sprintf("unknown privilege %d", id),
			})
		}
	}
	for _, id := range p.PreApprovedPrivileges {
		if !model.KnownPrivilege(id) {
			details = append(details, model.FieldError{
				Field: "pre_approved_agent_privileges", Code: "invalid",
				Message: fmt.Sprintf("unknown privilege %d", id),
			})
		}
	}

	// The subset invariant is checked against the effective grant set.
	effective := p.AgentPrivileges
	if len(effective) == 0 {
		effective = model.DefaultPrivileges
	}
	if !model.PrivilegeSubset(p.PreApprovedPrivileges, effective) {
		details = append(details, model.FieldError{
			Field: "pre_approved_agent_privileges", Code: "not_subset",
			Message: "pre-approved privileges must be a subset of agent privileges",
		})
	}

	return details
}
