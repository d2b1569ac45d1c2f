package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/oko-labs/agentloop/internal/workflow"
)

func handleWorkflowCreate(registry *workflow.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID                  string `json:"user_id"`
			ProjectID               string `json:"project_id"`
			NamespaceID             string `json:"namespace_id"`
			Goal                    string `json:"goal"`
			Image                   string `json:"image"`
			Environment             string `json:"environment"`
			Definition              string `json:"workflow_definition"`
			AgentPrivileges         []int  `json:"agent_privileges"`
			PreApprovedPrivileges   []int  `json:"pre_approved_privileges"`
			AllowAgentToRequestUser *bool  `json:"allow_agent_to_request_user"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeBadBody(w)
			return
		}

		created, err := registry.Create(r.Context(), workflow.CreateParams{
			UserID:                  body.UserID,
			ProjectID:               body.ProjectID,
			NamespaceID:             body.NamespaceID,
			Goal:                    body.Goal,
			Image:                   body.Image,
			Environment:             body.Environment,
			Definition:              body.Definition,
			AgentPrivileges:         body.AgentPrivileges,
			PreApprovedPrivileges:   body.PreApprovedPrivileges,
			AllowAgentToRequestUser: body.AllowAgentToRequestUser,
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusCreated, created)
	}
}

func handleWorkflowGet(registry *workflow.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got, err := registry.Get(r.Context(), chi.URLParam(r, "workflowID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, got)
	}
}

func handleWorkflowList(registry *workflow.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filters := workflow.Filters{
			Status:     r.URL.Query().Get("status"),
			ProjectID:  r.URL.Query().Get("project_id"),
			Definition: r.URL.Query().Get("workflow_definition"),
			Limit:      queryInt(r, "limit", 20),
			Offset:     queryInt(r, "offset", 0),
		}
		listed, err := registry.List(r.Context(), r.URL.Query().Get("user_id"), filters)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"data":   listed,
			"limit":  filters.Limit,
			"offset": filters.Offset,
		})
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
