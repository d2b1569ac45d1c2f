package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oko-labs/agentloop/internal/checkpoint"
)

func handleCheckpointList(checkpoints *checkpoint.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listed, err := checkpoints.ListWithWrites(r.Context(), chi.URLParam(r, "workflowID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"data": listed})
	}
}

func handleCheckpointLatest(checkpoints *checkpoint.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		latest, err := checkpoints.Latest(r.Context(), chi.URLParam(r, "workflowID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, latest)
	}
}
