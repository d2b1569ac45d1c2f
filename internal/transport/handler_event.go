package transport

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oko-labs/agentloop/internal/events"
)

func handleEventEnqueue(queue *events.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Type          string `json:"event_type"`
			Message       string `json:"message"`
			CorrelationID string `json:"correlation_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeBadBody(w)
			return
		}

		e, err := queue.Enqueue(r.Context(), events.EnqueueParams{
			WorkflowID:    chi.URLParam(r, "workflowID"),
			Type:          body.Type,
			Message:       body.Message,
			CorrelationID: body.CorrelationID,
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusAccepted, e)
	}
}

func handleEventByCorrelation(queue *events.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := queue.FindByCorrelationID(r.Context(),
			chi.URLParam(r, "workflowID"), chi.URLParam(r, "correlationID"))
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, e)
	}
}
