package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sungwon/mailqueue/internal/logger"
	"github.com/sungwon/mailqueue/internal/queue"
)

// TaskStatusHandler handles GET /api/v1/tasks/{id}.
// It returns the recorded state, result and error of a send task.
func TaskStatusHandler(states queue.StateStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			respondError(w, http.StatusBadRequest, "task id is required")
			return
		}

		rec, err := states.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, queue.ErrTaskNotFound) {
				respondError(w, http.StatusNotFound, "task not found")
				return
			}
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Str("task_id", id).Msg("failed to get task")
			respondError(w, http.StatusInternalServerError, "failed to get task")
			return
		}

		respondJSON(w, http.StatusOK, rec)
	}
}
