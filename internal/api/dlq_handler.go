package api

import (
	"encoding/json"
	"net/http"

	"github.com/sungwon/mailqueue/internal/logger"
	"github.com/sungwon/mailqueue/internal/queue"
)

// dlqReprocessRequest is the JSON body for POST /api/v1/dlq/reprocess.
type dlqReprocessRequest struct {
	Channel  string   `json:"channel"`
	EntryIDs []string `json:"entry_ids"`
}

// dlqReprocessResponse is the JSON response for a DLQ reprocess operation.
type dlqReprocessResponse struct {
	Reprocessed int `json:"reprocessed"`
	Total       int `json:"total"`
}

// DLQReprocessHandler handles POST /api/v1/dlq/reprocess.
// It re-enqueues dead tasks back onto their channel with a fresh retry budget.
// An empty channel selects defaultChannel.
func DLQReprocessHandler(dlq queue.DeadLetterQueue, defaultChannel string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req dlqReprocessRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		if len(req.EntryIDs) == 0 {
			respondError(w, http.StatusBadRequest, "entry_ids is required and must not be empty")
			return
		}
		channel := req.Channel
		if channel == "" {
			channel = defaultChannel
		}

		reprocessed, err := dlq.Reprocess(r.Context(), channel, req.EntryIDs)
		if err != nil {
			log.Error().Err(err).
				Str("channel", channel).
				Int("requested", len(req.EntryIDs)).
				Int("reprocessed", reprocessed).
				Msg("dlq reprocess failed")
			respondError(w, http.StatusInternalServerError, "reprocess failed")
			return
		}

		log.Info().
			Str("channel", channel).
			Int("reprocessed", reprocessed).
			Int("total", len(req.EntryIDs)).
			Msg("dlq reprocess completed")

		respondJSON(w, http.StatusOK, dlqReprocessResponse{
			Reprocessed: reprocessed,
			Total:       len(req.EntryIDs),
		})
	}
}
