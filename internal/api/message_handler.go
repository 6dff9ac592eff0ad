package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sungwon/mailqueue/internal/logger"
	"github.com/sungwon/mailqueue/internal/mail"
	"github.com/sungwon/mailqueue/internal/msgstore"
	"github.com/sungwon/mailqueue/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxBatchSize     = 500
)

// MessageStore is the record store behind the message endpoints.
type MessageStore interface {
	Create(ctx context.Context, p storage.CreateMessageParams) (mail.Message, error)
	CreateMany(ctx context.Context, params []storage.CreateMessageParams) ([]mail.Message, error)
	Update(ctx context.Context, ids []uuid.UUID, p storage.UpdateMessageParams) ([]mail.Message, error)
	Get(ctx context.Context, id uuid.UUID) (mail.Message, error)
	ListByStatus(ctx context.Context, status mail.Status, limit int) ([]mail.Message, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// bodyOffloader moves bodies larger than limit into the body store.
type bodyOffloader struct {
	store msgstore.BodyStore
	limit int
}

// offload returns the body to keep inline and the body store reference.
// Exactly one of them is set for a non-empty body.
func (o bodyOffloader) offload(ctx context.Context, body []byte) ([]byte, string, error) {
	if o.store == nil || o.limit <= 0 || len(body) <= o.limit {
		return body, "", nil
	}
	ref := uuid.NewString()
	if err := o.store.Put(ctx, ref, body); err != nil {
		return nil, "", fmt.Errorf("store body: %w", err)
	}
	return nil, ref, nil
}

// messageRequest is the JSON body for creating or updating a message.
// Omitted fields keep their default on create and are untouched on update.
type messageRequest struct {
	Status   *string           `json:"status"`
	Priority *int              `json:"priority"`
	Server   *string           `json:"server"`
	From     *string           `json:"from"`
	To       []string          `json:"to"`
	Subject  *string           `json:"subject"`
	Headers  map[string]string `json:"headers"`
	Body     *string           `json:"body"`
}

// batchUpdateRequest is the JSON body for PATCH /api/v1/messages.
type batchUpdateRequest struct {
	IDs []string `json:"ids"`
	messageRequest
}

// messageResponse is the JSON representation of a message record.
type messageResponse struct {
	ID            uuid.UUID         `json:"id"`
	Status        mail.Status       `json:"status"`
	Priority      int               `json:"priority"`
	Server        string            `json:"server,omitempty"`
	From          string            `json:"from"`
	To            []string          `json:"to"`
	Subject       string            `json:"subject"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          string            `json:"body,omitempty"`
	BodyRef       string            `json:"body_ref,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	// Warning is set when the record was saved but its send task could
	// not be scheduled.
	Warning string `json:"warning,omitempty"`
}

func toMessageResponse(m mail.Message) messageResponse {
	return messageResponse{
		ID:            m.ID,
		Status:        m.Status,
		Priority:      m.Priority,
		Server:        m.Server,
		From:          m.From,
		To:            m.To,
		Subject:       m.Subject,
		Headers:       m.Headers,
		Body:          string(m.Body),
		BodyRef:       m.BodyRef,
		FailureReason: m.FailureReason,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toMessageResponses(msgs []mail.Message, warning string) []messageResponse {
	resp := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		r := toMessageResponse(m)
		r.Warning = warning
		resp = append(resp, r)
	}
	return resp
}

// validateCreate checks a create request and returns validation details.
func validateCreate(req messageRequest) []string {
	var errs []string
	if req.From == nil || *req.From == "" {
		errs = append(errs, "from is required")
	}
	if len(req.To) == 0 {
		errs = append(errs, "to must contain at least one recipient")
	}
	return append(errs, validateCommon(req)...)
}

func validateCommon(req messageRequest) []string {
	var errs []string
	if req.Status != nil && !mail.Status(*req.Status).Valid() {
		errs = append(errs, fmt.Sprintf("status %q is not valid", *req.Status))
	}
	if req.Priority != nil && *req.Priority < 0 {
		errs = append(errs, "priority must not be negative")
	}
	return errs
}

func (o bodyOffloader) createParams(ctx context.Context, req messageRequest) (storage.CreateMessageParams, error) {
	p := storage.CreateMessageParams{
		Status:   mail.StatusOutgoing,
		Priority: req.Priority,
		To:       req.To,
		Headers:  req.Headers,
	}
	if req.Status != nil {
		p.Status = mail.Status(*req.Status)
	}
	if req.Server != nil {
		p.Server = *req.Server
	}
	if req.From != nil {
		p.From = *req.From
	}
	if req.Subject != nil {
		p.Subject = *req.Subject
	}
	if req.Body != nil {
		body, ref, err := o.offload(ctx, []byte(*req.Body))
		if err != nil {
			return p, err
		}
		p.Body, p.BodyRef = body, ref
	}
	return p, nil
}

func (o bodyOffloader) updateParams(ctx context.Context, req messageRequest) (storage.UpdateMessageParams, error) {
	p := storage.UpdateMessageParams{
		Priority: req.Priority,
		Server:   req.Server,
		From:     req.From,
		To:       req.To,
		Subject:  req.Subject,
		Headers:  req.Headers,
	}
	if req.Status != nil {
		st := mail.Status(*req.Status)
		p.Status = &st
	}
	if req.Body != nil {
		body, ref, err := o.offload(ctx, []byte(*req.Body))
		if err != nil {
			return p, err
		}
		p.Body = body
		if p.Body == nil {
			p.Body = []byte{}
		}
		p.BodyRef = &ref
	}
	return p, nil
}

// hookWarning converts a post-commit hook failure into a response warning.
// Any other error is returned unchanged.
func hookWarning(err error) (string, error) {
	if err == nil {
		return "", nil
	}
	if errors.Is(err, storage.ErrHook) {
		return "saved, but send scheduling failed", nil
	}
	return "", err
}

// CreateMessageHandler handles POST /api/v1/messages.
// New records default to the outgoing status, which schedules a send.
func CreateMessageHandler(store MessageStore, bodies bodyOffloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if errs := validateCreate(req); len(errs) > 0 {
			respondValidationErrors(w, errs)
			return
		}

		params, err := bodies.createParams(r.Context(), req)
		if err != nil {
			log.Error().Err(err).Msg("failed to store message body")
			respondError(w, http.StatusInternalServerError, "failed to store message body")
			return
		}

		msg, err := store.Create(r.Context(), params)
		warning, err := hookWarning(err)
		if err != nil {
			log.Error().Err(err).Msg("failed to create message")
			respondError(w, http.StatusInternalServerError, "failed to create message")
			return
		}
		if warning != "" {
			log.Warn().Stringer("message_id", msg.ID).Msg("message created without send task")
		}

		resp := toMessageResponse(msg)
		resp.Warning = warning
		respondJSON(w, http.StatusCreated, resp)
	}
}

// CreateMessagesHandler handles POST /api/v1/messages/batch.
// All records are created in one transaction.
func CreateMessagesHandler(store MessageStore, bodies bodyOffloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		var reqs []messageRequest
		if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(reqs) == 0 || len(reqs) > maxBatchSize {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("batch must contain between 1 and %d messages", maxBatchSize))
			return
		}

		params := make([]storage.CreateMessageParams, 0, len(reqs))
		for i, req := range reqs {
			if errs := validateCreate(req); len(errs) > 0 {
				for j := range errs {
					errs[j] = fmt.Sprintf("[%d] %s", i, errs[j])
				}
				respondValidationErrors(w, errs)
				return
			}
			p, err := bodies.createParams(r.Context(), req)
			if err != nil {
				log.Error().Err(err).Msg("failed to store message body")
				respondError(w, http.StatusInternalServerError, "failed to store message body")
				return
			}
			params = append(params, p)
		}

		msgs, err := store.CreateMany(r.Context(), params)
		warning, err := hookWarning(err)
		if err != nil {
			log.Error().Err(err).Int("count", len(params)).Msg("failed to create messages")
			respondError(w, http.StatusInternalServerError, "failed to create messages")
			return
		}

		respondJSON(w, http.StatusCreated, toMessageResponses(msgs, warning))
	}
}

// GetMessageHandler handles GET /api/v1/messages/{id}.
func GetMessageHandler(store MessageStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		msg, err := store.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, mail.ErrNotFound) {
				respondError(w, http.StatusNotFound, "message not found")
				return
			}
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Stringer("message_id", id).Msg("failed to get message")
			respondError(w, http.StatusInternalServerError, "failed to get message")
			return
		}

		respondJSON(w, http.StatusOK, toMessageResponse(msg))
	}
}

// ListMessagesHandler handles GET /api/v1/messages?status=&limit=.
// Records are returned in dispatch order. Status defaults to outgoing.
func ListMessagesHandler(store MessageStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := mail.StatusOutgoing
		if s := r.URL.Query().Get("status"); s != "" {
			status = mail.Status(s)
			if !status.Valid() {
				respondError(w, http.StatusBadRequest, fmt.Sprintf("status %q is not valid", s))
				return
			}
		}

		limit := defaultListLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				respondError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxListLimit)
		}

		msgs, err := store.ListByStatus(r.Context(), status, limit)
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("failed to list messages")
			respondError(w, http.StatusInternalServerError, "failed to list messages")
			return
		}

		respondJSON(w, http.StatusOK, toMessageResponses(msgs, ""))
	}
}

// UpdateMessageHandler handles PATCH /api/v1/messages/{id}.
// Writing an outgoing record schedules another send.
func UpdateMessageHandler(store MessageStore, bodies bodyOffloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		msgs, warning, ok := applyUpdate(w, r, store, bodies, []uuid.UUID{id}, req)
		if !ok {
			return
		}
		if len(msgs) == 0 {
			respondError(w, http.StatusNotFound, "message not found")
			return
		}

		resp := toMessageResponse(msgs[0])
		resp.Warning = warning
		respondJSON(w, http.StatusOK, resp)
	}
}

// UpdateMessagesHandler handles PATCH /api/v1/messages.
// The same change is written to every listed record in one transaction.
func UpdateMessagesHandler(store MessageStore, bodies bodyOffloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req batchUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(req.IDs) == 0 || len(req.IDs) > maxBatchSize {
			respondError(w, http.StatusBadRequest, fmt.Sprintf("ids must contain between 1 and %d entries", maxBatchSize))
			return
		}

		ids := make([]uuid.UUID, 0, len(req.IDs))
		for _, s := range req.IDs {
			id, err := uuid.Parse(s)
			if err != nil {
				respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid message id %q", s))
				return
			}
			ids = append(ids, id)
		}

		msgs, warning, ok := applyUpdate(w, r, store, bodies, ids, req.messageRequest)
		if !ok {
			return
		}

		respondJSON(w, http.StatusOK, toMessageResponses(msgs, warning))
	}
}

// applyUpdate validates req and writes it to ids. On failure it writes the
// error response and reports false.
func applyUpdate(w http.ResponseWriter, r *http.Request, store MessageStore, bodies bodyOffloader, ids []uuid.UUID, req messageRequest) ([]mail.Message, string, bool) {
	log := logger.FromContext(r.Context())

	if errs := validateCommon(req); len(errs) > 0 {
		respondValidationErrors(w, errs)
		return nil, "", false
	}

	params, err := bodies.updateParams(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Msg("failed to store message body")
		respondError(w, http.StatusInternalServerError, "failed to store message body")
		return nil, "", false
	}

	msgs, err := store.Update(r.Context(), ids, params)
	warning, err := hookWarning(err)
	if err != nil {
		log.Error().Err(err).Int("count", len(ids)).Msg("failed to update messages")
		respondError(w, http.StatusInternalServerError, "failed to update messages")
		return nil, "", false
	}
	return msgs, warning, true
}

// DeleteMessageHandler handles DELETE /api/v1/messages/{id}.
// A stored body is removed with the record. Send tasks already queued for
// the record find it gone and finish without sending.
func DeleteMessageHandler(store MessageStore, bodies bodyOffloader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())

		id, ok := parseIDParam(w, r)
		if !ok {
			return
		}

		msg, err := store.Get(r.Context(), id)
		if err != nil {
			if errors.Is(err, mail.ErrNotFound) {
				respondError(w, http.StatusNotFound, "message not found")
				return
			}
			log.Error().Err(err).Stringer("message_id", id).Msg("failed to get message")
			respondError(w, http.StatusInternalServerError, "failed to delete message")
			return
		}

		if err := store.Delete(r.Context(), id); err != nil {
			if errors.Is(err, mail.ErrNotFound) {
				respondError(w, http.StatusNotFound, "message not found")
				return
			}
			log.Error().Err(err).Stringer("message_id", id).Msg("failed to delete message")
			respondError(w, http.StatusInternalServerError, "failed to delete message")
			return
		}

		if msg.BodyRef != "" && bodies.store != nil {
			if err := bodies.store.Delete(r.Context(), msg.BodyRef); err != nil {
				log.Warn().Err(err).Str("body_ref", msg.BodyRef).Msg("failed to delete stored body")
			}
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// parseIDParam parses the {id} URL parameter, writing a 400 on failure.
func parseIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid message id")
		return uuid.Nil, false
	}
	return id, true
}
