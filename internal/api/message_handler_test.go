package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sungwon/mailqueue/internal/mail"
	"github.com/sungwon/mailqueue/internal/msgstore"
	"github.com/sungwon/mailqueue/internal/storage"
)

// memMessages is an in-memory MessageStore that runs hooks like the real one.
type memMessages struct {
	mu      sync.Mutex
	records map[uuid.UUID]mail.Message
	hookOps []mail.Operation
	hookErr error
}

func newMemMessages() *memMessages {
	return &memMessages{records: map[uuid.UUID]mail.Message{}}
}

func (s *memMessages) hook(op mail.Operation) error {
	s.hookOps = append(s.hookOps, op)
	if s.hookErr != nil {
		return fmt.Errorf("%w: %v", storage.ErrHook, s.hookErr)
	}
	return nil
}

func (s *memMessages) Create(ctx context.Context, p storage.CreateMessageParams) (mail.Message, error) {
	msgs, err := s.CreateMany(ctx, []storage.CreateMessageParams{p})
	if len(msgs) == 0 {
		return mail.Message{}, err
	}
	return msgs[0], err
}

func (s *memMessages) CreateMany(_ context.Context, params []storage.CreateMessageParams) ([]mail.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []mail.Message
	for _, p := range params {
		priority := mail.DefaultPriority
		if p.Priority != nil {
			priority = *p.Priority
		}
		m := mail.Message{
			ID: uuid.New(), Status: p.Status, Priority: priority, Server: p.Server,
			From: p.From, To: p.To, Subject: p.Subject, Headers: p.Headers,
			Body: p.Body, BodyRef: p.BodyRef, CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}
		s.records[m.ID] = m
		out = append(out, m)
	}
	return out, s.hook(mail.OperationCreate)
}

func (s *memMessages) Update(_ context.Context, ids []uuid.UUID, p storage.UpdateMessageParams) ([]mail.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []mail.Message
	for _, id := range ids {
		m, ok := s.records[id]
		if !ok {
			continue
		}
		if p.Status != nil {
			m.Status = *p.Status
		}
		if p.Priority != nil {
			m.Priority = *p.Priority
		}
		if p.Subject != nil {
			m.Subject = *p.Subject
		}
		if p.Body != nil {
			m.Body = p.Body
		}
		if p.BodyRef != nil {
			m.BodyRef = *p.BodyRef
		}
		s.records[id] = m
		out = append(out, m)
	}
	return out, s.hook(mail.OperationWrite)
}

func (s *memMessages) Get(_ context.Context, id uuid.UUID) (mail.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.records[id]
	if !ok {
		return mail.Message{}, mail.ErrNotFound
	}
	return m, nil
}

func (s *memMessages) ListByStatus(_ context.Context, status mail.Status, limit int) ([]mail.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []mail.Message
	for _, m := range s.records {
		if m.Status == status && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memMessages) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return mail.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *memMessages) add(m mail.Message) mail.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	s.records[m.ID] = m
	return m
}

type memBodies struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (b *memBodies) Put(_ context.Context, ref string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[ref] = data
	return nil
}

func (b *memBodies) Get(_ context.Context, ref string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.data[ref]
	if !ok {
		return nil, msgstore.ErrNotFound
	}
	return d, nil
}

func (b *memBodies) Delete(_ context.Context, ref string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.data, ref)
	return nil
}

func newTestRouter(store *memMessages, bodies *memBodies) http.Handler {
	cfg := RouterConfig{Messages: store, Log: zerolog.Nop()}
	if bodies != nil {
		cfg.Bodies = bodies
		cfg.InlineLimit = 16
	}
	return NewRouter(cfg)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateMessage_DefaultsToOutgoing(t *testing.T) {
	store := newMemMessages()
	h := newTestRouter(store, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/messages", map[string]any{
		"from": "noreply@example.com", "to": []string{"a@example.com"}, "subject": "hi", "body": "hello",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp messageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, mail.StatusOutgoing, resp.Status)
	assert.Equal(t, mail.DefaultPriority, resp.Priority)
	assert.Equal(t, "hello", resp.Body)
	assert.Empty(t, resp.Warning)
	assert.Equal(t, []mail.Operation{mail.OperationCreate}, store.hookOps)
}

func TestCreateMessage_ExplicitZeroPriority(t *testing.T) {
	store := newMemMessages()
	h := newTestRouter(store, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/messages", map[string]any{
		"from": "noreply@example.com", "to": []string{"a@example.com"}, "priority": 0,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp messageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 0, resp.Priority)

	stored, err := store.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Priority)
}

func TestCreateMessage_Validation(t *testing.T) {
	h := newTestRouter(newMemMessages(), nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/messages", map[string]any{"status": "bogus", "priority": -1})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Error   string   `json:"error"`
		Details []string `json:"details"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "validation_failed", resp.Error)
	assert.Len(t, resp.Details, 4)
}

func TestCreateMessage_InvalidJSON(t *testing.T) {
	h := newTestRouter(newMemMessages(), nil)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/messages", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMessage_LargeBodyOffloaded(t *testing.T) {
	store := newMemMessages()
	bodies := &memBodies{data: map[string][]byte{}}
	h := newTestRouter(store, bodies)

	large := strings.Repeat("x", 64)
	rec := doJSON(t, h, http.MethodPost, "/api/v1/messages", map[string]any{
		"from": "noreply@example.com", "to": []string{"a@example.com"}, "body": large,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp messageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.BodyRef)
	assert.Empty(t, resp.Body)
	assert.Equal(t, []byte(large), bodies.data[resp.BodyRef])
}

func TestCreateMessage_HookFailureReturnsWarning(t *testing.T) {
	store := newMemMessages()
	store.hookErr = fmt.Errorf("redis down")
	h := newTestRouter(store, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/messages", map[string]any{
		"from": "noreply@example.com", "to": []string{"a@example.com"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp messageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.NotEmpty(t, resp.Warning)
	_, err := store.Get(context.Background(), resp.ID)
	assert.NoError(t, err)
}

func TestCreateMessages_Batch(t *testing.T) {
	store := newMemMessages()
	h := newTestRouter(store, nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/messages/batch", []map[string]any{
		{"from": "a@example.com", "to": []string{"x@example.com"}, "priority": 5},
		{"from": "b@example.com", "to": []string{"y@example.com"}, "status": "sent"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp []messageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 2)
	assert.Equal(t, 5, resp[0].Priority)
	assert.Equal(t, mail.StatusSent, resp[1].Status)
	assert.Equal(t, []mail.Operation{mail.OperationCreate}, store.hookOps)
}

func TestCreateMessages_BatchValidationNamesIndex(t *testing.T) {
	h := newTestRouter(newMemMessages(), nil)

	rec := doJSON(t, h, http.MethodPost, "/api/v1/messages/batch", []map[string]any{
		{"from": "a@example.com", "to": []string{"x@example.com"}},
		{"from": "b@example.com"},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "[1] to must contain at least one recipient")
}

func TestGetMessage(t *testing.T) {
	store := newMemMessages()
	m := store.add(mail.Message{Status: mail.StatusSent, From: "a@example.com"})
	h := newTestRouter(store, nil)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/messages/"+m.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/messages/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/messages/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMessages(t *testing.T) {
	store := newMemMessages()
	store.add(mail.Message{Status: mail.StatusOutgoing})
	store.add(mail.Message{Status: mail.StatusOutgoing})
	store.add(mail.Message{Status: mail.StatusException})
	h := newTestRouter(store, nil)

	rec := doJSON(t, h, http.MethodGet, "/api/v1/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp []messageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp, 2)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/messages?status=exception&limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = nil
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp, 1)

	rec = doJSON(t, h, http.MethodGet, "/api/v1/messages?status=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doJSON(t, h, http.MethodGet, "/api/v1/messages?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateMessage_WriteRunsHooks(t *testing.T) {
	store := newMemMessages()
	m := store.add(mail.Message{Status: mail.StatusException, Priority: 10})
	h := newTestRouter(store, nil)

	rec := doJSON(t, h, http.MethodPatch, "/api/v1/messages/"+m.ID.String(), map[string]any{"status": "outgoing", "priority": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp messageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, mail.StatusOutgoing, resp.Status)
	assert.Equal(t, 3, resp.Priority)
	assert.Equal(t, []mail.Operation{mail.OperationWrite}, store.hookOps)
}

func TestUpdateMessage_NotFound(t *testing.T) {
	h := newTestRouter(newMemMessages(), nil)
	rec := doJSON(t, h, http.MethodPatch, "/api/v1/messages/"+uuid.NewString(), map[string]any{"subject": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateMessage_InvalidStatus(t *testing.T) {
	store := newMemMessages()
	m := store.add(mail.Message{Status: mail.StatusOutgoing})
	h := newTestRouter(store, nil)

	rec := doJSON(t, h, http.MethodPatch, "/api/v1/messages/"+m.ID.String(), map[string]any{"status": "queued"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, store.hookOps)
}

func TestUpdateMessages_Batch(t *testing.T) {
	store := newMemMessages()
	a := store.add(mail.Message{Status: mail.StatusCancel})
	b := store.add(mail.Message{Status: mail.StatusException})
	h := newTestRouter(store, nil)

	rec := doJSON(t, h, http.MethodPatch, "/api/v1/messages", map[string]any{
		"ids":    []string{a.ID.String(), b.ID.String()},
		"status": "outgoing",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp []messageResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 2)
	for _, r := range resp {
		assert.Equal(t, mail.StatusOutgoing, r.Status)
	}

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/messages", map[string]any{"ids": []string{"bad"}, "status": "outgoing"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPatch, "/api/v1/messages", map[string]any{"status": "outgoing"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteMessage_RemovesStoredBody(t *testing.T) {
	store := newMemMessages()
	bodies := &memBodies{data: map[string][]byte{"ref-1": []byte("body")}}
	m := store.add(mail.Message{Status: mail.StatusOutgoing, BodyRef: "ref-1"})
	h := newTestRouter(store, bodies)

	rec := doJSON(t, h, http.MethodDelete, "/api/v1/messages/"+m.ID.String(), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	_, err := store.Get(context.Background(), m.ID)
	assert.ErrorIs(t, err, mail.ErrNotFound)
	assert.NotContains(t, bodies.data, "ref-1")

	rec = doJSON(t, h, http.MethodDelete, "/api/v1/messages/"+m.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
