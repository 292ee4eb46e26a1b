package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/harborchat/chatd/domain"
	"github.com/harborchat/chatd/policy"
	"github.com/harborchat/chatd/session"
	"github.com/harborchat/chatd/store"
	"github.com/harborchat/chatd/tests/helpers"
)

// stubChannel replays a fixed exchange for every Open call.
type stubChannel struct {
	events []domain.StreamEvent
}

func (s *stubChannel) Open(ctx context.Context, userText, userID string, history []domain.Message) (<-chan domain.StreamEvent, error) {
	ch := make(chan domain.StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range s.events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func completedExchange(text string) []domain.StreamEvent {
	return []domain.StreamEvent{
		{Type: domain.EventStart},
		{Type: domain.EventChunk, Content: text, Accumulated: text},
		{Type: domain.EventComplete, Content: text, Chunks: 1},
	}
}

func newTestHandler(t *testing.T, minInterval time.Duration) (*Handler, store.Store) {
	t.Helper()
	st := helpers.NewTestSQLiteStore(t)
	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	registry := session.NewRegistry(session.Deps{
		Store:           st,
		Channel:         &stubChannel{events: completedExchange("Hello there.")},
		Policy:          engine,
		Logger:          zap.NewNop(),
		MinSendInterval: minInterval,
		HistoryLimit:    50,
	})
	return NewHandler(st, registry, zap.NewNop()), st
}

func TestCreateSessionValidation(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, 0)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString(`{"title":"untethered"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateSession(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateSessionSuccess(t *testing.T) {
	e := echo.New()
	h, st := newTestHandler(t, 0)

	body := `{"user_id":"u1","title":"First chat"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.CreateSession(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	var sess domain.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	require.NotEmpty(t, sess.SessionID)
	require.Equal(t, "First chat", sess.Title)

	got, err := st.GetSession(context.Background(), sess.SessionID)
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestGetSessionNotFound(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, 0)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/sess_none", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues("sess_none")

	if err := h.GetSession(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetSessionWithMessages(t *testing.T) {
	e := echo.New()
	h, st := newTestHandler(t, 0)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, "u1", "history")
	require.NoError(t, err)
	msg := &domain.Message{SessionID: sess.SessionID, Role: domain.RoleUser, Content: "older turn"}
	require.NoError(t, st.AppendMessage(ctx, msg))

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+sess.SessionID, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues(sess.SessionID)

	require.NoError(t, h.GetSession(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got domain.Session
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Messages, 1)
	require.Equal(t, "older turn", got.Messages[0].Content)
}

func TestDeleteSession(t *testing.T) {
	e := echo.New()
	h, st := newTestHandler(t, 0)

	sess, err := st.CreateSession(context.Background(), "u1", "doomed")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+sess.SessionID, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("session_id")
	c.SetParamValues(sess.SessionID)

	require.NoError(t, h.DeleteSession(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Second delete misses.
	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+sess.SessionID, nil), rec)
	c.SetParamNames("session_id")
	c.SetParamValues(sess.SessionID)

	require.NoError(t, h.DeleteSession(c))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessions(t *testing.T) {
	e := echo.New()
	h, st := newTestHandler(t, 0)
	ctx := context.Background()

	_, err := st.CreateSession(ctx, "u1", "one")
	require.NoError(t, err)
	_, err = st.CreateSession(ctx, "u2", "other user")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions?user_id=u1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.ListSessions(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sessions []domain.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 1)
	require.Equal(t, "one", body.Sessions[0].Title)
}

func TestSearchSessions(t *testing.T) {
	e := echo.New()
	h, st := newTestHandler(t, 0)
	ctx := context.Background()

	sess, err := st.CreateSession(ctx, "u1", "Travel plans")
	require.NoError(t, err)
	msg := &domain.Message{SessionID: sess.SessionID, Role: domain.RoleUser, Content: "flights to Rome"}
	require.NoError(t, st.AppendMessage(ctx, msg))
	_, err = st.CreateSession(ctx, "u1", "Grocery list")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/search?user_id=u1&q=rome", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.SearchSessions(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sessions []domain.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sessions, 1)
	require.Equal(t, sess.SessionID, body.Sessions[0].SessionID)
}

func TestChatValidation(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, 0)

	for name, body := range map[string]string{
		"missing user":  `{"content":"hi"}`,
		"blank content": `{"user_id":"u1","content":"   "}`,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewBufferString(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			require.NoError(t, h.Chat(c))
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestChatRejectedSendCreatesNoSession(t *testing.T) {
	e := echo.New()
	h, st := newTestHandler(t, 0)
	h.RegisterRoutes(e)

	body, err := json.Marshal(map[string]string{
		"user_id": "u1",
		"content": strings.Repeat("a", 10001), // blocked by the send policy
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, rec.Header().Get("X-Session-ID"))

	// A rejected first send must leave nothing behind.
	sessions, err := st.ListSessions(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestChatUnknownSession(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, 0)

	body := `{"user_id":"u1","session_id":"sess_none","content":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.Chat(c))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatStreamsExchange(t *testing.T) {
	e := echo.New()
	h, st := newTestHandler(t, 0)
	h.RegisterRoutes(e)

	body := `{"user_id":"u1","content":"Say hello"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	sessionID := rec.Header().Get("X-Session-ID")
	require.NotEmpty(t, sessionID)

	// Each frame is a data: line with a typed JSON payload.
	var types []string
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var ev domain.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
		types = append(types, string(ev.Type))
	}
	require.Equal(t, []string{"start", "chunk", "complete"}, types)

	// Both turns landed in the store.
	sess, err := st.GetSessionWithMessages(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, sess.Messages, 2)
	require.Equal(t, "Hello there.", sess.Messages[1].Content)
}

func TestChatSecondSubmitGated(t *testing.T) {
	e := echo.New()
	h, _ := newTestHandler(t, time.Second)
	h.RegisterRoutes(e)

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	first := send(`{"user_id":"u1","content":"hello"}`)
	require.Equal(t, http.StatusOK, first.Code)
	sessionID := first.Header().Get("X-Session-ID")
	require.NotEmpty(t, sessionID)

	second := send(`{"user_id":"u1","session_id":"` + sessionID + `","content":"hello"}`)
	require.Equal(t, http.StatusBadRequest, second.Code)
}
