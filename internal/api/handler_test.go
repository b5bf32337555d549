//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/deskroute/internal/domain"
	"github.com/ashureev/deskroute/internal/identity"
	"github.com/ashureev/deskroute/internal/memory"
	"github.com/ashureev/deskroute/internal/orchestrator"
)

type call struct {
	kind      string
	sessionID string
	message   string
	hints     orchestrator.Hints
}

type fakeConversations struct {
	mu    sync.Mutex
	calls []call
	known map[string]bool
}

func (f *fakeConversations) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeConversations) last(t *testing.T) call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.calls)
	return f.calls[len(f.calls)-1]
}

func (f *fakeConversations) ProcessMessage(_ context.Context, msg, sessionID string, hints orchestrator.Hints) string {
	f.record(call{kind: "message", sessionID: sessionID, message: msg, hints: hints})
	return "reply to " + msg
}

func (f *fakeConversations) GetInitialGreeting(_ context.Context, sessionID string, hints orchestrator.Hints) string {
	f.record(call{kind: "greeting", sessionID: sessionID, hints: hints})
	return "Good morning! How can I help?"
}

func (f *fakeConversations) ExportConversation(_ context.Context, sessionID string) (memory.Snapshot, bool) {
	if !f.known[sessionID] {
		return memory.Snapshot{}, false
	}
	return memory.Snapshot{
		SessionID: sessionID,
		Mode:      memory.ModeBuffer,
		IssueData: map[string]any{"type": "Hardware"},
		Messages:  []memory.Message{{Role: memory.RoleHuman, Content: "printer broken"}},
	}, true
}

func (f *fakeConversations) EndSession(_ context.Context, sessionID string) bool {
	return f.known[sessionID]
}

func newTestRouter(conv Conversations, limiter *RateLimiter) http.Handler {
	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	NewHandler(conv, limiter).RegisterRoutes(r)
	return r
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestJSON(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]string{"foo": "bar"})

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestHandleChat(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{}
	h := newTestRouter(conv, nil)

	w := post(t, h, "/api/chat/completions", `{"session_id":"s1","message":"my laptop is broken","email":"ada@corp.com","language":"English"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp ChatResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "s1", resp.SessionID)
	assert.Equal(t, "reply to my laptop is broken", resp.Response)
	assert.Equal(t, "s1", w.Header().Get(identity.SessionHeaderName))

	c := conv.last(t)
	assert.Equal(t, "message", c.kind)
	assert.Equal(t, orchestrator.Hints{Email: "ada@corp.com", Language: "English", Channel: domain.ChannelChat}, c.hints)
}

func TestHandleChatMessagesArrayAndStream(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{}
	h := newTestRouter(conv, nil)

	w := post(t, h, "/api/chat/completions", `{"session_id":"s2","stream":true,"messages":[{"role":"system","content":"be nice"},{"role":"user","content":"vpn password expired"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	var lines []string
	sc := bufio.NewScanner(w.Body)
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "data: ") {
			lines = append(lines, strings.TrimPrefix(line, "data: "))
		}
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "[DONE]", lines[1])

	var chunk completionChunk
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &chunk))
	assert.True(t, strings.HasPrefix(chunk.ID, "chatcmpl-"))
	require.Len(t, chunk.Choices, 1)
	assert.Equal(t, "reply to vpn password expired", chunk.Choices[0].Delta.Content)
}

func TestHandleChatEmptyMessageGreets(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{}
	h := newTestRouter(conv, nil)

	w := post(t, h, "/api/chat/completions", `{"session_id":"s3"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "greeting", conv.last(t).kind)
}

func TestHandleChatUsesMiddlewareSessionID(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{}
	h := newTestRouter(conv, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/chat/completions", strings.NewReader(`{"message":"hello"}`))
	req.Header.Set(identity.SessionHeaderName, "from-header")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "from-header", conv.last(t).sessionID)
}

func TestHandleChatInvalidBody(t *testing.T) {
	t.Parallel()

	h := newTestRouter(&fakeConversations{}, nil)

	w := post(t, h, "/api/chat/completions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	big := `{"message":"` + strings.Repeat("a", maxRequestBodySize+1) + `"}`
	w = post(t, h, "/api/chat/completions", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHandleTelephony(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{}
	h := newTestRouter(conv, nil)

	w := post(t, h, "/telephony/chat/completions", `{"call":{"id":"call-7","customer":{"number":"+1 555 0100"}},"messages":[{"role":"assistant","content":"hi"},{"role":"user","content":"printer jammed"}]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	c := conv.last(t)
	assert.Equal(t, "call-7", c.sessionID)
	assert.Equal(t, "printer jammed", c.message)
	assert.Equal(t, "+1 555 0100", c.hints.Phone)
	assert.Equal(t, domain.ChannelTelephony, c.hints.Channel)
}

func TestHandleTeams(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{}
	h := newTestRouter(conv, nil)

	w := post(t, h, "/teams/chat/completions", `{"conversation":{"id":"conv-9"},"from":{"email":"bob@corp.com"},"text":"outlook will not open"}`)
	require.Equal(t, http.StatusOK, w.Code)

	c := conv.last(t)
	assert.Equal(t, "conv-9", c.sessionID)
	assert.Equal(t, "outlook will not open", c.message)
	assert.Equal(t, "bob@corp.com", c.hints.Email)
	assert.Equal(t, domain.ChannelTeams, c.hints.Channel)
}

func TestRateLimitedChat(t *testing.T) {
	t.Parallel()

	limiter := NewRateLimiter(2, time.Minute)
	t.Cleanup(limiter.Close)
	h := newTestRouter(&fakeConversations{}, limiter)

	for i := 0; i < 2; i++ {
		w := post(t, h, "/api/chat/completions", `{"session_id":"busy","message":"hi"}`)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := post(t, h, "/api/chat/completions", `{"session_id":"busy","message":"hi"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = post(t, h, "/api/chat/completions", `{"session_id":"other","message":"hi"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionEndpoints(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{known: map[string]bool{"s1": true}}
	h := newTestRouter(conv, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/s1/export", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var snap memory.Snapshot
	require.NoError(t, json.NewDecoder(w.Body).Decode(&snap))
	assert.Equal(t, "s1", snap.SessionID)
	assert.Equal(t, "Hardware", snap.IssueData["type"])
	require.Len(t, snap.Messages, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/sessions/unknown/export", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/sessions/s1/greeting?email=ada@corp.com", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ada@corp.com", conv.last(t).hints.Email)

	req = httptest.NewRequest(http.MethodDelete, "/api/sessions/s1", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	req = httptest.NewRequest(http.MethodDelete, "/api/sessions/unknown", nil)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		dbErr      error
		grpcErr    error
		wantCode   int
		wantStatus string
	}{
		{name: "all healthy", wantCode: http.StatusOK, wantStatus: "healthy"},
		{name: "optional check failing", grpcErr: errors.New("down"), wantCode: http.StatusOK, wantStatus: "degraded"},
		{name: "database failing", dbErr: errors.New("down"), wantCode: http.StatusServiceUnavailable, wantStatus: "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			hh := NewHealthHandler(time.Second)
			hh.AddCheck("database", func(context.Context) error { return tt.dbErr }, true)
			hh.AddCheck("classifier", func(context.Context) error { return tt.grpcErr }, false)

			r := chi.NewRouter()
			hh.RegisterHealth(r)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, "ok", body.Checks["api"])
		})
	}
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, 50*time.Millisecond)
	t.Cleanup(rl.Close)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("k"))
	}
	assert.False(t, rl.Allow("k"))
	assert.True(t, rl.Allow("other"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow("k"))

	rl.evict(time.Now().Add(time.Second))
	rl.mu.Lock()
	assert.Empty(t, rl.requests)
	rl.mu.Unlock()

	var disabled *RateLimiter
	assert.True(t, disabled.Allow("k"))
	unlimited := NewRateLimiter(0, time.Minute)
	t.Cleanup(unlimited.Close)
	assert.True(t, unlimited.Allow("k"))
}

func TestWebSocketChat(t *testing.T) {
	t.Parallel()

	conv := &fakeConversations{}
	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	r.Get("/ws/chat", NewWebSocketHandler(conv, nil, "*", true).ServeHTTP)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat?session_id=ws-1"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	var greeting wsFrame
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &greeting))
	assert.Equal(t, frameGreeting, greeting.Type)
	assert.Equal(t, "ws-1", greeting.SessionID)

	msg, err := json.Marshal(wsFrame{Type: frameMessage, Content: "excel crashed", Email: "ada@corp.com"})
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, msg))

	var reply wsFrame
	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &reply))
	assert.Equal(t, frameReply, reply.Type)
	assert.Equal(t, "reply to excel crashed", reply.Content)

	c := conv.last(t)
	assert.Equal(t, "ws-1", c.sessionID)
	assert.Equal(t, "ada@corp.com", c.hints.Email)
}
