package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/deskroute/internal/domain"
	"github.com/ashureev/deskroute/internal/identity"
	"github.com/ashureev/deskroute/internal/orchestrator"
)

// ChatMessage is one entry of an OpenAI-style messages array.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/chat/completions.
type ChatRequest struct {
	SessionID string        `json:"session_id"`
	Message   string        `json:"message"`
	Messages  []ChatMessage `json:"messages"`
	Email     string        `json:"email"`
	Phone     string        `json:"phone"`
	Language  string        `json:"language"`
	Stream    bool          `json:"stream"`
}

// TelephonyRequest is the body of POST /telephony/chat/completions.
type TelephonyRequest struct {
	SessionID string `json:"session_id"`
	Call      struct {
		ID       string `json:"id"`
		Customer struct {
			Number string `json:"number"`
		} `json:"customer"`
	} `json:"call"`
	Message  string        `json:"message"`
	Messages []ChatMessage `json:"messages"`
	Phone    string        `json:"phone"`
	Language string        `json:"language"`
}

// TeamsRequest is the body of POST /teams/chat/completions.
type TeamsRequest struct {
	SessionID    string `json:"session_id"`
	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
	From struct {
		Email string `json:"email"`
	} `json:"from"`
	Message  string        `json:"message"`
	Text     string        `json:"text"`
	Content  string        `json:"content"`
	Messages []ChatMessage `json:"messages"`
	Email    string        `json:"email"`
	Phone    string        `json:"phone"`
	Language string        `json:"language"`
	Stream   bool          `json:"stream"`
}

// ChatResponse is the non-streaming reply of every chat adapter.
type ChatResponse struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

type completionChunk struct {
	ID      string         `json:"id"`
	Choices []chunkChoices `json:"choices"`
}

type chunkChoices struct {
	Delta ChatMessage `json:"delta"`
}

// RegisterRoutes registers the channel adapters and session endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat/completions", h.HandleChat)
	r.Post("/telephony/chat/completions", h.HandleTelephony)
	r.Post("/teams/chat/completions", h.HandleTeams)

	r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
		r.Post("/greeting", h.HandleGreeting)
		r.Get("/export", h.HandleExport)
		r.Delete("/", h.HandleEndSession)
	})
}

// HandleChat handles POST /api/chat/completions.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sessionID := resolveSessionID(r, req.SessionID)
	message := firstNonEmpty(req.Message, firstUserMessage(req.Messages))
	hints := orchestrator.Hints{
		Email:    req.Email,
		Phone:    req.Phone,
		Language: req.Language,
		Channel:  domain.ChannelChat,
	}
	h.converse(w, r, sessionID, message, hints, req.Stream || wantsStream(r))
}

// HandleTelephony handles POST /telephony/chat/completions. Voice clients
// always receive a streamed reply.
func (h *Handler) HandleTelephony(w http.ResponseWriter, r *http.Request) {
	var req TelephonyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sessionID := resolveSessionID(r, firstNonEmpty(req.Call.ID, req.SessionID))
	message := firstNonEmpty(req.Message, firstUserMessage(req.Messages))
	hints := orchestrator.Hints{
		Phone:    firstNonEmpty(req.Call.Customer.Number, req.Phone),
		Language: req.Language,
		Channel:  domain.ChannelTelephony,
	}
	h.converse(w, r, sessionID, message, hints, true)
}

// HandleTeams handles POST /teams/chat/completions.
func (h *Handler) HandleTeams(w http.ResponseWriter, r *http.Request) {
	var req TeamsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sessionID := resolveSessionID(r, firstNonEmpty(req.SessionID, req.Conversation.ID))
	message := firstNonEmpty(req.Message, req.Text, req.Content, firstUserMessage(req.Messages))
	hints := orchestrator.Hints{
		Email:    firstNonEmpty(req.Email, req.From.Email),
		Phone:    req.Phone,
		Language: req.Language,
		Channel:  domain.ChannelTeams,
	}
	h.converse(w, r, sessionID, message, hints, req.Stream || wantsStream(r))
}

// converse runs one turn, or produces the opening greeting when the
// message is empty, and writes the reply in the requested format.
func (h *Handler) converse(w http.ResponseWriter, r *http.Request, sessionID, message string, hints orchestrator.Hints, stream bool) {
	if !h.limiter.Allow(sessionID) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	slog.Info("Channel message received", "channel", hints.Channel, "session_id", sessionID, "message_len", len(message))

	var reply string
	if strings.TrimSpace(message) == "" {
		reply = h.conv.GetInitialGreeting(r.Context(), sessionID, hints)
	} else {
		reply = h.conv.ProcessMessage(r.Context(), message, sessionID, hints)
	}

	w.Header().Set(identity.SessionHeaderName, sessionID)
	if !stream {
		JSON(w, http.StatusOK, ChatResponse{SessionID: sessionID, Response: reply})
		return
	}
	streamReply(w, reply)
}

// streamReply writes reply as a single OpenAI-style completion chunk
// followed by the [DONE] marker.
func streamReply(w http.ResponseWriter, reply string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	chunk, err := json.Marshal(completionChunk{
		ID:      fmt.Sprintf("chatcmpl-%d", time.Now().Unix()),
		Choices: []chunkChoices{{Delta: ChatMessage{Role: domain.RoleAssistant, Content: reply}}},
	})
	if err != nil {
		slog.Error("Failed to encode completion chunk", "error", err)
		return
	}
	if err := writeSSE(w, string(chunk)); err != nil {
		slog.Debug("Failed to write completion chunk", "error", err)
		return
	}
	if err := writeSSE(w, "[DONE]"); err != nil {
		slog.Debug("Failed to write stream terminator", "error", err)
		return
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// HandleGreeting handles POST /api/sessions/{sessionID}/greeting.
func (h *Handler) HandleGreeting(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.Sanitize(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	hints := orchestrator.Hints{
		Email:    r.URL.Query().Get("email"),
		Phone:    r.URL.Query().Get("phone"),
		Language: r.URL.Query().Get("language"),
		Channel:  r.URL.Query().Get("channel"),
	}
	greeting := h.conv.GetInitialGreeting(r.Context(), sessionID, hints)
	JSON(w, http.StatusOK, ChatResponse{SessionID: sessionID, Response: greeting})
}

// HandleExport handles GET /api/sessions/{sessionID}/export.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.Sanitize(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	snap, ok := h.conv.ExportConversation(r.Context(), sessionID)
	if !ok {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, snap)
}

// HandleEndSession handles DELETE /api/sessions/{sessionID}.
func (h *Handler) HandleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.Sanitize(chi.URLParam(r, "sessionID"))
	if sessionID == "" {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if !h.conv.EndSession(r.Context(), sessionID) {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolveSessionID prefers the id carried in the body and falls back to the
// one resolved by the identity middleware.
func resolveSessionID(r *http.Request, fromBody string) string {
	if sid := identity.Sanitize(fromBody); sid != "" {
		return sid
	}
	if sid := identity.SessionIDFromContext(r.Context()); sid != "" {
		return sid
	}
	return identity.NewSessionID()
}

func firstUserMessage(msgs []ChatMessage) string {
	for _, m := range msgs {
		if m.Role == domain.RoleUser && strings.TrimSpace(m.Content) != "" {
			return m.Content
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func wantsStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}
