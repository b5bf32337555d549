package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/ashureev/deskroute/internal/domain"
	"github.com/ashureev/deskroute/internal/identity"
	"github.com/ashureev/deskroute/internal/orchestrator"
)

// Frame types exchanged on /ws/chat.
const (
	frameMessage  = "message"
	frameGreeting = "greeting"
	frameReply    = "reply"
	frameError    = "error"
)

// wsFrame is the JSON frame exchanged with chat clients. Contact hints are
// only read from client frames.
type wsFrame struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Content   string `json:"content,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Language  string `json:"language,omitempty"`
}

// WebSocketHandler serves a live chat session over a WebSocket. The opening
// greeting is pushed on connect; each client message frame gets one reply.
type WebSocketHandler struct {
	conv          Conversations
	limiter       *RateLimiter
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(conv Conversations, limiter *RateLimiter, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		conv:          conv,
		limiter:       limiter,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	if sessionID == "" {
		sessionID = identity.NewSessionID()
	}
	slog.Info("WebSocket connection request", "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	ctx := r.Context()
	hints := orchestrator.Hints{
		Email:    r.URL.Query().Get("email"),
		Phone:    r.URL.Query().Get("phone"),
		Language: r.URL.Query().Get("language"),
		Channel:  domain.ChannelChat,
	}

	greeting := h.conv.GetInitialGreeting(ctx, sessionID, hints)
	if err := writeFrame(ctx, ws, wsFrame{Type: frameGreeting, SessionID: sessionID, Content: greeting}); err != nil {
		slog.Debug("Failed to send greeting", "error", err, "session_id", sessionID)
		return
	}

	h.readLoop(ctx, ws, sessionID)
	slog.Info("Chat session disconnected", "session_id", sessionID)
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, sessionID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var in wsFrame
		if err := json.Unmarshal(data, &in); err != nil {
			// Plain text frames are treated as chat messages.
			in = wsFrame{Type: frameMessage, Content: string(data)}
		}
		if in.Type != frameMessage || strings.TrimSpace(in.Content) == "" {
			continue
		}

		out := wsFrame{Type: frameReply, SessionID: sessionID}
		if !h.limiter.Allow(sessionID) {
			out = wsFrame{Type: frameError, SessionID: sessionID, Content: "rate limit exceeded"}
		} else {
			out.Content = h.conv.ProcessMessage(ctx, in.Content, sessionID, orchestrator.Hints{
				Email:    in.Email,
				Phone:    in.Phone,
				Language: in.Language,
				Channel:  domain.ChannelChat,
			})
		}

		if err := writeFrame(ctx, ws, out); err != nil {
			slog.Debug("Failed to write reply", "error", err, "session_id", sessionID)
			return
		}
	}
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func writeFrame(ctx context.Context, ws *websocket.Conn, f wsFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
