// Package api exposes the helpdesk orchestrator over HTTP channel adapters.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ashureev/deskroute/internal/memory"
	"github.com/ashureev/deskroute/internal/orchestrator"
)

// maxRequestBodySize caps channel request bodies (1MB).
const maxRequestBodySize = 1 << 20

// Conversations is the orchestrator surface the adapters drive.
type Conversations interface {
	ProcessMessage(ctx context.Context, msg, sessionID string, hints orchestrator.Hints) string
	GetInitialGreeting(ctx context.Context, sessionID string, hints orchestrator.Hints) string
	ExportConversation(ctx context.Context, sessionID string) (memory.Snapshot, bool)
	EndSession(ctx context.Context, sessionID string) bool
}

// Handler provides common handler utilities.
type Handler struct {
	conv    Conversations
	limiter *RateLimiter
}

// NewHandler creates a new Handler. limiter may be nil.
func NewHandler(conv Conversations, limiter *RateLimiter) *Handler {
	return &Handler{conv: conv, limiter: limiter}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeBody reads a size-capped JSON body into v and writes the error
// response itself when decoding fails.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeSSE(w io.Writer, data string) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
