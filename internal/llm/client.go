// Package llm provides the language-model collaborators used by agents and
// the secondary classifier.
package llm

import (
	"context"
	"errors"
)

// Role represents a message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty model response")

// Message is a single prior conversation message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single reply-generation call.
type Request struct {
	System      string
	History     []Message
	UserMessage string
	MaxTokens   int
	Temperature *float64
}

// Client generates replies. Implementations may fail on timeout or network
// errors; callers decide on fallbacks.
type Client interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (string, error)

// Generate implements Client.
func (f ClientFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// SecondaryClassifier maps free text to a category label.
type SecondaryClassifier interface {
	ClassifyText(ctx context.Context, text string) (string, error)
}
