// Package agent implements the specialist helpdesk agents and their registry.
package agent

import (
	"context"

	"github.com/ashureev/deskroute/internal/domain"
	"github.com/ashureev/deskroute/internal/llm"
)

// Request is a single delegated turn.
type Request struct {
	Query   string
	Session *domain.Session
	History []llm.Message
}

// Agent handles turns for one category. Handle never fails: collaborator
// errors are converted to a fallback reply.
type Agent interface {
	Category() domain.IssueType
	Handle(ctx context.Context, req Request) string
}

// FallbackObserver is notified whenever an agent answers with a fallback reply.
type FallbackObserver interface {
	ObserveFallback(category domain.IssueType, reason string)
}

// Fallback reasons.
const (
	ReasonTimeout = "timeout"
	ReasonError   = "error"
	ReasonNoLLM   = "no_llm"
)

// Options are shared by all agents in a registry.
type Options struct {
	LLM            llm.Client
	AssistantName  string
	SupportContact string
	Observer       FallbackObserver
}

func (o Options) withDefaults() Options {
	if o.AssistantName == "" {
		o.AssistantName = DefaultAssistantName
	}
	if o.SupportContact == "" {
		o.SupportContact = DefaultSupportContact
	}
	return o
}
