package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/deskroute/internal/domain"
	"github.com/ashureev/deskroute/internal/llm"
)

const defaultReplyTokens = 1024

// Specialist is a category agent backed by an LLM with a keyword fallback.
type Specialist struct {
	category domain.IssueType
	persona  string
	tools    Toolset
	opts     Options
	now      func() time.Time
}

// NewSpecialist creates an agent for category. tools may be nil.
func NewSpecialist(category domain.IssueType, persona string, tools Toolset, opts Options) *Specialist {
	return &Specialist{
		category: category,
		persona:  persona,
		tools:    tools,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// Category implements Agent.
func (s *Specialist) Category() domain.IssueType {
	return s.category
}

// Handle implements Agent.
func (s *Specialist) Handle(ctx context.Context, req Request) string {
	if s.opts.LLM == nil {
		return s.fallback(req, ReasonNoLLM)
	}

	var toolResults []ToolResult
	if s.tools != nil {
		toolResults = s.tools.Context(ctx, req)
	}

	reply, err := s.opts.LLM.Generate(ctx, llmRequest(
		BuildSystemPrompt(s.opts.AssistantName, s.persona, req.Session, toolResults, s.now()),
		req,
	))
	if err != nil {
		reason := ReasonError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		slog.Warn("Agent reply generation failed, using fallback",
			"category", s.category, "reason", reason, "error", err)
		return s.fallback(req, reason)
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return s.fallback(req, ReasonError)
	}
	return reply
}

func (s *Specialist) fallback(req Request, reason string) string {
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveFallback(s.category, reason)
	}
	return FallbackReply(req.Query, req.Session, s.category, reason, s.opts.AssistantName)
}

func llmRequest(system string, req Request) llm.Request {
	return llm.Request{
		System:      system,
		History:     req.History,
		UserMessage: req.Query,
		MaxTokens:   defaultReplyTokens,
	}
}
