package agent

import (
	"log/slog"

	"github.com/ashureev/deskroute/internal/domain"
)

// DefaultCategory is the agent used when no agent matches a category.
const DefaultCategory = domain.IssueHardware

// Registry maps categories to agents. It is read-only after construction.
type Registry struct {
	agents   map[domain.IssueType]Agent
	fallback Agent
}

// NewRegistry builds a registry from agents. One of them must handle
// DefaultCategory.
func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[domain.IssueType]Agent, len(agents))}
	for _, a := range agents {
		r.agents[a.Category()] = a
	}
	r.fallback = r.agents[DefaultCategory]
	if r.fallback == nil {
		panic("agent registry: no agent for default category " + string(DefaultCategory))
	}
	return r
}

// NewDefaultRegistry builds the Hardware, Software, Password and General agents.
func NewDefaultRegistry(opts Options) *Registry {
	opts = opts.withDefaults()
	return NewRegistry(
		NewSpecialist(domain.IssueHardware, hardwarePersona, NewHardwareTools(), opts),
		NewSpecialist(domain.IssueSoftware, softwarePersona, NewSoftwareTools(), opts),
		NewSpecialist(domain.IssuePassword, passwordPersona, NewPasswordTools(), opts),
		NewSpecialist(domain.IssueGeneral, generalPersona, nil, opts),
	)
}

// Select returns the agent for category, or the default agent.
func (r *Registry) Select(category domain.IssueType) Agent {
	if a, ok := r.agents[category]; ok {
		return a
	}
	slog.Info("No agent for category, using default", "category", category, "default", DefaultCategory)
	return r.fallback
}
