package orchestrator

import (
	"context"

	"github.com/ashureev/deskroute/internal/classifier"
	"github.com/ashureev/deskroute/internal/domain"
	"github.com/ashureev/deskroute/internal/transcript"
)

// Directory resolves employees, devices and human agents. A lookup miss
// is reported as a nil record and a nil error.
type Directory interface {
	LookupEmployee(ctx context.Context, contactType domain.ContactType, value string) (*domain.EmployeeRecord, error)
	LookupDevices(ctx context.Context, employeeID string) ([]domain.DeviceRecord, error)
	LookupAgentBySpecialization(ctx context.Context, specialization string) (*domain.AgentRecord, error)
}

// ConversationLog records conversation messages for reporting. Calls are
// best-effort; errors are logged by the caller and otherwise ignored.
type ConversationLog interface {
	LogConversation(ctx context.Context, entry domain.ConversationLogEntry) error
}

// Classifier scores free text.
type Classifier interface {
	Classify(text string) classifier.Result
}

// Transcript receives per-session transcript events. It must not block.
type Transcript interface {
	Log(event transcript.Event)
}
