// Package domain contains core domain types for the helpdesk router.
package domain

import (
	"strings"
	"time"
)

// IssueType is the routing category of a support conversation.
type IssueType string

const (
	IssueUnclassified IssueType = ""
	IssueHardware     IssueType = "Hardware"
	IssueSoftware     IssueType = "Software"
	IssuePassword     IssueType = "Password"
	IssueGeneral      IssueType = "General"
)

// IsSpecific reports whether the category routes to a specialist agent.
func (t IssueType) IsSpecific() bool {
	switch t {
	case IssueHardware, IssueSoftware, IssuePassword:
		return true
	}
	return false
}

// ParseIssueType maps a free-form label onto a known category.
// Unknown labels map to General.
func ParseIssueType(s string) IssueType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hardware", "network":
		return IssueHardware
	case "software":
		return IssueSoftware
	case "password":
		return IssuePassword
	default:
		return IssueGeneral
	}
}

// Channel names used in Session.ChannelFlags.
const (
	ChannelChat      = "chat"
	ChannelTelephony = "telephony"
	ChannelTeams     = "teams"
)

// Role of a turn author.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Turn is a single message in a session history.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Channel   string    `json:"channel,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds per-conversation state.
type Session struct {
	ID             string          `json:"session_id"`
	EmployeeID     string          `json:"employee_id,omitempty"`
	ContactEmail   string          `json:"contact_email,omitempty"`
	ContactPhone   string          `json:"contact_phone,omitempty"`
	IssueType      IssueType       `json:"issue_type"`
	IssueLabel     string          `json:"issue_label,omitempty"`
	ChannelFlags   map[string]bool `json:"channel_flags"`
	Greeted        bool            `json:"greeted"`
	AgentID        string          `json:"agent_id,omitempty"`
	ConversationID string          `json:"conversation_id"`
	Language       string          `json:"language,omitempty"`
	History        []Turn          `json:"history"`
	Employee       *EmployeeRecord `json:"employee,omitempty"`
	Devices        []DeviceRecord  `json:"devices"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewSession returns a session with every field initialised.
func NewSession(id, conversationID string) *Session {
	now := time.Now()
	return &Session{
		ID:             id,
		IssueType:      IssueUnclassified,
		ChannelFlags:   map[string]bool{ChannelTelephony: false, ChannelChat: false, ChannelTeams: false},
		ConversationID: conversationID,
		History:        []Turn{},
		Devices:        []DeviceRecord{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NeedsClassification reports whether the classifier should run for this turn.
func (s *Session) NeedsClassification() bool {
	return !s.IssueType.IsSpecific()
}

// SetIssueType records a classification outcome. A specific category is
// sticky: once set it is never replaced, and Unclassified is never restored.
// It returns true when the stored value changed.
func (s *Session) SetIssueType(t IssueType, label string) bool {
	if s.IssueType.IsSpecific() || t == IssueUnclassified || t == s.IssueType {
		return false
	}
	s.IssueType = t
	if label == "" {
		label = string(t)
	}
	s.IssueLabel = label
	return true
}

// MarkGreeted flips Greeted to true. It returns false if it already was.
func (s *Session) MarkGreeted() bool {
	if s.Greeted {
		return false
	}
	s.Greeted = true
	return true
}

// AppendTurn adds a message to the history.
func (s *Session) AppendTurn(role, content, channel string) {
	s.History = append(s.History, Turn{
		Role:      role,
		Content:   content,
		Channel:   channel,
		Timestamp: time.Now(),
	})
	s.UpdatedAt = time.Now()
}

// SetChannel marks a channel as active for the session.
func (s *Session) SetChannel(channel string) {
	if channel == "" {
		return
	}
	if s.ChannelFlags == nil {
		s.ChannelFlags = make(map[string]bool)
	}
	s.ChannelFlags[channel] = true
}

// Identified reports whether an employee record is attached.
func (s *Session) Identified() bool {
	return s.Employee != nil
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *Session) Clone() *Session {
	c := *s
	c.ChannelFlags = make(map[string]bool, len(s.ChannelFlags))
	for k, v := range s.ChannelFlags {
		c.ChannelFlags[k] = v
	}
	c.History = append(make([]Turn, 0, len(s.History)), s.History...)
	c.Devices = append(make([]DeviceRecord, 0, len(s.Devices)), s.Devices...)
	if s.Employee != nil {
		e := *s.Employee
		c.Employee = &e
	}
	return &c
}
