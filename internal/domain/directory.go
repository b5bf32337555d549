package domain

import (
	"strings"
	"time"
)

// ContactType selects the field used to identify an employee.
type ContactType string

const (
	ContactEmail ContactType = "email"
	ContactPhone ContactType = "phone"
	ContactID    ContactType = "id"
)

// EmployeeRecord is an employee row from the directory service.
type EmployeeRecord struct {
	ID         string `json:"employee_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
	Position   string `json:"position,omitempty"`
	Location   string `json:"location,omitempty"`
}

// FirstName returns the first word of Name.
func (e *EmployeeRecord) FirstName() string {
	if e == nil {
		return ""
	}
	fields := strings.Fields(e.Name)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// DeviceRecord is a device assigned to an employee.
type DeviceRecord struct {
	ID           string `json:"device_id"`
	Type         string `json:"device_type"`
	Model        string `json:"model"`
	SerialNumber string `json:"serial_number,omitempty"`
	OS           string `json:"os,omitempty"`
	Status       string `json:"status,omitempty"`
	EmployeeID   string `json:"employee_id,omitempty"`
}

// AgentRecord is a human support agent from the directory service.
type AgentRecord struct {
	ID             string `json:"agent_id"`
	Name           string `json:"agent_name"`
	Specialization string `json:"specialization"`
	Status         string `json:"status"`
}

// Active reports whether the agent accepts assignments.
func (a AgentRecord) Active() bool {
	return strings.EqualFold(a.Status, "active")
}

// Conversation log message types and statuses.
const (
	MessageTypeAI    = "AI response"
	MessageTypeUser  = "User input"
	StatusInProgress = "In Progress"
)

// ConversationLogEntry is a single message written to the directory's
// conversation log.
type ConversationLogEntry struct {
	ConversationID string    `json:"conversation_id"`
	EmployeeID     string    `json:"user_id"`
	AgentID        string    `json:"agent_id"`
	MessageText    string    `json:"message_text"`
	MessageType    string    `json:"message_type"`
	IssueStatus    string    `json:"issue_status"`
	Timestamp      time.Time `json:"timestamp"`
}
