package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/ashureev/deskroute/internal/domain"
)

// LookupEmployee finds an employee by email, phone or id. A miss returns
// nil, nil.
func (c *Client) LookupEmployee(ctx context.Context, contactType domain.ContactType, value string) (*domain.EmployeeRecord, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	switch contactType {
	case domain.ContactID:
		var emp domain.EmployeeRecord
		err := c.do(ctx, http.MethodGet, "/employees/"+url.PathEscape(value), nil, nil, http.StatusOK, &emp)
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("get employee %s: %w", value, err)
		}
		return &emp, nil

	case domain.ContactEmail, domain.ContactPhone:
		var employees []domain.EmployeeRecord
		if err := c.do(ctx, http.MethodGet, "/employees", nil, nil, http.StatusOK, &employees); err != nil {
			return nil, fmt.Errorf("list employees: %w", err)
		}
		var match *domain.EmployeeRecord
		if contactType == domain.ContactEmail {
			match = MatchEmail(employees, value)
		} else {
			match = MatchPhone(employees, value)
		}
		if match == nil {
			slog.Warn("No employee found", "contact_type", contactType)
		}
		return match, nil

	default:
		return nil, fmt.Errorf("unsupported contact type %q", contactType)
	}
}

// MatchEmail returns the first case-insensitive exact match, then the first
// employee whose email contains value.
func MatchEmail(employees []domain.EmployeeRecord, value string) *domain.EmployeeRecord {
	needle := strings.ToLower(strings.TrimSpace(value))
	if needle == "" {
		return nil
	}
	for i := range employees {
		if employees[i].Email != "" && strings.ToLower(employees[i].Email) == needle {
			return &employees[i]
		}
	}
	for i := range employees {
		if employees[i].Email != "" && strings.Contains(strings.ToLower(employees[i].Email), needle) {
			return &employees[i]
		}
	}
	return nil
}

// NormalizePhone keeps digits and '+'.
func NormalizePhone(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '+' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MatchPhone compares normalized numbers: exact (with or without a leading
// '+') first, then containment in either direction or equal last 8 digits.
func MatchPhone(employees []domain.EmployeeRecord, value string) *domain.EmployeeRecord {
	search := NormalizePhone(value)
	if search == "" {
		return nil
	}
	bare := strings.TrimPrefix(search, "+")

	for i := range employees {
		p := NormalizePhone(employees[i].Phone)
		if p == "" {
			continue
		}
		if p == search || strings.TrimPrefix(p, "+") == bare {
			return &employees[i]
		}
	}
	for i := range employees {
		p := NormalizePhone(employees[i].Phone)
		if p == "" {
			continue
		}
		if strings.Contains(p, search) || strings.Contains(search, p) || lastDigits(p, 8) == lastDigits(search, 8) {
			return &employees[i]
		}
	}
	return nil
}

func lastDigits(s string, n int) string {
	if len(s) < n {
		return s
	}
	return s[len(s)-n:]
}

// LookupDevices returns the devices assigned to employeeID.
func (c *Client) LookupDevices(ctx context.Context, employeeID string) ([]domain.DeviceRecord, error) {
	if employeeID == "" {
		return []domain.DeviceRecord{}, nil
	}
	var devices []domain.DeviceRecord
	q := url.Values{"employee_id": []string{employeeID}}
	if err := c.do(ctx, http.MethodGet, "/devices", q, nil, http.StatusOK, &devices); err != nil {
		return nil, fmt.Errorf("list devices for %s: %w", employeeID, err)
	}
	if devices == nil {
		devices = []domain.DeviceRecord{}
	}
	return devices, nil
}

// LookupAgentBySpecialization returns the first active agent with the given
// specialization, else the first active agent, else nil.
func (c *Client) LookupAgentBySpecialization(ctx context.Context, specialization string) (*domain.AgentRecord, error) {
	var agents []domain.AgentRecord
	if err := c.do(ctx, http.MethodGet, "/agents", nil, nil, http.StatusOK, &agents); err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return PickAgent(agents, specialization), nil
}

// PickAgent applies the agent assignment rule to agents.
func PickAgent(agents []domain.AgentRecord, specialization string) *domain.AgentRecord {
	for i := range agents {
		if agents[i].Active() && strings.EqualFold(agents[i].Specialization, specialization) {
			return &agents[i]
		}
	}
	for i := range agents {
		if agents[i].Active() {
			return &agents[i]
		}
	}
	return nil
}

// LogConversation writes one message to the conversation log.
func (c *Client) LogConversation(ctx context.Context, entry domain.ConversationLogEntry) error {
	if err := c.do(ctx, http.MethodPost, "/conversations", nil, entry, http.StatusCreated, nil); err != nil {
		return fmt.Errorf("log conversation: %w", err)
	}
	return nil
}
