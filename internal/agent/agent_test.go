package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/deskroute/internal/domain"
	"github.com/ashureev/deskroute/internal/llm"
)

type recordingObserver struct {
	mu      sync.Mutex
	reasons []string
}

func (o *recordingObserver) ObserveFallback(_ domain.IssueType, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reasons = append(o.reasons, reason)
}

func TestRegistrySelect(t *testing.T) {
	t.Parallel()

	reg := NewDefaultRegistry(Options{})
	for _, c := range []domain.IssueType{domain.IssueHardware, domain.IssueSoftware, domain.IssuePassword, domain.IssueGeneral} {
		assert.Equal(t, c, reg.Select(c).Category())
	}
	assert.Equal(t, domain.IssueHardware, reg.Select("Nonexistent").Category())
}

func TestNewRegistryRequiresDefault(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() {
		NewRegistry(NewSpecialist(domain.IssueSoftware, softwarePersona, nil, Options{}))
	})
}

func TestSpecialistUsesLLMReply(t *testing.T) {
	t.Parallel()

	var got llm.Request
	client := llm.ClientFunc(func(_ context.Context, req llm.Request) (string, error) {
		got = req
		return "  Try restarting the laptop.  ", nil
	})

	sess := domain.NewSession("s1", "c1")
	sess.Employee = &domain.EmployeeRecord{ID: "E1", Name: "Ada Lovelace", Department: "Finance"}
	sess.Devices = []domain.DeviceRecord{{ID: "DEV003", Type: "Laptop", Model: "ThinkPad X1", OS: "Windows 11"}}
	sess.Language = "French"

	a := NewSpecialist(domain.IssueHardware, hardwarePersona, NewHardwareTools(), Options{LLM: client})
	reply := a.Handle(context.Background(), Request{
		Query:   "my laptop is slow",
		Session: sess,
		History: []llm.Message{{Role: llm.RoleUser, Content: "hello"}},
	})

	assert.Equal(t, "Try restarting the laptop.", reply)
	assert.Equal(t, "my laptop is slow", got.UserMessage)
	assert.Len(t, got.History, 1)
	assert.Contains(t, got.System, DefaultAssistantName)
	assert.Contains(t, got.System, "Ada Lovelace")
	assert.Contains(t, got.System, "Respond in French.")
	assert.Contains(t, got.System, "Low disk space")
	assert.Contains(t, got.System, "slow performance")
}

func TestSpecialistFallsBack(t *testing.T) {
	t.Parallel()

	sess := domain.NewSession("s1", "c1")
	sess.Employee = &domain.EmployeeRecord{ID: "E1", Name: "Ada Lovelace"}

	tests := []struct {
		name     string
		client   llm.Client
		reason   string
		contains string
	}{
		{
			name:     "no llm configured",
			client:   nil,
			reason:   ReasonNoLLM,
			contains: "reset your password",
		},
		{
			name: "llm error",
			client: llm.ClientFunc(func(context.Context, llm.Request) (string, error) {
				return "", errors.New("boom")
			}),
			reason:   ReasonError,
			contains: "reset your password",
		},
		{
			name: "llm timeout",
			client: llm.ClientFunc(func(context.Context, llm.Request) (string, error) {
				return "", context.DeadlineExceeded
			}),
			reason:   ReasonTimeout,
			contains: "momentary slowness",
		},
		{
			name: "empty reply",
			client: llm.ClientFunc(func(context.Context, llm.Request) (string, error) {
				return "   ", nil
			}),
			reason:   ReasonError,
			contains: "reset your password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			obs := &recordingObserver{}
			a := NewSpecialist(domain.IssuePassword, passwordPersona, NewPasswordTools(), Options{LLM: tt.client, Observer: obs})
			reply := a.Handle(context.Background(), Request{Query: "I forgot my password", Session: sess})

			assert.True(t, strings.HasPrefix(reply, "Hi Ada, "), reply)
			assert.Contains(t, reply, tt.contains)
			assert.Equal(t, []string{tt.reason}, obs.reasons)
		})
	}
}

func TestFallbackReplyByCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		category domain.IssueType
		message  string
		contains string
	}{
		{domain.IssueHardware, "printer jammed", "printer"},
		{domain.IssueHardware, "wifi keeps dropping", "network connectivity"},
		{domain.IssueHardware, "it broke", "hardware issue"},
		{domain.IssueSoftware, "need to install zoom", "installing software"},
		{domain.IssueSoftware, "excel keeps closing", "Microsoft Office"},
		{domain.IssuePassword, "my account is locked", "account is locked"},
		{domain.IssueGeneral, "something odd", DefaultAssistantName},
	}
	for _, tt := range tests {
		reply := FallbackReply(tt.message, nil, tt.category, ReasonError, "")
		assert.True(t, strings.HasPrefix(reply, "Hello, "), reply)
		assert.Contains(t, reply, tt.contains, "%s: %s", tt.category, tt.message)
	}
}

func TestApology(t *testing.T) {
	t.Parallel()

	assert.Contains(t, Apology(""), DefaultSupportContact)
	assert.Contains(t, Apology("help@corp.example"), "help@corp.example")
}

func TestTimeOfDayGreeting(t *testing.T) {
	t.Parallel()

	day := time.Date(2025, 4, 17, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "Good morning", TimeOfDayGreeting(day.Add(9*time.Hour)))
	assert.Equal(t, "Good afternoon", TimeOfDayGreeting(day.Add(14*time.Hour)))
	assert.Equal(t, "Good evening", TimeOfDayGreeting(day.Add(21*time.Hour)))
	assert.Equal(t, "Good evening", TimeOfDayGreeting(day.Add(2*time.Hour)))
}

func TestHardwareTools(t *testing.T) {
	t.Parallel()

	h := NewHardwareTools()

	st, ok := h.DeviceStatus("dev002")
	require.True(t, ok)
	assert.Equal(t, "Offline", st.Status)
	_, ok = h.DeviceStatus("DEV999")
	assert.False(t, ok)

	assert.Contains(t, h.Troubleshoot(TroubleshootParams{DeviceType: "Printer", Issue: "paper jam"}), "Power off the printer")
	assert.Contains(t, h.Troubleshoot(TroubleshootParams{DeviceType: "laptop", Issue: "blue screen of death"}), "laptop - blue screen")
	assert.Contains(t, h.Troubleshoot(TroubleshootParams{DeviceType: "laptop", Issue: "sticky keys"}), "general troubleshooting steps")
	assert.Contains(t, h.Troubleshoot(TroubleshootParams{DeviceType: "toaster", Issue: "burnt"}), "No troubleshooting information")

	results := h.Context(context.Background(), Request{Query: "is DEV001 ok? my printer has a paper jam"})
	tools := make([]string, 0, len(results))
	for _, r := range results {
		tools = append(tools, r.Tool)
	}
	assert.Equal(t, []string{"device_status", "troubleshoot_hardware"}, tools)
}

func TestPasswordTools(t *testing.T) {
	t.Parallel()

	p := NewPasswordTools()
	assert.Contains(t, p.Lookup("vpn", topicLockout), "No auto-unlock")
	assert.Contains(t, p.Lookup("email", topicLockout), "Most systems lock")

	results := p.Context(context.Background(), Request{Query: "My Office 365 account is locked and I forgot the password"})
	require.Len(t, results, 2)
	assert.Equal(t, "password_reset", results[0].Tool)
	assert.Contains(t, results[0].Output, "System: office 365")
	assert.Equal(t, "password_lockout", results[1].Tool)
}

func TestSoftwareTools(t *testing.T) {
	t.Parallel()

	s := NewSoftwareTools()
	assert.Contains(t, s.Troubleshoot("Outlook", "search"), "search not working")
	assert.Contains(t, s.Troubleshoot("excel", "crashes"), "Safe Mode")
	assert.Contains(t, s.Troubleshoot("notepad", "crashes"), "No troubleshooting information")
	assert.Equal(t, "teams compatibility with linux: Limited compatibility (web version recommended)", s.Compatibility("teams", "Ubuntu Linux"))
	assert.Contains(t, s.Compatibility("teams", "BeOS"), "Please contact IT support")

	sess := domain.NewSession("s1", "c1")
	sess.Devices = []domain.DeviceRecord{{ID: "D1", Type: "Laptop", OS: "Windows 11"}}
	results := s.Context(context.Background(), Request{Query: "Teams video won't start", Session: sess})
	require.Len(t, results, 2)
	assert.Contains(t, results[0].Output, "teams - video issues")
	assert.Contains(t, results[1].Output, "windows 11: Fully compatible")

	assert.Empty(t, s.Context(context.Background(), Request{Query: "nothing relevant"}))
}
