package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/deskroute/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "data", "deskroute.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetSession(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for missing session, got %v, %v", got, err)
	}

	sess := domain.NewSession("s1", "c1")
	sess.SetIssueType(domain.IssueHardware, "Network")
	sess.MarkGreeted()
	sess.EmployeeID = "E1"
	sess.Employee = &domain.EmployeeRecord{ID: "E1", Name: "Ada Lovelace"}
	sess.Devices = append(sess.Devices, domain.DeviceRecord{ID: "DEV001", Type: "Laptop"})
	sess.SetChannel(domain.ChannelTeams)
	sess.AppendTurn(domain.RoleUser, "wifi is down", domain.ChannelTeams)
	sess.AppendTurn(domain.RoleAssistant, "Let's check the router", domain.ChannelTeams)

	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	got, err = s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected session")
	}
	if got.IssueType != domain.IssueHardware || got.IssueLabel != "Network" {
		t.Fatalf("unexpected issue: %q / %q", got.IssueType, got.IssueLabel)
	}
	if !got.Greeted || got.ConversationID != "c1" || got.Employee.FirstName() != "Ada" {
		t.Fatalf("unexpected session state: %+v", got)
	}
	if len(got.History) != 2 || got.History[1].Content != "Let's check the router" {
		t.Fatalf("unexpected history: %+v", got.History)
	}
	if !got.ChannelFlags[domain.ChannelTeams] {
		t.Fatal("expected teams channel flag")
	}

	sess.SetIssueType(domain.IssuePassword, "")
	sess.AgentID = "A1"
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("second UpsertSession failed: %v", err)
	}
	got, _ = s.GetSession(ctx, "s1")
	if got.IssueType != domain.IssueHardware || got.AgentID != "A1" {
		t.Fatalf("expected sticky hardware with agent, got %q %q", got.IssueType, got.AgentID)
	}

	if err := s.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	got, err = s.GetSession(ctx, "s1")
	if err != nil || got != nil {
		t.Fatalf("expected deleted session, got %v, %v", got, err)
	}
}

func TestCleanupExpiredSessions(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertSession(ctx, domain.NewSession("fresh", "c1")); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO sessions (session_id, conversation_id, issue_type, greeted, state_json, created_at, updated_at)
		VALUES ('stale', 'c2', '', 0, '{}', 0, 0)`); err != nil {
		t.Fatalf("insert stale session: %v", err)
	}

	n, err := s.CleanupExpiredSessions(ctx, time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpiredSessions failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 expired session, got %d", n)
	}
	if got, _ := s.GetSession(ctx, "fresh"); got == nil {
		t.Fatal("fresh session should survive cleanup")
	}
}

func TestConversationLog(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	entries := []domain.ConversationLogEntry{
		{ConversationID: "c1", EmployeeID: "E1", MessageText: "printer jammed", MessageType: domain.MessageTypeUser, IssueStatus: domain.StatusInProgress},
		{ConversationID: "c1", EmployeeID: "E1", AgentID: "A1", MessageText: "Open the tray", MessageType: domain.MessageTypeAI, IssueStatus: domain.StatusInProgress},
		{ConversationID: "c2", MessageText: "other", MessageType: domain.MessageTypeUser, IssueStatus: domain.StatusInProgress},
	}
	for _, e := range entries {
		if err := s.LogConversation(ctx, e); err != nil {
			t.Fatalf("LogConversation failed: %v", err)
		}
	}

	got, err := s.ConversationLog(ctx, "c1")
	if err != nil {
		t.Fatalf("ConversationLog failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].MessageText != "printer jammed" || got[1].AgentID != "A1" || got[0].AgentID != "" {
		t.Fatalf("unexpected entries: %+v", got)
	}
	if got[1].Timestamp.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}

func TestConcurrentUpserts(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess := domain.NewSession("shared", "c1")
			sess.AppendTurn(domain.RoleUser, "message", domain.ChannelChat)
			if err := s.UpsertSession(ctx, sess); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent upsert failed: %v", err)
	}
}

func TestIsBusyError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("SQLITE_BUSY: database busy"), true},
		{errors.New("database is locked"), true},
		{errors.New("no such table"), false},
	}
	for _, tt := range tests {
		if got := isBusyError(tt.err); got != tt.want {
			t.Errorf("isBusyError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestWithRetryGivesUpOnPermanentError(t *testing.T) {
	t.Parallel()

	calls := 0
	err := withRetry(context.Background(), "op", "key", func() error {
		calls++
		return errors.New("constraint failed")
	})
	if err == nil || calls != 1 {
		t.Fatalf("expected one attempt and an error, got %d attempts, err %v", calls, err)
	}

	calls = 0
	err = withRetry(context.Background(), "op", "key", func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected success on second attempt, got %d attempts, err %v", calls, err)
	}
}
