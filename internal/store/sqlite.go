package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/deskroute/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		employee_id TEXT,
		issue_type TEXT NOT NULL DEFAULT '',
		agent_id TEXT,
		greeted INTEGER NOT NULL DEFAULT 0,
		state_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

	CREATE TABLE IF NOT EXISTS conversation_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		employee_id TEXT,
		agent_id TEXT,
		message_text TEXT NOT NULL,
		message_type TEXT NOT NULL,
		issue_status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversation_log_conv ON conversation_log(conversation_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetSession retrieves a session snapshot.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT state_json FROM sessions WHERE session_id = ?`, sessionID)

	var state string
	err := row.Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	sess := domain.NewSession(sessionID, "")
	if err := json.Unmarshal([]byte(state), sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	if sess.History == nil {
		sess.History = []domain.Turn{}
	}
	if sess.Devices == nil {
		sess.Devices = []domain.DeviceRecord{}
	}
	if sess.ChannelFlags == nil {
		sess.ChannelFlags = map[string]bool{}
	}
	return sess, nil
}

// UpsertSession creates or updates a session snapshot.
func (s *SQLiteStore) UpsertSession(ctx context.Context, sess *domain.Session) error {
	state, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}

	query := `
	INSERT INTO sessions (session_id, conversation_id, employee_id, issue_type, agent_id, greeted, state_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		employee_id = excluded.employee_id,
		issue_type = excluded.issue_type,
		agent_id = excluded.agent_id,
		greeted = excluded.greeted,
		state_json = excluded.state_json,
		updated_at = excluded.updated_at`

	return withRetry(ctx, "upsert session", sess.ID, func() error {
		_, err := s.db.ExecContext(ctx, query,
			sess.ID, sess.ConversationID, nullable(sess.EmployeeID),
			string(sess.IssueType), nullable(sess.AgentID), sess.Greeted,
			string(state), sess.CreatedAt.Unix(), time.Now().Unix(),
		)
		return err
	})
}

// DeleteSession removes a session snapshot.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	return withRetry(ctx, "delete session", sessionID, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
		return err
	})
}

// CleanupExpiredSessions removes sessions older than TTL.
func (s *SQLiteStore) CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	return result.RowsAffected()
}

// LogConversation appends one message to the conversation log.
func (s *SQLiteStore) LogConversation(ctx context.Context, entry domain.ConversationLogEntry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	query := `
	INSERT INTO conversation_log (conversation_id, employee_id, agent_id, message_text, message_type, issue_status, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	return withRetry(ctx, "log conversation", entry.ConversationID, func() error {
		_, err := s.db.ExecContext(ctx, query,
			entry.ConversationID, nullable(entry.EmployeeID), nullable(entry.AgentID),
			entry.MessageText, entry.MessageType, entry.IssueStatus, ts.UnixMilli(),
		)
		return err
	})
}

// ConversationLog returns the messages of a conversation in insertion order.
func (s *SQLiteStore) ConversationLog(ctx context.Context, conversationID string) ([]domain.ConversationLogEntry, error) {
	query := `
		SELECT conversation_id, employee_id, agent_id, message_text, message_type, issue_status, created_at
		FROM conversation_log WHERE conversation_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query conversation log: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close conversation log rows", "error", closeErr)
		}
	}()

	var entries []domain.ConversationLogEntry
	for rows.Next() {
		var e domain.ConversationLogEntry
		var employeeID, agentID sql.NullString
		var createdAt int64
		if err := rows.Scan(&e.ConversationID, &employeeID, &agentID,
			&e.MessageText, &e.MessageType, &e.IssueStatus, &createdAt); err != nil {
			return nil, fmt.Errorf("scan conversation log row: %w", err)
		}
		e.EmployeeID = employeeID.String
		e.AgentID = agentID.String
		e.Timestamp = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation log: %w", err)
	}
	return entries, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
