// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/deskroute/internal/domain"
)

// Repository persists session snapshots and the local conversation log.
type Repository interface {
	// GetSession retrieves a session snapshot. It returns nil, nil when absent.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// UpsertSession creates or updates a session snapshot.
	UpsertSession(ctx context.Context, sess *domain.Session) error

	// DeleteSession removes a session snapshot.
	DeleteSession(ctx context.Context, sessionID string) error

	// CleanupExpiredSessions removes sessions not updated within ttl.
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)

	// LogConversation appends one message to the conversation log.
	LogConversation(ctx context.Context, entry domain.ConversationLogEntry) error

	// ConversationLog returns the messages of a conversation in insertion order.
	ConversationLog(ctx context.Context, conversationID string) ([]domain.ConversationLogEntry, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
