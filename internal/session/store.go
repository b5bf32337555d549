// Package session owns per-conversation state and its lifecycle.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ashureev/deskroute/internal/domain"
)

// DefaultMaxSessions caps the number of sessions held in memory.
const DefaultMaxSessions = 10000

// Persister is an optional write-through backend for session snapshots.
type Persister interface {
	// GetSession returns nil, nil when the session does not exist.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	UpsertSession(ctx context.Context, sess *domain.Session) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// EvictFunc is called after a session leaves the store.
type EvictFunc func(sessionID string)

type entry struct {
	sess     *domain.Session
	lastSeen time.Time
}

// keyLock queues the turns of one session. Each holder closes its own
// channel on release, waking the next waiter in arrival order.
type keyLock struct {
	tail chan struct{}
	refs int
}

// Store is the in-memory source of truth for sessions.
type Store struct {
	mu      sync.Mutex
	cache   *lru.Cache[string, *entry]
	persist Persister
	onEvict []EvictFunc

	locksMu sync.Mutex
	locks   map[string]*keyLock

	timeout time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithPersister enables write-through persistence.
func WithPersister(p Persister) Option {
	return func(s *Store) { s.persist = p }
}

// WithEvictCallback registers fn to run when a session is removed for any reason.
func WithEvictCallback(fn EvictFunc) Option {
	return func(s *Store) { s.onEvict = append(s.onEvict, fn) }
}

// WithPersistTimeout bounds each persistence call.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Store) { s.timeout = d }
}

// NewStore creates a store holding at most maxSessions sessions. The least
// recently used session is evicted when the cap is reached.
func NewStore(maxSessions int, opts ...Option) (*Store, error) {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}

	s := &Store{
		locks:   make(map[string]*keyLock),
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	cache, err := lru.NewWithEvict[string, *entry](maxSessions, func(id string, _ *entry) {
		slog.Debug("Session evicted from memory", "session_id", id)
		s.notifyEvict(id)
	})
	if err != nil {
		return nil, fmt.Errorf("create session cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// GetOrCreate returns the session for id, creating it on first access.
// Consecutive calls without End return the same *domain.Session.
func (s *Store) GetOrCreate(ctx context.Context, id string) *domain.Session {
	s.mu.Lock()
	if e, ok := s.cache.Get(id); ok {
		e.lastSeen = time.Now()
		s.mu.Unlock()
		return e.sess
	}
	s.mu.Unlock()

	sess := s.restore(ctx, id)
	if sess == nil {
		sess = domain.NewSession(id, uuid.NewString())
		slog.Info("Session created", "session_id", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another goroutine may have created it while we were restoring.
	if e, ok := s.cache.Get(id); ok {
		e.lastSeen = time.Now()
		return e.sess
	}
	s.cache.Add(id, &entry{sess: sess, lastSeen: time.Now()})
	return sess
}

// Get returns the session for id without creating it.
func (s *Store) Get(id string) (*domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.cache.Peek(id)
	if !ok {
		return nil, false
	}
	return e.sess, true
}

// Save stores sess and writes it through to the persister if configured.
// Persistence failures are logged, never returned.
func (s *Store) Save(ctx context.Context, sess *domain.Session) {
	if sess == nil {
		return
	}
	sess.UpdatedAt = time.Now()

	s.mu.Lock()
	if e, ok := s.cache.Get(sess.ID); ok {
		e.sess = sess
		e.lastSeen = time.Now()
	} else {
		s.cache.Add(sess.ID, &entry{sess: sess, lastSeen: time.Now()})
	}
	s.mu.Unlock()

	if s.persist == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := s.persist.UpsertSession(pctx, sess.Clone()); err != nil {
		slog.Warn("Failed to persist session", "session_id", sess.ID, "error", err)
	}
}

// End removes the session. A later GetOrCreate builds a fresh one.
func (s *Store) End(ctx context.Context, id string) bool {
	s.mu.Lock()
	removed := s.cache.Remove(id)
	s.mu.Unlock()

	if s.persist != nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		if err := s.persist.DeleteSession(pctx, id); err != nil {
			slog.Warn("Failed to delete persisted session", "session_id", id, "error", err)
		}
	}
	if removed {
		slog.Info("Session ended", "session_id", id)
	}
	return removed
}

// Len returns the number of sessions held in memory.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// Lock serializes turns on one session in the order Lock was called.
// Different ids do not contend. The returned func releases the lock.
func (s *Store) Lock(id string) func() {
	s.locksMu.Lock()
	kl, ok := s.locks[id]
	if !ok {
		kl = &keyLock{}
		s.locks[id] = kl
	}
	prev := kl.tail
	mine := make(chan struct{})
	kl.tail = mine
	kl.refs++
	s.locksMu.Unlock()

	if prev != nil {
		<-prev
	}
	return func() {
		close(mine)
		s.locksMu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}

// Sweep removes sessions idle for longer than ttl and returns their ids.
// Sessions with a turn in flight or queued are kept.
func (s *Store) Sweep(ttl time.Duration) []string {
	cutoff := time.Now().Add(-ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []string
	for _, id := range s.cache.Keys() {
		if e, ok := s.cache.Peek(id); ok && e.lastSeen.Before(cutoff) && !s.locked(id) {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		s.cache.Remove(id)
	}
	return expired
}

func (s *Store) locked(id string) bool {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	_, ok := s.locks[id]
	return ok
}

func (s *Store) restore(ctx context.Context, id string) *domain.Session {
	if s.persist == nil {
		return nil
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	sess, err := s.persist.GetSession(pctx, id)
	if err != nil {
		slog.Warn("Failed to restore session", "session_id", id, "error", err)
		return nil
	}
	if sess != nil {
		slog.Info("Session restored", "session_id", id, "turns", len(sess.History))
	}
	return sess
}

func (s *Store) notifyEvict(id string) {
	for _, fn := range s.onEvict {
		fn(id)
	}
}
