package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Registry hands out one ConversationMemory per session id.
type Registry struct {
	mu       sync.Mutex
	memories map[string]*ConversationMemory

	mode    Mode
	k       int
	backend Backend
	sink    Sink
	timeout time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithBackend restores memories from b on first access and mirrors every
// change to it through sink.
func WithBackend(b Backend, sink Sink) RegistryOption {
	return func(r *Registry) {
		r.backend = b
		r.sink = sink
	}
}

// NewRegistry creates a registry whose memories use mode and window size k.
func NewRegistry(mode Mode, k int, opts ...RegistryOption) *Registry {
	r := &Registry{
		memories: make(map[string]*ConversationMemory),
		mode:     mode,
		k:        k,
		timeout:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the memory for sessionID, creating it lazily.
func (r *Registry) Get(ctx context.Context, sessionID string) *ConversationMemory {
	r.mu.Lock()
	if m, ok := r.memories[sessionID]; ok {
		r.mu.Unlock()
		return m
	}
	r.mu.Unlock()

	m := New(sessionID, r.mode, r.k, r.sink)
	if snap := r.load(ctx, sessionID); snap != nil {
		m.Restore(*snap)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.memories[sessionID]; ok {
		return existing
	}
	r.memories[sessionID] = m
	return m
}

// Peek returns the memory for sessionID if it is loaded.
func (r *Registry) Peek(sessionID string) (*ConversationMemory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.memories[sessionID]
	return m, ok
}

// Snapshot exports the memory for sessionID without registering it. A
// memory that is not loaded is read from the backend. It reports false when
// neither has it.
func (r *Registry) Snapshot(ctx context.Context, sessionID string) (Snapshot, bool) {
	if m, ok := r.Peek(sessionID); ok {
		return m.Export(), true
	}
	snap := r.load(ctx, sessionID)
	if snap == nil {
		return Snapshot{}, false
	}
	return *snap, true
}

// Drop forgets the in-process memory for sessionID. Persisted copies remain.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	delete(r.memories, sessionID)
	r.mu.Unlock()
}

// Delete forgets sessionID and removes any persisted copy.
func (r *Registry) Delete(ctx context.Context, sessionID string) {
	r.Drop(sessionID)
	if r.backend == nil {
		return
	}
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.backend.Delete(dctx, sessionID); err != nil {
		slog.Warn("Failed to delete persisted memory", "session_id", sessionID, "error", err)
	}
}

// Len returns the number of loaded memories.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.memories)
}

func (r *Registry) load(ctx context.Context, sessionID string) *Snapshot {
	if r.backend == nil {
		return nil
	}
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	snap, err := r.backend.Load(lctx, sessionID)
	if err != nil {
		slog.Warn("Failed to load persisted memory", "session_id", sessionID, "error", err)
		return nil
	}
	return snap
}
