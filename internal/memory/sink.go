package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Backend persists memory snapshots outside the process.
type Backend interface {
	Save(ctx context.Context, snap Snapshot) error
	// Load returns nil, nil when nothing is stored for sessionID.
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

// Sink receives snapshots after every mutation. Persist must not block.
type Sink interface {
	Persist(snap Snapshot)
}

// AsyncSink writes snapshots to a Backend from a single worker goroutine.
// When the queue is full the snapshot is dropped and a warning logged.
type AsyncSink struct {
	backend Backend
	queue   chan Snapshot
	timeout time.Duration
	done    chan struct{}
	once    sync.Once
}

// NewAsyncSink starts the worker. queueSize <= 0 uses 256.
func NewAsyncSink(backend Backend, queueSize int, timeout time.Duration) *AsyncSink {
	if queueSize <= 0 {
		queueSize = 256
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	s := &AsyncSink{
		backend: backend,
		queue:   make(chan Snapshot, queueSize),
		timeout: timeout,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Persist enqueues snap without blocking.
func (s *AsyncSink) Persist(snap Snapshot) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.queue <- snap:
	default:
		slog.Warn("Memory persistence queue full, dropping snapshot", "session_id", snap.SessionID)
	}
}

func (s *AsyncSink) run() {
	for {
		select {
		case snap := <-s.queue:
			s.write(snap)
		case <-s.done:
			for {
				select {
				case snap := <-s.queue:
					s.write(snap)
				default:
					return
				}
			}
		}
	}
}

func (s *AsyncSink) write(snap Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.backend.Save(ctx, snap); err != nil {
		slog.Warn("Failed to persist conversation memory", "session_id", snap.SessionID, "error", err)
	}
}

// Close drains queued snapshots and stops the worker.
func (s *AsyncSink) Close() {
	s.once.Do(func() { close(s.done) })
}
