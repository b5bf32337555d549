package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrKeyNotFound is returned by KV.Get for missing keys.
var ErrKeyNotFound = errors.New("key not found")

// KV is the subset of Redis operations the memory backend needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// GoRedisKV adapts a go-redis client to KV.
type GoRedisKV struct {
	client redis.UniversalClient
}

// NewGoRedisKV wraps client.
func NewGoRedisKV(client redis.UniversalClient) *GoRedisKV {
	return &GoRedisKV{client: client}
}

// Get implements KV.
func (g *GoRedisKV) Get(ctx context.Context, key string) (string, error) {
	v, err := g.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	return v, err
}

// Set implements KV.
func (g *GoRedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return g.client.Set(ctx, key, value, ttl).Err()
}

// Del implements KV.
func (g *GoRedisKV) Del(ctx context.Context, keys ...string) error {
	return g.client.Del(ctx, keys...).Err()
}

// RedisBackend stores memory snapshots as JSON strings.
type RedisBackend struct {
	kv     KV
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(b *RedisBackend) { b.prefix = prefix }
}

// WithTTL sets the key expiry. Zero keeps keys forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(b *RedisBackend) { b.ttl = ttl }
}

// NewRedisBackend creates a backend over kv.
func NewRedisBackend(kv KV, opts ...RedisOption) *RedisBackend {
	b := &RedisBackend{
		kv:     kv,
		prefix: "deskroute:memory:",
		ttl:    24 * time.Hour,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *RedisBackend) key(sessionID string) string {
	return b.prefix + sessionID
}

// Save implements Backend.
func (b *RedisBackend) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal memory snapshot: %w", err)
	}
	if err := b.kv.Set(ctx, b.key(snap.SessionID), string(data), b.ttl); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Load implements Backend.
func (b *RedisBackend) Load(ctx context.Context, sessionID string) (*Snapshot, error) {
	data, err := b.kv.Get(ctx, b.key(sessionID))
	if errors.Is(err, ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal memory snapshot: %w", err)
	}
	return &snap, nil
}

// Delete implements Backend.
func (b *RedisBackend) Delete(ctx context.Context, sessionID string) error {
	if err := b.kv.Del(ctx, b.key(sessionID)); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
