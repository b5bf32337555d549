// Package directory is a client for the employee directory service that
// holds employees, devices, support agents and the conversation log.
package directory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// TokenCache holds the bearer token shared by every directory call.
// Concurrent misses share a single login.
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	ttl       time.Duration
	group     singleflight.Group
}

// NewTokenCache creates a cache whose tokens are reused for ttl.
// ttl <= 0 keeps a token until Invalidate is called.
func NewTokenCache(ttl time.Duration) *TokenCache {
	return &TokenCache{ttl: ttl}
}

// Token returns the cached token or calls fetch to obtain a new one.
func (c *TokenCache) Token(ctx context.Context, fetch func(ctx context.Context) (string, error)) (string, error) {
	c.mu.Lock()
	if c.token != "" && (c.ttl <= 0 || time.Now().Before(c.expiresAt)) {
		tok := c.token
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("token", func() (any, error) {
		tok, err := fetch(ctx)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.token = tok
		c.expiresAt = time.Now().Add(c.ttl)
		c.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}
