// Package rediscache adds read-aside caching for device token lookups.
// Caching is an optimization, never a source of truth: every write path in
// the registry invalidates the affected user's entry so a disabled device
// stops receiving notifications immediately.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-push-engine/internal/domain"
	"github.com/redis/go-redis/v9"
)

// TokenCache stores a user's active token set under a per-tenant key.
type TokenCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *TokenCache {
	return &TokenCache{rdb: rdb, ttl: ttl}
}

// NewClient builds the underlying Redis client.
func NewClient(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

// Get returns the cached token set and whether it was present. Errors are
// reported as a miss; the caller falls back to the real store.
func (c *TokenCache) Get(ctx context.Context, tenantID, userID string) ([]domain.DeviceToken, bool) {
	raw, err := c.rdb.Get(ctx, c.key(tenantID, userID)).Bytes()
	if err != nil {
		return nil, false
	}
	var tokens []domain.DeviceToken
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, false
	}
	return tokens, true
}

// Set populates the entry. Failures are ignored; if Redis is down we just
// serve from the store.
func (c *TokenCache) Set(ctx context.Context, tenantID, userID string, tokens []domain.DeviceToken) {
	raw, err := json.Marshal(tokens)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, c.key(tenantID, userID), raw, c.ttl).Err()
}

// Invalidate drops the entry so the next lookup hits the store.
func (c *TokenCache) Invalidate(ctx context.Context, tenantID, userID string) {
	_ = c.rdb.Del(ctx, c.key(tenantID, userID)).Err()
}

func (c *TokenCache) key(tenantID, userID string) string {
	return fmt.Sprintf("push:tokens:%s:%s", tenantID, userID)
}
