package authz

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "authz:perm:"

// RedisMirror shares decision cache state across instances through Redis.
// Every operation is best effort: a failing or unreachable Redis degrades to
// the local tier, it never fails a permission check.
type RedisMirror struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisMirror constructs a mirror with the given entry TTL.
func NewRedisMirror(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisMirror {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisMirror{client: client, ttl: ttl, logger: logger}
}

// Get fetches a mirrored decision. Missing keys and backend failures both
// report not-found; failures are logged.
func (m *RedisMirror) Get(ctx context.Context, key string) (bool, bool) {
	if m == nil || m.client == nil {
		return false, false
	}
	val, err := m.client.Get(ctx, redisKeyPrefix+key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) {
			m.logger.Warn("authz redis get", slog.Any("error", err))
		}
		return false, false
	}
	return val == "1", true
}

// Set mirrors a decision with the configured TTL.
func (m *RedisMirror) Set(ctx context.Context, key string, allowed bool) {
	if m == nil || m.client == nil {
		return
	}
	val := "0"
	if allowed {
		val = "1"
	}
	if err := m.client.Set(ctx, redisKeyPrefix+key, val, m.ttl).Err(); err != nil {
		m.logger.Warn("authz redis set", slog.Any("error", err))
	}
}

// DeleteUser removes all mirrored entries for the user.
func (m *RedisMirror) DeleteUser(ctx context.Context, userID string) {
	m.deletePattern(ctx, redisKeyPrefix+userID+keySep+"*", func(string) bool { return true })
}

// DeleteResource removes mirrored entries for the resource across all users.
func (m *RedisMirror) DeleteResource(ctx context.Context, resource string) {
	m.deletePattern(ctx, redisKeyPrefix+"*", func(key string) bool {
		return keyResource(key[len(redisKeyPrefix):]) == resource
	})
}

// Clear removes every mirrored decision.
func (m *RedisMirror) Clear(ctx context.Context) {
	m.deletePattern(ctx, redisKeyPrefix+"*", func(string) bool { return true })
}

func (m *RedisMirror) deletePattern(ctx context.Context, pattern string, match func(string) bool) {
	if m == nil || m.client == nil {
		return
	}
	iter := m.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		if key := iter.Val(); match(key) {
			keys = append(keys, key)
		}
	}
	if err := iter.Err(); err != nil {
		m.logger.Warn("authz redis scan", slog.Any("error", err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := m.client.Del(ctx, keys...).Err(); err != nil {
		m.logger.Warn("authz redis del", slog.Any("error", err))
	}
}
