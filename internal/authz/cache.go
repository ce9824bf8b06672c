package authz

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultCacheTTL is the decision cache entry lifetime when none is
// configured.
const DefaultCacheTTL = 5 * time.Minute

// DecisionCache stores computed permission decisions keyed by
// (user, resource, action, scope). Implementations must be safe for
// concurrent use.
type DecisionCache interface {
	Get(key string) (allowed bool, found bool)
	Set(key string, allowed bool)
	InvalidateUser(userID string)
	InvalidateResource(resource string)
	Clear()
	Len() int
	// Sweep proactively removes expired entries and reports how many were
	// dropped. Correctness never depends on it running; Get already treats
	// expired entries as misses.
	Sweep() int
}

const keySep = "|"

// scope absence must occupy its own cache slot, distinct from "own"/"all"
const noScopeSlot = "-"

// CacheKey builds the canonical decision cache key. Scope presence and
// absence map to different keys so the slots cannot collide.
func CacheKey(userID, resource string, action Action, scope Scope) string {
	slot := string(scope)
	if scope == ScopeAny {
		slot = noScopeSlot
	}
	return strings.Join([]string{userID, resource, string(action), slot}, keySep)
}

func keyUser(key string) string {
	if i := strings.Index(key, keySep); i >= 0 {
		return key[:i]
	}
	return key
}

func keyResource(key string) string {
	parts := strings.SplitN(key, keySep, 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

type cacheEntry struct {
	allowed   bool
	createdAt time.Time
}

// MemoryCache is the default in-process decision cache: a mutex-protected
// map with lazy TTL expiry. Reads never mutate shared state; expired entries
// report as misses and are reclaimed by Set, invalidation or Sweep.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration

	now func() time.Time
}

// NewMemoryCache constructs an unbounded cache with the given TTL.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the cached decision. Entries older than the TTL report as
// absent.
func (c *MemoryCache) Get(key string) (bool, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return false, false
	}
	if c.now().Sub(entry.createdAt) > c.ttl {
		return false, false
	}
	return entry.allowed, true
}

// Set stores the decision with the current timestamp, refreshing any
// existing entry.
func (c *MemoryCache) Set(key string, allowed bool) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{allowed: allowed, createdAt: c.now()}
	c.mu.Unlock()
}

// InvalidateUser removes every entry belonging to the user.
func (c *MemoryCache) InvalidateUser(userID string) {
	c.mu.Lock()
	for key := range c.entries {
		if keyUser(key) == userID {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// InvalidateResource removes every entry for the resource across all users.
func (c *MemoryCache) InvalidateResource(resource string) {
	c.mu.Lock()
	for key := range c.entries {
		if keyResource(key) == resource {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

// Clear drops all entries.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired ones included until the
// next sweep.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes expired entries for memory hygiene.
func (c *MemoryCache) Sweep() int {
	cutoff := c.now().Add(-c.ttl)
	removed := 0
	c.mu.Lock()
	for key, entry := range c.entries {
		if entry.createdAt.Before(cutoff) {
			delete(c.entries, key)
			removed++
		}
	}
	c.mu.Unlock()
	return removed
}

// BoundedCache is the size-capped variant backed by an expirable LRU. It
// trades the unbounded map for a hard memory ceiling; eviction of live
// entries only forces a recompute, never a wrong answer.
type BoundedCache struct {
	lru *lru.LRU[string, bool]
}

// NewBoundedCache constructs a cache holding at most maxSize entries with
// the given TTL.
func NewBoundedCache(maxSize int, ttl time.Duration) *BoundedCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &BoundedCache{lru: lru.NewLRU[string, bool](maxSize, nil, ttl)}
}

func (c *BoundedCache) Get(key string) (bool, bool) {
	return c.lru.Get(key)
}

func (c *BoundedCache) Set(key string, allowed bool) {
	c.lru.Add(key, allowed)
}

func (c *BoundedCache) InvalidateUser(userID string) {
	for _, key := range c.lru.Keys() {
		if keyUser(key) == userID {
			c.lru.Remove(key)
		}
	}
}

func (c *BoundedCache) InvalidateResource(resource string) {
	for _, key := range c.lru.Keys() {
		if keyResource(key) == resource {
			c.lru.Remove(key)
		}
	}
}

func (c *BoundedCache) Clear() {
	c.lru.Purge()
}

func (c *BoundedCache) Len() int {
	return c.lru.Len()
}

// Sweep is a no-op; the underlying LRU expires entries on its own.
func (c *BoundedCache) Sweep() int {
	return 0
}

var (
	_ DecisionCache = (*MemoryCache)(nil)
	_ DecisionCache = (*BoundedCache)(nil)
)
