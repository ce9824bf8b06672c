package authz

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMirror(t *testing.T) (*RedisMirror, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisMirror(client, time.Minute, discardLogger()), mr
}

func TestRedisMirrorRoundTrip(t *testing.T) {
	mirror, _ := testMirror(t)
	ctx := context.Background()
	key := CacheKey("u1", "products", ActionRead, ScopeAll)

	if _, found := mirror.Get(ctx, key); found {
		t.Fatal("empty mirror must miss")
	}
	mirror.Set(ctx, key, true)
	allowed, found := mirror.Get(ctx, key)
	if !found || !allowed {
		t.Fatalf("got (%v,%v), want (true,true)", allowed, found)
	}

	denyKey := CacheKey("u1", "users", ActionDelete, ScopeAny)
	mirror.Set(ctx, denyKey, false)
	allowed, found = mirror.Get(ctx, denyKey)
	if !found || allowed {
		t.Fatalf("got (%v,%v), want (false,true)", allowed, found)
	}
}

func TestRedisMirrorTTL(t *testing.T) {
	mirror, mr := testMirror(t)
	ctx := context.Background()
	key := CacheKey("u1", "products", ActionRead, ScopeAny)

	mirror.Set(ctx, key, true)
	mr.FastForward(2 * time.Minute)

	if _, found := mirror.Get(ctx, key); found {
		t.Fatal("expired entry must miss")
	}
}

func TestRedisMirrorDeleteUser(t *testing.T) {
	mirror, _ := testMirror(t)
	ctx := context.Background()

	mirror.Set(ctx, CacheKey("u1", "products", ActionRead, ScopeAny), true)
	mirror.Set(ctx, CacheKey("u1", "pages", ActionUpdate, ScopeOwn), false)
	mirror.Set(ctx, CacheKey("u2", "products", ActionRead, ScopeAny), true)

	mirror.DeleteUser(ctx, "u1")

	if _, found := mirror.Get(ctx, CacheKey("u1", "products", ActionRead, ScopeAny)); found {
		t.Fatal("u1 entries must be gone")
	}
	if _, found := mirror.Get(ctx, CacheKey("u2", "products", ActionRead, ScopeAny)); !found {
		t.Fatal("u2 entries must survive")
	}
}

func TestRedisMirrorDeleteResource(t *testing.T) {
	mirror, _ := testMirror(t)
	ctx := context.Background()

	mirror.Set(ctx, CacheKey("u1", "products", ActionRead, ScopeAny), true)
	mirror.Set(ctx, CacheKey("u2", "products", ActionDelete, ScopeAll), false)
	mirror.Set(ctx, CacheKey("u1", "pages", ActionRead, ScopeAny), true)

	mirror.DeleteResource(ctx, "products")

	if _, found := mirror.Get(ctx, CacheKey("u1", "products", ActionRead, ScopeAny)); found {
		t.Fatal("products entries must be gone")
	}
	if _, found := mirror.Get(ctx, CacheKey("u1", "pages", ActionRead, ScopeAny)); !found {
		t.Fatal("pages entries must survive")
	}
}

func TestRedisMirrorClear(t *testing.T) {
	mirror, mr := testMirror(t)
	ctx := context.Background()

	// Keys outside the mirror's namespace must not be touched.
	mr.Set("session:abc", "x")
	mirror.Set(ctx, CacheKey("u1", "products", ActionRead, ScopeAny), true)
	mirror.Set(ctx, CacheKey("u2", "pages", ActionRead, ScopeAny), true)

	mirror.Clear(ctx)

	if _, found := mirror.Get(ctx, CacheKey("u1", "products", ActionRead, ScopeAny)); found {
		t.Fatal("mirror must be empty")
	}
	if !mr.Exists("session:abc") {
		t.Fatal("foreign keys must survive a clear")
	}
}

func TestRedisMirrorDegradesOnFailure(t *testing.T) {
	mirror, mr := testMirror(t)
	ctx := context.Background()
	key := CacheKey("u1", "products", ActionRead, ScopeAny)

	mirror.Set(ctx, key, true)
	mr.Close()

	// A dead backend reports a miss instead of an error.
	if _, found := mirror.Get(ctx, key); found {
		t.Fatal("unreachable backend must report a miss")
	}
	mirror.Set(ctx, key, true)
	mirror.DeleteUser(ctx, "u1")
	mirror.Clear(ctx)
}

func TestRedisMirrorNilReceiver(t *testing.T) {
	var mirror *RedisMirror
	ctx := context.Background()

	if _, found := mirror.Get(ctx, "k"); found {
		t.Fatal("nil mirror must miss")
	}
	mirror.Set(ctx, "k", true)
	mirror.DeleteUser(ctx, "u1")
	mirror.DeleteResource(ctx, "products")
	mirror.Clear(ctx)
}
