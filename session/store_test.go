package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lewadaa/task-manager/kv"
)

func newRedisStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return NewStore(kv.NewRedis(rdb), ""), mr
}

func TestPutGetDelete(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "alice", "r1", time.Hour); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !mr.Exists("refresh:alice") {
		t.Fatal("expected refresh:alice key")
	}

	got, ok, err := store.Get(ctx, "alice")
	if err != nil || !ok || got != "r1" {
		t.Fatalf("get: got=%q ok=%v err=%v", got, ok, err)
	}

	if err := store.Put(ctx, "alice", "r2", time.Hour); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if got, _, _ := store.Get(ctx, "alice"); got != "r2" {
		t.Fatalf("expected overwrite, got %q", got)
	}

	if err := store.Delete(ctx, "alice"); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := store.Delete(ctx, "alice"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "alice"); ok {
		t.Fatal("expected session gone")
	}
}

func TestSessionExpires(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, "alice", "r1", time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, ok, err := store.Get(ctx, "alice"); ok || err != nil {
		t.Fatalf("expected expired session, ok=%v err=%v", ok, err)
	}
}

func TestMatches(t *testing.T) {
	store := NewStore(kv.NewMemory(nil), "")
	ctx := context.Background()

	if ok, err := store.Matches(ctx, "alice", "r1"); ok || err != nil {
		t.Fatalf("missing session matched: ok=%v err=%v", ok, err)
	}
	_ = store.Put(ctx, "alice", "r1", time.Hour)
	if ok, _ := store.Matches(ctx, "alice", "r1"); !ok {
		t.Fatal("expected match")
	}
	if ok, _ := store.Matches(ctx, "alice", "other"); ok {
		t.Fatal("unexpected match")
	}
}

func TestEmptyPrincipal(t *testing.T) {
	store := NewStore(kv.NewMemory(nil), "")
	if err := store.Put(context.Background(), "", "r1", time.Hour); !errors.Is(err, ErrEmptyPrincipal) {
		t.Fatalf("expected ErrEmptyPrincipal, got %v", err)
	}
}

func TestCustomPrefix(t *testing.T) {
	mem := kv.NewMemory(nil)
	store := NewStore(mem, "sess:")
	_ = store.Put(context.Background(), "bob", "r1", time.Hour)
	if ok, _ := mem.Exists(context.Background(), "sess:bob"); !ok {
		t.Fatal("expected custom prefix")
	}
}
