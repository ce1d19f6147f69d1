package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type memKV struct {
	mu      sync.Mutex
	data    map[string][]byte
	gets    int
	failSet error
	failGet error
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.failGet != nil {
		return nil, m.failGet
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSet != nil {
		return m.failSet
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func startRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheGetMissThenHit(t *testing.T) {
	mr, client := startRedis(t)
	ctx := context.Background()
	base := newMemKV()
	base.data["board"] = []byte(`[1]`)

	cache := NewCache(base, client, time.Minute)

	got, err := cache.Get(ctx, "board")
	if err != nil || string(got) != `[1]` {
		t.Fatalf("unexpected first get: %s %v", got, err)
	}
	if ttl := mr.TTL(cacheKey("board")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}

	got, err = cache.Get(ctx, "board")
	if err != nil || string(got) != `[1]` {
		t.Fatalf("unexpected cached get: %s %v", got, err)
	}
	if base.gets != 1 {
		t.Fatalf("expected cached get to avoid backend, gets=%d", base.gets)
	}
}

func TestCacheSetWritesThroughAndRefreshes(t *testing.T) {
	mr, client := startRedis(t)
	ctx := context.Background()
	base := newMemKV()
	cache := NewCache(base, client, time.Minute)

	if err := cache.Set(ctx, "board", []byte(`[2]`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if string(base.data["board"]) != `[2]` {
		t.Fatalf("expected write-through, got %s", base.data["board"])
	}
	cached, err := mr.Get(cacheKey("board"))
	if err != nil || cached != `[2]` {
		t.Fatalf("expected cache refresh, got %q %v", cached, err)
	}
}

func TestCacheSetFailureEvicts(t *testing.T) {
	mr, client := startRedis(t)
	ctx := context.Background()
	base := newMemKV()
	cache := NewCache(base, client, time.Minute)
	_ = cache.Set(ctx, "board", []byte(`[1]`))

	base.failSet = errors.New("offline")
	if err := cache.Set(ctx, "board", []byte(`[2]`)); err == nil {
		t.Fatal("expected base failure to surface")
	}
	if mr.Exists(cacheKey("board")) {
		t.Fatal("cache must not keep a value the base rejected")
	}
}

func TestCacheMissingKeyIsNotCached(t *testing.T) {
	mr, client := startRedis(t)
	cache := NewCache(newMemKV(), client, time.Minute)

	if _, err := cache.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if mr.Exists(cacheKey("nope")) {
		t.Fatal("missing keys must not be cached")
	}
}

func TestCacheSurvivesRedisOutage(t *testing.T) {
	mr, client := startRedis(t)
	base := newMemKV()
	base.data["board"] = []byte(`[3]`)
	cache := NewCache(base, client, time.Minute)
	mr.Close()

	got, err := cache.Get(context.Background(), "board")
	if err != nil || string(got) != `[3]` {
		t.Fatalf("expected fallback to base, got %s %v", got, err)
	}
}

func TestRedisKV(t *testing.T) {
	_, client := startRedis(t)
	kv := NewRedisKV(client)
	ctx := context.Background()

	if _, err := kv.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := kv.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := kv.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("unexpected get: %s %v", got, err)
	}
}
