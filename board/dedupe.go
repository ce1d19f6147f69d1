package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupeKeyPrefix = "dedupe"

// Deduper remembers idempotency keys of applied commands.
type Deduper interface {
	// Add records the key and returns true if it was newly added.
	Add(ctx context.Context, scope, key string) (bool, error)
	// Remove forgets a key so that a failed command may be retried.
	Remove(ctx context.Context, scope, key string) error
}

// BatchDeduper reserves a whole batch of keys at once. Implementations are
// all or nothing: on error no key of the batch stays reserved by the call.
type BatchDeduper interface {
	Deduper
	AddMany(ctx context.Context, scope string, keys []string) ([]bool, error)
}

// RedisDeduper stores processed idempotency keys in Redis so that a restarted
// server still recognizes a resubmitted batch.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(scope, key string) string {
	return fmt.Sprintf("%s:%s:%s", scope, dedupeKeyPrefix, key)
}

func (r *RedisDeduper) Add(ctx context.Context, scope, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(scope, key), 1, r.ttl).Result()
}

func (r *RedisDeduper) Remove(ctx context.Context, scope, key string) error {
	return r.client.Del(ctx, r.key(scope, key)).Err()
}

// AddMany reserves every key of a batch in one round trip and reports
// which were new. It is all or nothing: when any SETNX fails the keys this
// call did reserve are deleted again and no results are returned.
func (r *RedisDeduper) AddMany(ctx context.Context, scope string, keys []string) ([]bool, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	pipe := r.client.Pipeline()
	setnx := make([]*redis.BoolCmd, len(keys))
	for i, key := range keys {
		setnx[i] = pipe.SetNX(ctx, r.key(scope, key), 1, r.ttl)
	}
	_, execErr := pipe.Exec(ctx)

	added := make([]bool, len(keys))
	var reserved []string
	for i, cmd := range setnx {
		ok, err := cmd.Result()
		if err != nil {
			if execErr == nil {
				execErr = err
			}
			continue
		}
		added[i] = ok
		if ok {
			reserved = append(reserved, r.key(scope, keys[i]))
		}
	}
	if execErr == nil {
		return added, nil
	}
	if len(reserved) > 0 {
		if err := r.client.Del(context.WithoutCancel(ctx), reserved...).Err(); err != nil {
			execErr = errors.Join(execErr, fmt.Errorf("release reserved keys: %w", err))
		}
	}
	return nil, execErr
}

// MemoryDeduper keeps idempotency keys in process memory. Used when no Redis
// is configured.
type MemoryDeduper struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	keys map[string]time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, now: time.Now, keys: make(map[string]time.Time)}
}

func (m *MemoryDeduper) Add(_ context.Context, scope, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.pruneLocked(now)
	return m.reserveLocked(now, scope, key), nil
}

// AddMany reserves keys under a single lock; a key repeated within the
// batch is new only the first time.
func (m *MemoryDeduper) AddMany(_ context.Context, scope string, keys []string) ([]bool, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.pruneLocked(now)
	added := make([]bool, len(keys))
	for i, key := range keys {
		added[i] = m.reserveLocked(now, scope, key)
	}
	return added, nil
}

func (m *MemoryDeduper) pruneLocked(now time.Time) {
	for k, exp := range m.keys {
		if !now.Before(exp) {
			delete(m.keys, k)
		}
	}
}

func (m *MemoryDeduper) reserveLocked(now time.Time, scope, key string) bool {
	full := scope + ":" + dedupeKeyPrefix + ":" + key
	if _, seen := m.keys[full]; seen {
		return false
	}
	m.keys[full] = now.Add(m.ttl)
	return true
}

func (m *MemoryDeduper) Remove(_ context.Context, scope, key string) error {
	m.mu.Lock()
	delete(m.keys, scope+":"+dedupeKeyPrefix+":"+key)
	m.mu.Unlock()
	return nil
}
