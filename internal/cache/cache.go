package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a byte-oriented TTL cache. Absence of a working store is
// functionally equivalent to always-refetch: callers must treat every error
// or miss as a signal to load from the source of truth.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache key layout for the engine. TTLs are configured independently.
func PolicyKey(policyID string) string { return "policy:" + policyID }

func TicketStatusKey(ticketID string) string { return "ticket:sla:" + ticketID }

func TechnicianMetricsKey(technicianID, dateRange string) string {
	return fmt.Sprintf("technician:metrics:%s:%s", technicianID, dateRange)
}

// GetOrRefresh returns the cached value under key, or runs loader, stores the
// result for ttl, and returns it. Store failures degrade to a plain load.
func GetOrRefresh[T any](ctx context.Context, store Store, key string, ttl time.Duration, loader func(ctx context.Context) (T, error)) (T, error) {
	var value T
	if store != nil {
		raw, ok, err := store.Get(ctx, key)
		if err == nil && ok {
			if err := json.Unmarshal(raw, &value); err == nil {
				return value, nil
			}
			// Unreadable entry: drop it and refetch.
			_ = store.Delete(ctx, key)
		}
	}

	value, err := loader(ctx)
	if err != nil {
		return value, err
	}

	if store != nil {
		if raw, err := json.Marshal(value); err == nil {
			_ = store.Set(ctx, key, raw, ttl)
		}
	}
	return value, nil
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryStore is an in-process Store used when Redis is absent and in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// RedisStore backs the engine caches with Redis.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps the shared go-redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
