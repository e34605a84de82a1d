package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kayz/promptbot/internal/persist"
)

// StoreType names a snapshot driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQLite StoreType = "sqlite"
)

const (
	keyPrefix  = "snapshot:"
	defaultTTL = 24 * time.Hour
)

// NewStore creates a Store of the given type.
// Redis requires WithRedisClient; SQLite requires WithSQLite.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{}
	for _, opt := range opts {
		opt(config)
	}

	switch storeType {
	case StoreTypeMemory:
		return &memoryStore{entries: make(map[string]Entry)}, nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		ttl := config.ttl
		if ttl <= 0 {
			ttl = defaultTTL
		}
		return &redisStore{client: config.redisClient, ttl: ttl}, nil

	case StoreTypeSQLite:
		if config.sqlite == nil {
			return nil, ErrInvalidConfig
		}
		return &sqliteStore{store: config.sqlite}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStoreType, storeType)
	}
}

// memoryStore keeps entries in a map. Entries are copied in and out.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func (s *memoryStore) Put(ctx context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entries == nil {
		return errors.New("snapshot store closed")
	}
	e.UpdatedAt = time.Now()
	s.entries[e.ID] = *e
	return nil
}

func (s *memoryStore) Get(ctx context.Context, id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, id)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	return nil
}

// redisStore keeps entries as JSON values under snapshot:<id>.
type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func (s *redisStore) key(id string) string {
	return keyPrefix + id
}

func (s *redisStore) Put(ctx context.Context, e *Entry) error {
	e.UpdatedAt = time.Now()
	val, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(e.ID), val, s.ttl).Err()
}

// Get refreshes the TTL on every read.
func (s *redisStore) Get(ctx context.Context, id string) (*Entry, error) {
	key := s.key(id)
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var e Entry
	if err := json.Unmarshal([]byte(val), &e); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", id, err)
	}

	_ = s.client.Expire(ctx, key, s.ttl).Err()
	return &e, nil
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

// sqliteStore keeps entries in the sessions table of the persistence store.
type sqliteStore struct {
	store *persist.Store
}

func (s *sqliteStore) Put(ctx context.Context, e *Entry) error {
	if err := s.store.SaveSession(e.ID, e.Persona, e.Data, e.Turns); err != nil {
		return err
	}
	e.UpdatedAt = time.Now()
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*Entry, error) {
	rec, err := s.store.GetSession(id)
	if errors.Is(err, persist.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &Entry{
		ID:        rec.ID,
		Persona:   rec.Persona,
		Data:      rec.Snapshot,
		Turns:     rec.Turns,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	return s.store.DeleteSession(id)
}

// Close leaves the shared persistence store open; its owner closes it.
func (s *sqliteStore) Close() error {
	return nil
}
