package snapshot

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kayz/promptbot/internal/persist"
)

// StoreOption is a functional option for configuring a snapshot store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	ttl         time.Duration
	sqlite      *persist.Store
}

// WithRedisClient sets the Redis client for the Redis store.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithTTL sets how long Redis keeps an idle snapshot.
func WithTTL(ttl time.Duration) StoreOption {
	return func(c *storeConfig) {
		c.ttl = ttl
	}
}

// WithSQLite sets the persistence store backing the SQLite driver.
func WithSQLite(store *persist.Store) StoreOption {
	return func(c *storeConfig) {
		c.sqlite = store
	}
}
