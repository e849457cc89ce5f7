package store

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mailops/triaged/pkg/config"
)

// NewClient builds the Redis client shared by the result store and the task
// queue. The URL carries host, credentials, and database; the pool is sized
// from max_connections.
func NewClient(settings config.RedisSettings) (*redis.Client, error) {
	opts, err := redis.ParseURL(settings.URL)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	opts.PoolSize = settings.MaxConnections
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 5 * time.Second
	opts.WriteTimeout = 5 * time.Second
	return redis.NewClient(opts), nil
}
