// Package util provides test utilities for Redis-backed integration tests.
package util

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	// Shared connection URL for all tests in local dev
	sharedRedisURL string
	containerOnce  sync.Once
	containerErr   error

	// dbCursor hands each test its own logical database (Redis ships 16).
	dbCursor atomic.Int64
)

// SetupTestRedis returns a client bound to an isolated logical database.
// Both CI and local dev rotate through logical databases for isolation.
// - CI: connects to an external Redis service via CI_REDIS_URL
// - Local: uses a shared testcontainer (started once per package)
// The database is flushed before the test and again at cleanup.
func SetupTestRedis(t *testing.T) *redis.Client {
	ctx := context.Background()

	url := getOrCreateSharedRedis(t)

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)

	// Rotate through the 16 logical databases. Tests sharing an index are
	// serialized by the flush below only if they run sequentially, so keep
	// Redis-backed tests out of t.Parallel beyond 16 at once.
	opts.DB = int(dbCursor.Add(1) % 16)

	client := redis.NewClient(opts)
	require.NoError(t, client.FlushDB(ctx).Err())

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})

	return client
}

// getOrCreateSharedRedis returns the shared Redis URL. In CI, uses
// CI_REDIS_URL. In local dev, starts a shared testcontainer once.
func getOrCreateSharedRedis(t *testing.T) string {
	if ciURL := os.Getenv("CI_REDIS_URL"); ciURL != "" {
		t.Log("Using external Redis from CI_REDIS_URL")
		return ciURL
	}

	containerOnce.Do(func() {
		ctx := context.Background()
		t.Log("Starting shared Redis testcontainer for all tests")

		container, err := tcredis.Run(ctx,
			"redis:7-alpine",
			testcontainers.WithWaitStrategy(
				wait.ForLog("Ready to accept connections").
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			containerErr = fmt.Errorf("failed to start redis container: %w", err)
			return
		}

		url, err := container.ConnectionString(ctx)
		if err != nil {
			containerErr = fmt.Errorf("failed to get connection string: %w", err)
			return
		}

		sharedRedisURL = url
		t.Logf("Shared container ready: %s", sharedRedisURL)
	})

	require.NoError(t, containerErr, "Failed to setup shared test container")
	return sharedRedisURL
}
