//go:build integration

package attempts_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/scamnemesis/authcore/internal/attempts"
)

func setupRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())

	return client
}

func TestRedisStore_Integration(t *testing.T) {
	client := setupRedis(t)
	ctx := context.Background()
	store := attempts.NewRedisStore(client,
		attempts.WithRedisKeyPrefix("brute_force:"),
		attempts.WithTTL(time.Minute),
	)

	t.Run("get set delete", func(t *testing.T) {
		r, err := store.Get(ctx, "brute_force:missing")
		require.NoError(t, err)
		assert.Nil(t, r)

		until := time.Now().Add(time.Minute).UTC().Truncate(time.Millisecond)
		require.NoError(t, store.Set(ctx, "brute_force:a", attempts.Record{Count: 5, LockedUntil: &until}))

		r, err = store.Get(ctx, "brute_force:a")
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, 5, r.Count)
		assert.True(t, until.Equal(*r.LockedUntil))

		ttl, err := client.TTL(ctx, "brute_force:a").Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, time.Duration(0))

		require.NoError(t, store.Delete(ctx, "brute_force:a"))
		r, err = store.Get(ctx, "brute_force:a")
		require.NoError(t, err)
		assert.Nil(t, r)
	})

	t.Run("concurrent updates are not lost", func(t *testing.T) {
		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Update(ctx, "brute_force:counter", func(current *attempts.Record) (*attempts.Record, error) {
					if current == nil {
						return &attempts.Record{Count: 1}, nil
					}
					current.Count++
					return current, nil
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		r, err := store.Get(ctx, "brute_force:counter")
		require.NoError(t, err)
		assert.Equal(t, workers, r.Count)
	})

	t.Run("sweep and scan", func(t *testing.T) {
		require.NoError(t, client.FlushDB(ctx).Err())
		require.NoError(t, store.Set(ctx, "brute_force:stale", attempts.Record{Count: 1}))
		require.NoError(t, store.Set(ctx, "brute_force:live", attempts.Record{Count: 3}))
		require.NoError(t, client.Set(ctx, "unrelated", "x", 0).Err())

		count := 0
		require.NoError(t, store.Scan(ctx, func(key string, r attempts.Record) error {
			count++
			return nil
		}))
		assert.Equal(t, 2, count)

		removed, err := store.Sweep(ctx, func(key string, r attempts.Record) bool { return r.Count == 1 })
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)

		exists, err := client.Exists(ctx, "unrelated").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), exists)
	})
}
