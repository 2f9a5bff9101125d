package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/scamnemesis/authcore/internal/config"
)

// ErrRedisNotReady is returned when every connection attempt failed
var ErrRedisNotReady = errors.New("redis did not become ready")

// ConnectRedis parses cfg.URL and pings the server, retrying up to
// cfg.RetryAttempts times
func ConnectRedis(ctx context.Context, cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse redis url: %w", err)
	}

	attempts := max(cfg.RetryAttempts, 1)
	var lastErr error
	for i := 0; i < attempts; i++ {
		client := redis.NewClient(opts)

		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			logger.Info("redis connection established", slog.String("addr", opts.Addr))
			return client, nil
		}

		_ = client.Close()
		logger.Warn("redis not ready",
			slog.Int("attempt", i+1),
			slog.String("error", lastErr.Error()),
		)

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(cfg.RetryInterval):
		}
	}

	return nil, errors.Join(ErrRedisNotReady, lastErr)
}

// RedisHealthCheck pings client with a short timeout
func RedisHealthCheck(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
