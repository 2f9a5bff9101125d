package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scamnemesis/authcore/internal/config"
)

// ErrDatabaseNotReady is returned when every connection attempt failed
var ErrDatabaseNotReady = errors.New("database did not become ready")

// DB owns the credential store connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewConnection opens the pool and pings it, backing off linearly between
// attempts until cfg.ConnectTimeout elapses
func NewConnection(ctx context.Context, cfg *config.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	poolConfig, err := poolConfigFrom(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	attempts := max(cfg.ConnectAttempts, 1)
	var lastErr error
	for i := range attempts {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				logger.Info("database connection established",
					slog.String("host", cfg.Host),
					slog.String("database", cfg.Name),
					slog.Int("max_conns", int(poolConfig.MaxConns)),
					slog.Int("attempt", i+1),
				)
				return &DB{Pool: pool, logger: logger}, nil
			}
			pool.Close()
		}
		lastErr = err

		logger.Warn("database not ready",
			slog.Int("attempt", i+1),
			slog.Int("max_attempts", attempts),
			slog.String("error", err.Error()),
		)
		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrDatabaseNotReady, ctx.Err())
		case <-time.After(time.Duration(i+1) * cfg.ConnectBackoff):
		}
	}

	return nil, errors.Join(ErrDatabaseNotReady, lastErr)
}

func poolConfigFrom(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 && cfg.MinConns <= poolConfig.MaxConns {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	return poolConfig, nil
}

// NewFromPool wraps an existing pool
func NewFromPool(pool *pgxpool.Pool, logger *slog.Logger) *DB {
	return &DB{Pool: pool, logger: logger}
}

func (db *DB) Close() {
	stat := db.Pool.Stat()
	db.logger.Info("closing database connection pool",
		slog.Int("total_conns", int(stat.TotalConns())),
		slog.Int("acquired_conns", int(stat.AcquiredConns())),
	)
	db.Pool.Close()
}

// HealthCheck pings the pool with a short timeout
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}
