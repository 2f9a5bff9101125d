package attempts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisTTL       = 75 * time.Minute
	defaultUpdateRetries  = 10
	defaultScanBatchCount = 100
)

// RedisStore keeps records in Redis as JSON so every API instance shares
// lock state. Updates use WATCH/MULTI optimistic transactions.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	retries int
}

// RedisStoreOption configures a RedisStore
type RedisStoreOption func(*RedisStore)

// WithRedisKeyPrefix limits Scan and Sweep to keys with prefix
func WithRedisKeyPrefix(prefix string) RedisStoreOption {
	return func(rs *RedisStore) {
		rs.prefix = prefix
	}
}

// WithTTL sets the expiry applied to every write
func WithTTL(ttl time.Duration) RedisStoreOption {
	return func(rs *RedisStore) {
		if ttl > 0 {
			rs.ttl = ttl
		}
	}
}

// WithUpdateRetries sets how many times a conflicting Update is retried
func WithUpdateRetries(n int) RedisStoreOption {
	return func(rs *RedisStore) {
		if n > 0 {
			rs.retries = n
		}
	}
}

// NewRedisStore creates a store backed by client
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	rs := &RedisStore{
		client:  client,
		ttl:     defaultRedisTTL,
		retries: defaultUpdateRetries,
	}

	for _, opt := range opts {
		opt(rs)
	}

	return rs
}

func (rs *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	return getRecord(ctx, rs.client, key)
}

func (rs *RedisStore) Set(ctx context.Context, key string, r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode attempt record: %w", err)
	}
	if err := rs.client.Set(ctx, key, data, rs.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store attempt record: %w", err)
	}
	return nil
}

func (rs *RedisStore) Delete(ctx context.Context, key string) error {
	if err := rs.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete attempt record: %w", err)
	}
	return nil
}

// Update applies fn inside a WATCH transaction, retrying when another writer
// touched the key before EXEC
func (rs *RedisStore) Update(ctx context.Context, key string, fn UpdateFunc) (*Record, error) {
	var result *Record

	txf := func(tx *redis.Tx) error {
		current, err := getRecord(ctx, tx, key)
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		var data []byte
		if next != nil {
			if data, err = json.Marshal(next); err != nil {
				return fmt.Errorf("failed to encode attempt record: %w", err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, data, rs.ttl)
			return nil
		})
		result = next
		return err
	}

	for i := 0; i < rs.retries; i++ {
		err := rs.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}

	return nil, ErrConflict
}

// Sweep walks the key space with SCAN and removes stale records. A record
// that changes between the read and the delete is kept.
func (rs *RedisStore) Sweep(ctx context.Context, isStale StaleFunc) (int64, error) {
	var removed int64

	err := rs.scanKeys(ctx, func(key string) error {
		evicted := false
		_, err := rs.Update(ctx, key, func(current *Record) (*Record, error) {
			evicted = current != nil && isStale(key, *current)
			if current == nil || evicted {
				return nil, nil
			}
			return current, nil
		})
		if errors.Is(err, ErrConflict) {
			return nil
		}
		if err != nil {
			return err
		}
		if evicted {
			removed++
		}
		return nil
	})

	return removed, err
}

func (rs *RedisStore) Scan(ctx context.Context, fn func(key string, r Record) error) error {
	return rs.scanKeys(ctx, func(key string) error {
		r, err := rs.Get(ctx, key)
		if err != nil {
			return err
		}
		if r == nil {
			return nil
		}
		return fn(key, *r)
	})
}

func (rs *RedisStore) scanKeys(ctx context.Context, fn func(key string) error) error {
	iter := rs.client.Scan(ctx, 0, rs.prefix+"*", defaultScanBatchCount).Iterator()
	for iter.Next(ctx) {
		if err := fn(iter.Val()); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan attempt records: %w", err)
	}
	return nil
}

func getRecord(ctx context.Context, c redis.Cmdable, key string) (*Record, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt record: %w", err)
	}

	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to decode attempt record: %w", err)
	}
	return &r, nil
}
