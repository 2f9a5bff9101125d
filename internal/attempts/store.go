// Package attempts stores failed-authentication counters keyed by identifier.
package attempts

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned when an Update could not be applied because the
// record kept changing underneath it
var ErrConflict = errors.New("attempt record modified concurrently")

// Record tracks failures for one identifier
type Record struct {
	Count        int        `json:"count"`
	FirstAttempt time.Time  `json:"first_attempt"`
	LastAttempt  time.Time  `json:"last_attempt"`
	LockedUntil  *time.Time `json:"locked_until,omitempty"`
}

// IsLocked reports whether the record holds an active lock at now
func (r *Record) IsLocked(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// UpdateFunc receives the current record (nil when absent) and returns the
// record to store. Returning nil removes the key.
type UpdateFunc func(current *Record) (*Record, error)

// StaleFunc reports whether a record should be evicted
type StaleFunc func(key string, r Record) bool

// Store is a key/value store for attempt records. Update must apply fn
// atomically with respect to other writers of the same key.
type Store interface {
	Get(ctx context.Context, key string) (*Record, error)
	Set(ctx context.Context, key string, r Record) error
	Delete(ctx context.Context, key string) error
	Update(ctx context.Context, key string, fn UpdateFunc) (*Record, error)
	Sweep(ctx context.Context, isStale StaleFunc) (int64, error)
	Scan(ctx context.Context, fn func(key string, r Record) error) error
}
