package attempts

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore keeps records in process memory. State is lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
	prefix  string
}

// MemoryStoreOption configures a MemoryStore
type MemoryStoreOption func(*MemoryStore)

// WithKeyPrefix limits Scan and Sweep to keys with prefix
func WithKeyPrefix(prefix string) MemoryStoreOption {
	return func(ms *MemoryStore) {
		ms.prefix = prefix
	}
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	ms := &MemoryStore{
		records: make(map[string]Record),
	}

	for _, opt := range opts {
		opt(ms)
	}

	return ms
}

func (ms *MemoryStore) Get(ctx context.Context, key string) (*Record, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	r, ok := ms.records[key]
	if !ok {
		return nil, nil
	}
	return copyRecord(r), nil
}

func (ms *MemoryStore) Set(ctx context.Context, key string, r Record) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.records[key] = *copyRecord(r)
	return nil
}

func (ms *MemoryStore) Delete(ctx context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.records, key)
	return nil
}

// Update runs fn while holding the store lock
func (ms *MemoryStore) Update(ctx context.Context, key string, fn UpdateFunc) (*Record, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var current *Record
	if r, ok := ms.records[key]; ok {
		current = copyRecord(r)
	}

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	if next == nil {
		delete(ms.records, key)
		return nil, nil
	}

	ms.records[key] = *copyRecord(*next)
	return copyRecord(*next), nil
}

func (ms *MemoryStore) Sweep(ctx context.Context, isStale StaleFunc) (int64, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var removed int64
	for key, r := range ms.records {
		if !strings.HasPrefix(key, ms.prefix) {
			continue
		}
		if isStale(key, r) {
			delete(ms.records, key)
			removed++
		}
	}

	return removed, nil
}

// Scan calls fn for a snapshot of the stored records
func (ms *MemoryStore) Scan(ctx context.Context, fn func(key string, r Record) error) error {
	ms.mu.Lock()
	snapshot := make(map[string]Record, len(ms.records))
	for key, r := range ms.records {
		if strings.HasPrefix(key, ms.prefix) {
			snapshot[key] = *copyRecord(r)
		}
	}
	ms.mu.Unlock()

	for key, r := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(key, r); err != nil {
			return err
		}
	}

	return nil
}

// Len returns the number of stored records
func (ms *MemoryStore) Len() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.records)
}

func copyRecord(r Record) *Record {
	out := r
	if r.LockedUntil != nil {
		until := *r.LockedUntil
		out.LockedUntil = &until
	}
	return &out
}
