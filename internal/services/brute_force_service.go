package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/scamnemesis/authcore/internal/attempts"
	"github.com/scamnemesis/authcore/internal/models"
)

// BruteForceConfig holds the thresholds of one guard instance
type BruteForceConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	AttemptWindow   time.Duration
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	KeyPrefix       string
}

// DefaultBruteForceConfig returns the password guard defaults
func DefaultBruteForceConfig() BruteForceConfig {
	return BruteForceConfig{
		MaxAttempts:     5,
		LockoutDuration: 15 * time.Minute,
		AttemptWindow:   time.Hour,
		BaseDelay:       time.Second,
		MaxDelay:        30 * time.Second,
		KeyPrefix:       "brute_force:",
	}
}

// LockStatus describes the guard state for an identifier
type LockStatus struct {
	Locked            bool
	LockedUntil       *time.Time
	RetryAfter        time.Duration
	RemainingAttempts int
}

// FailureResult is returned after recording a failed attempt
type FailureResult struct {
	Locked            bool
	LockedUntil       *time.Time
	FailedAttempts    int
	RemainingAttempts int
	Delay             time.Duration
}

// GuardStats summarizes tracked identifiers
type GuardStats struct {
	Tracked int `json:"tracked"`
	Locked  int `json:"locked"`
}

// BruteForceGuard counts failed attempts per identifier and locks identifiers
// that exceed the budget within the attempt window
type BruteForceGuard struct {
	store  attempts.Store
	audit  AuditSink
	config BruteForceConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewBruteForceGuard creates a guard. Zero config fields take the defaults.
func NewBruteForceGuard(store attempts.Store, audit AuditSink, config BruteForceConfig, logger *slog.Logger) *BruteForceGuard {
	defaults := DefaultBruteForceConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.LockoutDuration <= 0 {
		config.LockoutDuration = defaults.LockoutDuration
	}
	if config.AttemptWindow <= 0 {
		config.AttemptWindow = defaults.AttemptWindow
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}

	return &BruteForceGuard{
		store:  store,
		audit:  audit,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the time source (tests)
func (g *BruteForceGuard) SetClock(now func() time.Time) {
	g.now = now
}

// Config returns the effective configuration
func (g *BruteForceGuard) Config() BruteForceConfig {
	return g.config
}

func (g *BruteForceGuard) key(identifier string) string {
	return g.config.KeyPrefix + strings.ToLower(strings.TrimSpace(identifier))
}

// CheckLocked reports whether identifier is locked. Records whose lock expired
// or whose window elapsed are evicted and the full budget is reported.
func (g *BruteForceGuard) CheckLocked(ctx context.Context, identifier string) (LockStatus, error) {
	key := g.key(identifier)
	now := g.now()
	clean := LockStatus{RemainingAttempts: g.config.MaxAttempts}

	record, err := g.store.Get(ctx, key)
	if err != nil {
		return clean, fmt.Errorf("failed to read attempt record: %w", err)
	}
	if record == nil {
		return clean, nil
	}

	if record.IsLocked(now) {
		return LockStatus{
			Locked:      true,
			LockedUntil: record.LockedUntil,
			RetryAfter:  record.LockedUntil.Sub(now),
		}, nil
	}

	if g.isStale(*record, now) {
		if _, err := g.store.Update(ctx, key, func(current *attempts.Record) (*attempts.Record, error) {
			if current == nil || g.isStale(*current, now) {
				return nil, nil
			}
			return current, nil
		}); err != nil {
			g.logger.Warn("failed to evict stale attempt record", slog.Any("error", err))
		}
		return clean, nil
	}

	return LockStatus{RemainingAttempts: max(g.config.MaxAttempts-record.Count, 0)}, nil
}

// RecordFailure counts a failed attempt and locks the identifier once the
// budget is exhausted
func (g *BruteForceGuard) RecordFailure(ctx context.Context, identifier, ip string) (FailureResult, error) {
	key := g.key(identifier)
	now := g.now()
	newlyLocked := false

	record, err := g.store.Update(ctx, key, func(current *attempts.Record) (*attempts.Record, error) {
		newlyLocked = false

		if current != nil && current.IsLocked(now) {
			current.LastAttempt = now
			return current, nil
		}

		if current == nil || g.isStale(*current, now) {
			current = &attempts.Record{FirstAttempt: now}
		}

		current.Count++
		current.LastAttempt = now

		if current.Count >= g.config.MaxAttempts {
			until := now.Add(g.config.LockoutDuration)
			current.LockedUntil = &until
			newlyLocked = true
		}

		return current, nil
	})
	if err != nil {
		return FailureResult{RemainingAttempts: g.config.MaxAttempts}, fmt.Errorf("failed to record failed attempt: %w", err)
	}

	result := FailureResult{
		Locked:            record.IsLocked(now),
		LockedUntil:       record.LockedUntil,
		FailedAttempts:    record.Count,
		RemainingAttempts: max(g.config.MaxAttempts-record.Count, 0),
		Delay:             g.delayFor(record.Count),
	}

	if newlyLocked {
		g.logger.Warn("identifier locked after repeated failures",
			slog.String("key_prefix", g.config.KeyPrefix),
			slog.Int("failed_attempts", record.Count),
			slog.Time("locked_until", *record.LockedUntil),
		)
		g.audit.Record(ctx, newAuditEntry(models.AuditActionAccountLocked, models.AuditEntityAuth,
			strings.ToLower(strings.TrimSpace(identifier)), "", ip, models.AuditChanges{
				"reason":         "brute_force_protection",
				"failedAttempts": record.Count,
				"lockedUntil":    record.LockedUntil.UTC().Format(time.RFC3339),
			}))
	}

	return result, nil
}

// RecordSuccess clears the identifier's record
func (g *BruteForceGuard) RecordSuccess(ctx context.Context, identifier string) error {
	if err := g.store.Delete(ctx, g.key(identifier)); err != nil {
		return fmt.Errorf("failed to clear attempt record: %w", err)
	}
	return nil
}

// AdminUnlock clears the identifier's record on behalf of an administrator
func (g *BruteForceGuard) AdminUnlock(ctx context.Context, identifier, adminID, ip string) error {
	if err := g.store.Delete(ctx, g.key(identifier)); err != nil {
		return fmt.Errorf("failed to clear attempt record: %w", err)
	}

	g.logger.Info("identifier unlocked by admin", slog.String("admin_id", adminID))
	g.audit.Record(ctx, newAuditEntry(models.AuditActionAccountUnlocked, models.AuditEntityAuth,
		strings.ToLower(strings.TrimSpace(identifier)), adminID, ip, models.AuditChanges{
			"reason":  "admin_unlock",
			"adminId": adminID,
		}))

	return nil
}

// Stats counts tracked and currently locked identifiers
func (g *BruteForceGuard) Stats(ctx context.Context) (GuardStats, error) {
	now := g.now()
	var stats GuardStats

	err := g.store.Scan(ctx, func(key string, r attempts.Record) error {
		stats.Tracked++
		if r.IsLocked(now) {
			stats.Locked++
		}
		return nil
	})
	if err != nil {
		return GuardStats{}, fmt.Errorf("failed to scan attempt records: %w", err)
	}

	return stats, nil
}

// Sweep evicts records whose lock expired or whose window elapsed
func (g *BruteForceGuard) Sweep(ctx context.Context) (int64, error) {
	now := g.now()
	return g.store.Sweep(ctx, func(key string, r attempts.Record) bool {
		return g.isStale(r, now)
	})
}

func (g *BruteForceGuard) isStale(r attempts.Record, now time.Time) bool {
	if r.LockedUntil != nil {
		return !now.Before(*r.LockedUntil)
	}
	return now.Sub(r.FirstAttempt) > g.config.AttemptWindow
}

// delayFor returns min(base * 2^(count-1), cap)
func (g *BruteForceGuard) delayFor(count int) time.Duration {
	if g.config.BaseDelay <= 0 || count <= 0 {
		return 0
	}

	delay := g.config.BaseDelay
	for i := 1; i < count; i++ {
		delay *= 2
		if g.config.MaxDelay > 0 && delay >= g.config.MaxDelay {
			return g.config.MaxDelay
		}
	}

	if g.config.MaxDelay > 0 && delay > g.config.MaxDelay {
		return g.config.MaxDelay
	}
	return delay
}
