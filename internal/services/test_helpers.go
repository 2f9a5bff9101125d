package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/scamnemesis/authcore/internal/models"
)

// ============================================================================
// Repository mocks
// ============================================================================

// MockCredentialRepository implements CredentialRepository for testing
type MockCredentialRepository struct {
	GetByIDFunc    func(ctx context.Context, id string) (*models.Credential, error)
	GetByEmailFunc func(ctx context.Context, email string) (*models.Credential, error)
	UpdateFunc     func(ctx context.Context, id string, patch models.CredentialPatch) error
	ConsumeFunc    func(ctx context.Context, id, hash string) (int, error)
	ClaimStepFunc  func(ctx context.Context, id string, step int64) (bool, error)
}

func (m *MockCredentialRepository) GetByID(ctx context.Context, id string) (*models.Credential, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockCredentialRepository) GetByEmail(ctx context.Context, email string) (*models.Credential, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockCredentialRepository) Update(ctx context.Context, id string, patch models.CredentialPatch) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, patch)
	}
	return nil
}

func (m *MockCredentialRepository) ConsumeBackupCode(ctx context.Context, id, hash string) (int, error) {
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc(ctx, id, hash)
	}
	return 0, models.ErrNotFound
}

func (m *MockCredentialRepository) ClaimTOTPStep(ctx context.Context, id string, step int64) (bool, error) {
	if m.ClaimStepFunc != nil {
		return m.ClaimStepFunc(ctx, id, step)
	}
	return true, nil
}

// NewInMemoryCredentials returns a mock backed by a map. Updates are applied
// to the stored records so tests can assert on the resulting state.
func NewInMemoryCredentials(creds ...*models.Credential) (*MockCredentialRepository, map[string]*models.Credential) {
	var mu sync.Mutex
	byID := make(map[string]*models.Credential, len(creds))
	for _, c := range creds {
		byID[c.UserID] = c
	}

	snapshot := func(c *models.Credential) *models.Credential {
		cp := *c
		cp.BackupCodes = append([]string(nil), c.BackupCodes...)
		if c.TOTPLastStep != nil {
			step := *c.TOTPLastStep
			cp.TOTPLastStep = &step
		}
		return &cp
	}

	return &MockCredentialRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Credential, error) {
			mu.Lock()
			defer mu.Unlock()
			if c, ok := byID[id]; ok {
				return snapshot(c), nil
			}
			return nil, models.ErrNotFound
		},
		GetByEmailFunc: func(ctx context.Context, email string) (*models.Credential, error) {
			mu.Lock()
			defer mu.Unlock()
			for _, c := range byID {
				if strings.EqualFold(c.Email, email) {
					return snapshot(c), nil
				}
			}
			return nil, models.ErrNotFound
		},
		UpdateFunc: func(ctx context.Context, id string, patch models.CredentialPatch) error {
			mu.Lock()
			defer mu.Unlock()
			c, ok := byID[id]
			if !ok {
				return models.ErrNotFound
			}
			applyPatch(c, patch)
			return nil
		},
		ConsumeFunc: func(ctx context.Context, id, hash string) (int, error) {
			mu.Lock()
			defer mu.Unlock()
			c, ok := byID[id]
			if !ok {
				return 0, models.ErrNotFound
			}
			for i, stored := range c.BackupCodes {
				if stored == hash {
					c.BackupCodes = append(c.BackupCodes[:i:i], c.BackupCodes[i+1:]...)
					return len(c.BackupCodes), nil
				}
			}
			return 0, models.ErrNotFound
		},
		ClaimStepFunc: func(ctx context.Context, id string, step int64) (bool, error) {
			mu.Lock()
			defer mu.Unlock()
			c, ok := byID[id]
			if !ok {
				return false, models.ErrNotFound
			}
			if c.TOTPLastStep != nil && *c.TOTPLastStep >= step {
				return false, nil
			}
			c.TOTPLastStep = &step
			return true, nil
		},
	}, byID
}

func applyPatch(c *models.Credential, p models.CredentialPatch) {
	if p.PasswordHash != nil {
		c.PasswordHash = *p.PasswordHash
	}
	if p.ClearTOTP {
		c.TOTPSecret = nil
		c.TOTPVerifiedAt = nil
		c.TOTPLastStep = nil
	}
	if p.TOTPSecret != nil {
		c.TOTPSecret = p.TOTPSecret
	}
	if p.TOTPEnabled != nil {
		c.TOTPEnabled = *p.TOTPEnabled
	}
	if p.TOTPVerifiedAt != nil {
		c.TOTPVerifiedAt = p.TOTPVerifiedAt
	}
	if p.BackupCodes != nil {
		c.BackupCodes = append([]string(nil), (*p.BackupCodes)...)
	}
	if p.LastLoginAt != nil {
		c.LastLoginAt = p.LastLoginAt
	}
}

// MockRefreshTokenRepository implements RefreshTokenRepository for testing
type MockRefreshTokenRepository struct {
	CreateFunc         func(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	DeleteByHashFunc   func(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	DeleteByUserIDFunc func(ctx context.Context, userID string) (int64, error)
	DeleteExpiredFunc  func(ctx context.Context, now time.Time) (int64, error)
}

func (m *MockRefreshTokenRepository) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, userID, tokenHash, expiresAt)
	}
	return nil
}

func (m *MockRefreshTokenRepository) DeleteByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	if m.DeleteByHashFunc != nil {
		return m.DeleteByHashFunc(ctx, tokenHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockRefreshTokenRepository) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	if m.DeleteByUserIDFunc != nil {
		return m.DeleteByUserIDFunc(ctx, userID)
	}
	return 0, nil
}

func (m *MockRefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx, now)
	}
	return 0, nil
}

// NewInMemoryRefreshTokens returns a mock that keeps refresh token rows keyed by hash
func NewInMemoryRefreshTokens() (*MockRefreshTokenRepository, map[string]*models.RefreshToken) {
	var mu sync.Mutex
	rows := make(map[string]*models.RefreshToken)

	return &MockRefreshTokenRepository{
		CreateFunc: func(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
			mu.Lock()
			defer mu.Unlock()
			rows[tokenHash] = &models.RefreshToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: expiresAt}
			return nil
		},
		DeleteByHashFunc: func(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
			mu.Lock()
			defer mu.Unlock()
			row, ok := rows[tokenHash]
			if !ok {
				return nil, models.ErrNotFound
			}
			delete(rows, tokenHash)
			return row, nil
		},
		DeleteByUserIDFunc: func(ctx context.Context, userID string) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			var n int64
			for hash, row := range rows {
				if row.UserID == userID {
					delete(rows, hash)
					n++
				}
			}
			return n, nil
		},
		DeleteExpiredFunc: func(ctx context.Context, now time.Time) (int64, error) {
			mu.Lock()
			defer mu.Unlock()
			var n int64
			for hash, row := range rows {
				if row.IsExpired(now) {
					delete(rows, hash)
					n++
				}
			}
			return n, nil
		},
	}, rows
}

// MockAuditLogRepository implements AuditLogRepository for testing
type MockAuditLogRepository struct {
	CreateFunc       func(ctx context.Context, entry *models.AuditLog) error
	ListByEntityFunc func(ctx context.Context, entityType, entityID string, limit int) ([]*models.AuditLog, error)
}

func (m *MockAuditLogRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, entry)
	}
	return nil
}

func (m *MockAuditLogRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*models.AuditLog, error) {
	if m.ListByEntityFunc != nil {
		return m.ListByEntityFunc(ctx, entityType, entityID, limit)
	}
	return []*models.AuditLog{}, nil
}

// ============================================================================
// Collaborator fakes
// ============================================================================

// RecordingAuditSink keeps every recorded entry
type RecordingAuditSink struct {
	mu      sync.Mutex
	Entries []models.AuditLog
}

func (r *RecordingAuditSink) Record(ctx context.Context, entry models.AuditLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Entries = append(r.Entries, entry)
}

// Actions returns the recorded actions in order
func (r *RecordingAuditSink) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	actions := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		actions[i] = e.Action
	}
	return actions
}

// Last returns the most recent entry with action, or nil
func (r *RecordingAuditSink) Last(action string) *models.AuditLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.Entries) - 1; i >= 0; i-- {
		if r.Entries[i].Action == action {
			e := r.Entries[i]
			return &e
		}
	}
	return nil
}

// MockPublisher implements AuditPublisher for testing
type MockPublisher struct {
	PublishFunc func(ctx context.Context, entry models.AuditLog)
}

func (m *MockPublisher) Publish(ctx context.Context, entry models.AuditLog) {
	if m.PublishFunc != nil {
		m.PublishFunc(ctx, entry)
	}
}

// NotifyCall is one captured security notification
type NotifyCall struct {
	Email string
	Kind  string
	IP    string
}

// MockNotifier implements SecurityNotifier for testing
type MockNotifier struct {
	mu    sync.Mutex
	Calls []NotifyCall
}

func (m *MockNotifier) NotifySecurityChange(ctx context.Context, email, kind, ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, NotifyCall{Email: email, Kind: kind, IP: ip})
}

// MockDelayer records requested delays without sleeping
type MockDelayer struct {
	mu     sync.Mutex
	Waits  []time.Duration
	WaitFn func(ctx context.Context, d time.Duration) error
}

func (m *MockDelayer) Wait(ctx context.Context, d time.Duration) error {
	m.mu.Lock()
	m.Waits = append(m.Waits, d)
	m.mu.Unlock()
	if m.WaitFn != nil {
		return m.WaitFn(ctx, d)
	}
	return nil
}

// ============================================================================
// Fixtures
// ============================================================================

// NewTestCredential returns an active, verified account without 2FA
func NewTestCredential(id, email, passwordHash string) *models.Credential {
	now := time.Now()
	return &models.Credential{
		UserID:        id,
		Email:         email,
		PasswordHash:  passwordHash,
		Role:          models.RoleStandard,
		IsActive:      true,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// NewTestCredentialWith2FA returns an account with TOTP enabled on secret
func NewTestCredentialWith2FA(id, email, passwordHash, secret string, backupHashes []string) *models.Credential {
	c := NewTestCredential(id, email, passwordHash)
	verified := time.Now().Add(-24 * time.Hour)
	c.TOTPSecret = &secret
	c.TOTPEnabled = true
	c.TOTPVerifiedAt = &verified
	c.BackupCodes = backupHashes
	return c
}
