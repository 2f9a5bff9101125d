//go:build integration

package repositories

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/scamnemesis/authcore/internal/database"
	"github.com/scamnemesis/authcore/internal/models"
)

// setupTestDatabase starts postgres, applies the goose migrations and returns a DB wrapper
func setupTestDatabase(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("scamnemesis"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	migrationsDir, err := filepath.Abs("../../migrations")
	require.NoError(t, err)
	require.NoError(t, database.Migrate(ctx, connStr, migrationsDir, logger))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return database.NewFromPool(pool, logger)
}

func seedCredential(t *testing.T, repo *CredentialRepository, email string) *models.Credential {
	t.Helper()

	cred, err := repo.Create(context.Background(), &models.Credential{
		Email:         email,
		PasswordHash:  "$2a$12$abcdefghijklmnopqrstuuS0m3H4sh",
		Role:          models.RoleStandard,
		IsActive:      true,
		EmailVerified: true,
	})
	require.NoError(t, err)
	return cred
}

func TestRepositories_Integration(t *testing.T) {
	db := setupTestDatabase(t)
	ctx := context.Background()

	creds := NewCredentialRepository(db)
	tokens := NewRefreshTokenRepository(db)
	audits := NewAuditLogRepository(db)

	// ==================== Credentials ====================

	t.Run("credential lookup is case insensitive", func(t *testing.T) {
		seeded := seedCredential(t, creds, "Case@Example.com")

		got, err := creds.GetByEmail(ctx, "CASE@example.COM")
		require.NoError(t, err)
		assert.Equal(t, seeded.UserID, got.UserID)
		assert.False(t, got.TOTPEnabled)
		assert.Empty(t, got.BackupCodes)

		_, err = creds.GetByEmail(ctx, "missing@example.com")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("credential patch round trip", func(t *testing.T) {
		seeded := seedCredential(t, creds, "patch@example.com")

		secret := "JBSWY3DPEHPK3PXP"
		enabled := true
		now := time.Now().UTC().Truncate(time.Second)
		codes := []string{"aa", "bb"}

		require.NoError(t, creds.Update(ctx, seeded.UserID, models.CredentialPatch{
			TOTPSecret:     &secret,
			TOTPEnabled:    &enabled,
			TOTPVerifiedAt: &now,
			BackupCodes:    &codes,
		}))

		got, err := creds.GetByID(ctx, seeded.UserID)
		require.NoError(t, err)
		require.NotNil(t, got.TOTPSecret)
		assert.Equal(t, secret, *got.TOTPSecret)
		assert.True(t, got.TOTPEnabled)
		require.NotNil(t, got.TOTPVerifiedAt)
		assert.True(t, now.Equal(got.TOTPVerifiedAt.UTC()))
		assert.Equal(t, codes, got.BackupCodes)

		disabled := false
		empty := []string{}
		require.NoError(t, creds.Update(ctx, seeded.UserID, models.CredentialPatch{
			ClearTOTP:   true,
			TOTPEnabled: &disabled,
			BackupCodes: &empty,
		}))

		got, err = creds.GetByID(ctx, seeded.UserID)
		require.NoError(t, err)
		assert.Nil(t, got.TOTPSecret)
		assert.Nil(t, got.TOTPVerifiedAt)
		assert.False(t, got.TOTPEnabled)
		assert.Empty(t, got.BackupCodes)
	})

	t.Run("credential patch on missing user", func(t *testing.T) {
		enabled := true
		err := creds.Update(ctx, "00000000-0000-0000-0000-000000000000", models.CredentialPatch{TOTPEnabled: &enabled})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("backup code is consumed exactly once", func(t *testing.T) {
		seeded := seedCredential(t, creds, "backup@example.com")
		codes := []string{"hash-a", "hash-b", "hash-c"}
		require.NoError(t, creds.Update(ctx, seeded.UserID, models.CredentialPatch{BackupCodes: &codes}))

		const callers = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				remaining, err := creds.ConsumeBackupCode(ctx, seeded.UserID, "hash-b")
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
					assert.Equal(t, 2, remaining)
					return
				}
				assert.True(t, errors.Is(err, models.ErrNotFound))
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, wins)

		// distinct codes spent concurrently both disappear
		wg.Add(2)
		for _, hash := range []string{"hash-a", "hash-c"} {
			go func() {
				defer wg.Done()
				_, err := creds.ConsumeBackupCode(ctx, seeded.UserID, hash)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := creds.GetByID(ctx, seeded.UserID)
		require.NoError(t, err)
		assert.Empty(t, got.BackupCodes)
	})

	t.Run("totp step is claimed once and only forward", func(t *testing.T) {
		seeded := seedCredential(t, creds, "step@example.com")

		ok, err := creds.ClaimTOTPStep(ctx, seeded.UserID, 100)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = creds.ClaimTOTPStep(ctx, seeded.UserID, 100)
		require.NoError(t, err)
		assert.False(t, ok, "same step replayed")

		ok, err = creds.ClaimTOTPStep(ctx, seeded.UserID, 99)
		require.NoError(t, err)
		assert.False(t, ok, "older step")

		ok, err = creds.ClaimTOTPStep(ctx, seeded.UserID, 101)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := creds.GetByID(ctx, seeded.UserID)
		require.NoError(t, err)
		require.NotNil(t, got.TOTPLastStep)
		assert.Equal(t, int64(101), *got.TOTPLastStep)

		require.NoError(t, creds.Update(ctx, seeded.UserID, models.CredentialPatch{ClearTOTP: true}))
		got, err = creds.GetByID(ctx, seeded.UserID)
		require.NoError(t, err)
		assert.Nil(t, got.TOTPLastStep)
	})

	t.Run("password hash patch", func(t *testing.T) {
		seeded := seedCredential(t, creds, "password@example.com")
		hash := "$2a$12$newnewnewnewnewnewnewuS0m3H4sh"

		require.NoError(t, creds.Update(ctx, seeded.UserID, models.CredentialPatch{PasswordHash: &hash}))

		got, err := creds.GetByID(ctx, seeded.UserID)
		require.NoError(t, err)
		assert.Equal(t, hash, got.PasswordHash)
	})

	// ==================== Refresh tokens ====================

	t.Run("refresh token deletes exactly once", func(t *testing.T) {
		seeded := seedCredential(t, creds, "rotate@example.com")
		require.NoError(t, tokens.Create(ctx, seeded.UserID, "hash-once", time.Now().Add(time.Hour)))

		const callers = 8
		var wg sync.WaitGroup
		var mu sync.Mutex
		wins := 0
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := tokens.DeleteByHash(ctx, "hash-once")
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
					return
				}
				assert.True(t, errors.Is(err, models.ErrNotFound))
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
	})

	t.Run("refresh token bulk deletes", func(t *testing.T) {
		seeded := seedCredential(t, creds, "bulk@example.com")
		require.NoError(t, tokens.Create(ctx, seeded.UserID, "hash-a", time.Now().Add(time.Hour)))
		require.NoError(t, tokens.Create(ctx, seeded.UserID, "hash-b", time.Now().Add(-time.Hour)))

		removed, err := tokens.DeleteExpired(ctx, time.Now())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, removed, int64(1))

		removed, err = tokens.DeleteByUserID(ctx, seeded.UserID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), removed)
	})

	// ==================== Audit logs ====================

	t.Run("audit log create and list", func(t *testing.T) {
		seeded := seedCredential(t, creds, "audit@example.com")
		ip := "203.0.113.7"

		entry := &models.AuditLog{
			Action:     models.AuditActionAccountLocked,
			EntityType: models.AuditEntityAuth,
			EntityID:   seeded.UserID,
			UserID:     &seeded.UserID,
			Changes:    models.AuditChanges{"reason": "brute_force_protection"},
			IPAddress:  &ip,
		}
		require.NoError(t, audits.Create(ctx, entry))
		assert.NotEmpty(t, entry.ID)

		logs, err := audits.ListByEntity(ctx, models.AuditEntityAuth, seeded.UserID, 10)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		assert.Equal(t, "brute_force_protection", logs[0].Changes["reason"])
	})
}
