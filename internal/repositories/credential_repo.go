package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/scamnemesis/authcore/internal/database"
	"github.com/scamnemesis/authcore/internal/models"
)

const credentialColumns = `id, email, password_hash, role, is_active, email_verified,
	totp_secret, totp_enabled, totp_verified_at, backup_codes, totp_last_step, last_login_at, created_at, updated_at`

// CredentialRepository reads and patches the authentication columns of users
type CredentialRepository struct {
	pool *pgxpool.Pool
}

func NewCredentialRepository(db *database.DB) *CredentialRepository {
	return &CredentialRepository{pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both pgx.Row and pgx.Rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCredentialRow(scanner rowScanner) (*models.Credential, error) {
	var cred models.Credential
	var passwordHash *string
	var backupCodes pq.StringArray

	err := scanner.Scan(
		&cred.UserID, &cred.Email, &passwordHash, &cred.Role, &cred.IsActive, &cred.EmailVerified,
		&cred.TOTPSecret, &cred.TOTPEnabled, &cred.TOTPVerifiedAt, &backupCodes, &cred.TOTPLastStep, &cred.LastLoginAt,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if passwordHash != nil {
		cred.PasswordHash = *passwordHash
	}
	cred.BackupCodes = []string(backupCodes)

	return &cred, nil
}

func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM users WHERE id = $1`
	return scanCredentialRow(r.pool.QueryRow(ctx, query, id))
}

// GetByEmail matches case-insensitively
func (r *CredentialRepository) GetByEmail(ctx context.Context, email string) (*models.Credential, error) {
	query := `SELECT ` + credentialColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanCredentialRow(r.pool.QueryRow(ctx, query, strings.TrimSpace(email)))
}

// Create inserts a user row. Used for seeding accounts.
func (r *CredentialRepository) Create(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	var passwordHash *string
	if cred.PasswordHash != "" {
		passwordHash = &cred.PasswordHash
	}

	query := `
		INSERT INTO users (email, password_hash, role, is_active, email_verified)
		VALUES (LOWER($1), $2, $3, $4, $5)
		RETURNING ` + credentialColumns

	created, err := scanCredentialRow(r.pool.QueryRow(ctx, query,
		cred.Email, passwordHash, cred.Role, cred.IsActive, cred.EmailVerified,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return created, nil
}

// Update applies patch to the user row. Returns models.ErrNotFound when no row matched.
func (r *CredentialRepository) Update(ctx context.Context, id string, patch models.CredentialPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	sets := make([]string, 0, 8)
	args := make([]interface{}, 0, 8)
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if patch.PasswordHash != nil {
		add("password_hash", *patch.PasswordHash)
	}
	if patch.ClearTOTP {
		sets = append(sets, "totp_secret = NULL", "totp_verified_at = NULL", "totp_last_step = NULL")
	} else {
		if patch.TOTPSecret != nil {
			add("totp_secret", *patch.TOTPSecret)
		}
		if patch.TOTPVerifiedAt != nil {
			add("totp_verified_at", *patch.TOTPVerifiedAt)
		}
	}
	if patch.TOTPEnabled != nil {
		add("totp_enabled", *patch.TOTPEnabled)
	}
	if patch.BackupCodes != nil {
		add("backup_codes", pq.Array(*patch.BackupCodes))
	}
	if patch.LastLoginAt != nil {
		add("last_login_at", *patch.LastLoginAt)
	}
	add("updated_at", time.Now())

	args = append(args, id)
	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", database.MapPostgresError(err))
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// ConsumeBackupCode removes hash from the user's backup codes in a single
// statement and returns how many remain. Returns models.ErrNotFound when the
// hash is not present, so a code can be spent only once under concurrency.
func (r *CredentialRepository) ConsumeBackupCode(ctx context.Context, id, hash string) (int, error) {
	query := `
		UPDATE users
		SET backup_codes = array_remove(backup_codes, $2), updated_at = NOW()
		WHERE id = $1 AND $2 = ANY(backup_codes)
		RETURNING cardinality(backup_codes)
	`

	var remaining int
	if err := r.pool.QueryRow(ctx, query, id, hash).Scan(&remaining); err != nil {
		mapped := database.MapPostgresError(err)
		if errors.Is(mapped, models.ErrNotFound) {
			return 0, models.ErrNotFound
		}
		return 0, fmt.Errorf("failed to consume backup code: %w", mapped)
	}
	return remaining, nil
}

// ClaimTOTPStep records step as used. It reports false when a code for this
// step or a later one was already accepted.
func (r *CredentialRepository) ClaimTOTPStep(ctx context.Context, id string, step int64) (bool, error) {
	query := `
		UPDATE users
		SET totp_last_step = $2
		WHERE id = $1 AND (totp_last_step IS NULL OR totp_last_step < $2)
	`

	tag, err := r.pool.Exec(ctx, query, id, step)
	if err != nil {
		return false, fmt.Errorf("failed to claim totp step: %w", database.MapPostgresError(err))
	}
	return tag.RowsAffected() == 1, nil
}
