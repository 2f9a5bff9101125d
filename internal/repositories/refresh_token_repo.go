package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scamnemesis/authcore/internal/database"
	"github.com/scamnemesis/authcore/internal/models"
)

// RefreshTokenRepository stores hashed refresh tokens
type RefreshTokenRepository struct {
	pool *pgxpool.Pool
}

func NewRefreshTokenRepository(db *database.DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{pool: db.Pool}
}

func (r *RefreshTokenRepository) Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	query := `INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES ($1, $2, $3)`

	if _, err := r.pool.Exec(ctx, query, userID, tokenHash, expiresAt); err != nil {
		return fmt.Errorf("failed to store refresh token: %w", database.MapPostgresError(err))
	}
	return nil
}

// DeleteByHash removes the token and returns the deleted row. Only one caller can
// delete a given row, so a concurrent replay gets models.ErrNotFound.
func (r *RefreshTokenRepository) DeleteByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `
		DELETE FROM refresh_tokens WHERE token_hash = $1
		RETURNING id, user_id, token_hash, expires_at, created_at
	`

	var token models.RefreshToken
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&token.ID, &token.UserID, &token.TokenHash, &token.ExpiresAt, &token.CreatedAt,
	)
	if err != nil {
		mapped := database.MapPostgresError(err)
		if errors.Is(mapped, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete refresh token: %w", mapped)
	}

	return &token, nil
}

func (r *RefreshTokenRepository) DeleteByUserID(ctx context.Context, userID string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired removes tokens that expired before now
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
