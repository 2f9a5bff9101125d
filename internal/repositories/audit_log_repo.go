package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/scamnemesis/authcore/internal/database"
	"github.com/scamnemesis/authcore/internal/models"
)

// AuditLogRepository handles audit log data access
type AuditLogRepository struct {
	pool *pgxpool.Pool
}

// NewAuditLogRepository creates a new AuditLogRepository
func NewAuditLogRepository(db *database.DB) *AuditLogRepository {
	return &AuditLogRepository{pool: db.Pool}
}

// Create creates a new audit log entry
func (r *AuditLogRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	changes, err := entry.Changes.Value()
	if err != nil {
		return fmt.Errorf("failed to encode audit changes: %w", err)
	}

	query := `
		INSERT INTO audit_logs (action, entity_type, entity_id, user_id, changes, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`

	err = r.pool.QueryRow(ctx, query,
		entry.Action, entry.EntityType, entry.EntityID, entry.UserID, changes, entry.IPAddress,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", database.MapPostgresError(err))
	}

	return nil
}

// ListByEntity returns the most recent entries for an entity, newest first
func (r *AuditLogRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*models.AuditLog, error) {
	query := `
		SELECT id, action, entity_type, entity_id, user_id, changes, ip_address, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]*models.AuditLog, 0)
	for rows.Next() {
		var entry models.AuditLog
		if err := rows.Scan(
			&entry.ID, &entry.Action, &entry.EntityType, &entry.EntityID,
			&entry.UserID, &entry.Changes, &entry.IPAddress, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log rows: %w", err)
	}

	return logs, nil
}
