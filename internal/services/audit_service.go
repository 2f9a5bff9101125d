package services

import (
	"context"
	"log/slog"

	"github.com/scamnemesis/authcore/internal/models"
	pkglogger "github.com/scamnemesis/authcore/pkg/logger"
)

// AuditLogRepository defines the interface for audit log persistence
type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*models.AuditLog, error)
}

// AuditPublisher streams audit entries to an external consumer
type AuditPublisher interface {
	Publish(ctx context.Context, entry models.AuditLog)
}

// AuditSink receives security events. Recording never fails the caller.
type AuditSink interface {
	Record(ctx context.Context, entry models.AuditLog)
}

// AuditService handles audit logging with dual-write pattern (slog + database),
// optionally fanning out to a publisher
type AuditService struct {
	repo        AuditLogRepository
	auditLogger *pkglogger.AuditLogger
	publisher   AuditPublisher
	logger      *slog.Logger
}

// NewAuditService creates a new AuditService. publisher may be nil.
func NewAuditService(repo AuditLogRepository, publisher AuditPublisher, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:        repo,
		auditLogger: pkglogger.NewAuditLogger(logger),
		publisher:   publisher,
		logger:      logger,
	}
}

// Record logs entry, persists it and publishes it. Failures are logged and swallowed.
func (s *AuditService) Record(ctx context.Context, entry models.AuditLog) {
	event := pkglogger.AuditEvent{
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Changes:    entry.Changes,
	}
	if entry.UserID != nil {
		event.UserID = *entry.UserID
	}
	if entry.IPAddress != nil {
		event.IPAddress = *entry.IPAddress
	}

	// Dual-write: immediate slog output
	s.auditLogger.Log(ctx, event)

	if s.repo != nil {
		if err := s.repo.Create(ctx, &entry); err != nil {
			// Non-critical: don't fail the authentication if audit logging fails
			s.logger.ErrorContext(ctx, "failed to persist audit log",
				slog.String("action", entry.Action),
				slog.Any("error", err),
			)
		}
	}

	if s.publisher != nil {
		s.publisher.Publish(ctx, entry)
	}
}

// RecentForEntity returns the latest entries recorded against an entity
func (s *AuditService) RecentForEntity(ctx context.Context, entityType, entityID string, limit int) ([]*models.AuditLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.ListByEntity(ctx, entityType, entityID, limit)
}

// newAuditEntry builds an entry; userID and ip are stored as NULL when empty
func newAuditEntry(action, entityType, entityID, userID, ip string, changes models.AuditChanges) models.AuditLog {
	entry := models.AuditLog{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Changes:    changes,
	}
	if userID != "" {
		entry.UserID = &userID
	}
	if ip != "" {
		entry.IPAddress = &ip
	}
	return entry
}
