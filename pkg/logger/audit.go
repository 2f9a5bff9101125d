package logger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	Action     string
	EntityType string
	EntityID   string
	UserID     string
	IPAddress  string
	Changes    map[string]interface{}
}

// AuditLogger writes audit events to the structured log
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// Log writes one audit line. Failure and lock events are logged at warn level.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("action", event.Action),
		slog.String("entity_type", event.EntityType),
		slog.String("entity_id", event.EntityID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}

	keys := make([]string, 0, len(event.Changes))
	for key := range event.Changes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		attrs = append(attrs, slog.String("changes."+key, fmt.Sprint(event.Changes[key])))
	}

	al.logger.LogAttrs(ctx, levelFor(event.Action), "audit", attrs...)
}

func levelFor(action string) slog.Level {
	switch action {
	case "LOGIN_FAILED", "LOGIN_2FA_FAILED", "ACCOUNT_LOCKED":
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
