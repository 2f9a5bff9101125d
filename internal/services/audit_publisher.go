package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/scamnemesis/authcore/internal/models"
	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer used by the publisher
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaAuditPublisher writes audit entries to a Kafka topic keyed by entity id
type KafkaAuditPublisher struct {
	l     *slog.Logger
	w     messageWriter
	topic string
}

// AuditEventMessage is the JSON value written to the audit topic
type AuditEventMessage struct {
	Action     string              `json:"action"`
	EntityType string              `json:"entity_type"`
	EntityID   string              `json:"entity_id"`
	UserID     *string             `json:"user_id,omitempty"`
	IPAddress  *string             `json:"ip_address,omitempty"`
	Changes    models.AuditChanges `json:"changes"`
	OccurredAt time.Time           `json:"occurred_at"`
}

func NewKafkaAuditPublisher(l *slog.Logger, brokers []string, topic string) *KafkaAuditPublisher {
	l = l.WithGroup("kafka").With("topic", topic)

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		Async:                  true,
		Logger:                 kafka.LoggerFunc(func(format string, v ...any) { l.Debug(fmt.Sprintf(format, v...)) }),
		ErrorLogger:            kafka.LoggerFunc(func(format string, v ...any) { l.Error(fmt.Sprintf(format, v...)) }),
		AllowAutoTopicCreation: true,
	}

	return &KafkaAuditPublisher{l: l, w: w, topic: topic}
}

// Publish enqueues entry. Errors are logged, never returned.
func (p *KafkaAuditPublisher) Publish(ctx context.Context, entry models.AuditLog) {
	occurredAt := entry.CreatedAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	b, err := json.Marshal(AuditEventMessage{
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		UserID:     entry.UserID,
		IPAddress:  entry.IPAddress,
		Changes:    entry.Changes,
		OccurredAt: occurredAt,
	})
	if err != nil {
		p.l.Error(fmt.Sprintf("marshal audit event: %s", err))
		return
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.EntityType + ":" + entry.EntityID),
		Value: b,
		Topic: p.topic,
	})
	if err != nil {
		p.l.Error(fmt.Sprintf("write kafka message: %s", err))
	}
}

func (p *KafkaAuditPublisher) Close() {
	if err := p.w.Close(); err != nil {
		p.l.Error(fmt.Sprintf("close kafka writer: %s", err))
	}
}
