package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/odyssey-erp/commerce-intel/internal/intelligence"
)

// MessageWriter abstracts kafka.Writer so tests can capture messages.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// AlertEvent is the payload published for every prioritized alert.
type AlertEvent struct {
	TenantID      int64                  `json:"tenant_id"`
	AccountID     int64                  `json:"account_id"`
	AccountName   string                 `json:"account_name"`
	PriorityScore float64                `json:"priority_score"`
	Type          intelligence.AlertType `json:"type"`
	Message       string                 `json:"message"`
	Rank          int                    `json:"rank"`
	SweptAt       time.Time              `json:"swept_at"`
}

// AlertPublisher streams sweep results to the alerts topic.
type AlertPublisher struct {
	writer MessageWriter
	logger *slog.Logger
}

// NewAlertPublisher wraps writer. A nil writer yields a publisher that drops
// every batch, which is how deployments without brokers run.
func NewAlertPublisher(writer MessageWriter, logger *slog.Logger) *AlertPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertPublisher{writer: writer, logger: logger}
}

// NewKafkaWriter builds a synchronous writer hashing on the message key so
// every alert for an account lands on the same partition.
// brokers is a comma-separated list of host:port.
func NewKafkaWriter(brokers, topic string) *kafka.Writer {
	var addrs []string
	for _, a := range strings.Split(brokers, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	if len(addrs) == 0 || topic == "" {
		return nil
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}
}

// NewKafkaPublisher connects a publisher to brokers, falling back to the
// dropping publisher when no brokers or topic are configured.
func NewKafkaPublisher(brokers, topic string, logger *slog.Logger) *AlertPublisher {
	w := NewKafkaWriter(brokers, topic)
	if w == nil {
		return NewAlertPublisher(nil, logger)
	}
	return NewAlertPublisher(w, logger)
}

// Close flushes and closes the underlying writer when it supports it.
func (p *AlertPublisher) Close() error {
	if !p.Enabled() {
		return nil
	}
	if c, ok := p.writer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Enabled reports whether publishing reaches a broker.
func (p *AlertPublisher) Enabled() bool {
	return p != nil && p.writer != nil
}

// PublishAlerts writes one message per alert keyed by tenant:account.
func (p *AlertPublisher) PublishAlerts(ctx context.Context, tenantID int64, sweptAt time.Time, alerts []intelligence.Alert) (int, error) {
	if !p.Enabled() || len(alerts) == 0 {
		return 0, nil
	}
	msgs := make([]kafka.Message, 0, len(alerts))
	for i, alert := range alerts {
		payload, err := json.Marshal(AlertEvent{
			TenantID:      tenantID,
			AccountID:     alert.AccountID,
			AccountName:   alert.AccountName,
			PriorityScore: alert.PriorityScore,
			Type:          alert.Type,
			Message:       alert.Message,
			Rank:          i + 1,
			SweptAt:       sweptAt.UTC(),
		})
		if err != nil {
			return 0, fmt.Errorf("events: marshal alert: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(MessageKey(tenantID, alert.AccountID)),
			Value: payload,
			Time:  sweptAt,
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("events: publish alerts: %w", err)
	}
	p.logger.Debug("alerts published", slog.Int64("tenant_id", tenantID), slog.Int("count", len(msgs)))
	return len(msgs), nil
}

// MessageKey is the partition key for an account's alerts.
func MessageKey(tenantID, accountID int64) string {
	return fmt.Sprintf("%d:%d", tenantID, accountID)
}
