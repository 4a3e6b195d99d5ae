// Package events emits appointment lifecycle events to Kafka. Publishing is
// best-effort: a lost event never fails the operation that produced it.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/mtorres-dev/apptsync/libs/kafkax"
)

const (
	TypeBooked        = "appointments.booked.v1"
	TypeCanceled      = "appointments.canceled.v1"
	TypeSyncCompleted = "appointments.sync.completed.v1"
)

type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewPublisher returns a disabled publisher when no brokers are configured.
func NewPublisher(brokers string, logger *slog.Logger) *Publisher {
	list := kafkax.SplitBrokers(brokers)
	if len(list) == 0 {
		logger.Warn("event publisher disabled (no kafka brokers configured)")
		return &Publisher{logger: logger}
	}
	return &Publisher{
		writer: kafka.NewWriter(kafka.WriterConfig{
			Brokers:      list,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
		}),
		logger: logger,
	}
}

func (p *Publisher) Publish(ctx context.Context, eventType, key string, payload any) {
	if p == nil || p.writer == nil {
		return
	}
	value, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("event payload marshal failed", "type", eventType, "err", err)
		return
	}
	msg := kafka.Message{
		Topic: eventType,
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(uuid.NewString())},
			{Key: "event_type", Value: []byte(eventType)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("event publish failed", "type", eventType, "err", err)
	}
}

func (p *Publisher) Close() {
	if p != nil && p.writer != nil {
		_ = p.writer.Close()
	}
}
