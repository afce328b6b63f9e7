// Package events publishes row-change notifications to the change topic the
// subscription feeds consume. The remote adapter emits one event per
// successful write; the payload is the post-write camelCase snapshot of the
// row so subscribers can filter without a read-back.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/tankerflow/booking-engine/internal/realtime"
)

// ChangePublisher writes change events to Kafka. A nil *ChangePublisher is a
// valid no-op publisher, so adapters can run without a change feed wired.
type ChangePublisher struct {
	writer *kafkago.Writer
	logger *zap.Logger
}

// NewChangePublisher creates a publisher for the given brokers and topic.
func NewChangePublisher(brokers []string, topic string, logger *zap.Logger) *ChangePublisher {
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &ChangePublisher{writer: writer, logger: logger}
}

// Publish emits one change event keyed by record id, so changes to the same
// row stay ordered within their partition. Publish failures are logged, not
// returned: the write that triggered the event has already committed and
// must not be rolled back over a notification problem.
func (p *ChangePublisher) Publish(ctx context.Context, table string, eventType realtime.EventType, record map[string]any) {
	if p == nil {
		return
	}

	ev := realtime.Event{Table: table, Type: eventType, Record: record}
	value, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to marshal change event",
			zap.String("table", table),
			zap.Error(err),
		)
		return
	}

	key, _ := record["id"].(string)
	msg := kafkago.Message{Key: []byte(key), Value: value}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish change event",
			zap.String("table", table),
			zap.String("type", string(eventType)),
			zap.Error(err),
		)
	}
}

// Close closes the underlying Kafka writer.
func (p *ChangePublisher) Close() error {
	if p == nil {
		return nil
	}
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close change publisher: %w", err)
	}
	return nil
}
