package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaFeed opens channels against the row-change topic the remote adapter
// publishes to. Each channel gets its own consumer group so every channel
// sees the full stream; the descriptor filter narrows it down.
type KafkaFeed struct {
	brokers     []string
	topic       string
	groupPrefix string
	logger      *zap.Logger
}

// NewKafkaFeed creates a KafkaFeed for the given brokers and change topic.
func NewKafkaFeed(brokers []string, topic, groupPrefix string, logger *zap.Logger) *KafkaFeed {
	return &KafkaFeed{
		brokers:     brokers,
		topic:       topic,
		groupPrefix: groupPrefix,
		logger:      logger,
	}
}

// SupportsPush reports that Kafka delivers changes natively.
func (f *KafkaFeed) SupportsPush() bool { return true }

// Open starts a reader goroutine for one channel. Malformed messages are
// logged and skipped, never retried.
func (f *KafkaFeed) Open(desc Descriptor, emit func(Event), onError func(error)) (func() error, error) {
	groupID := fmt.Sprintf("%s-%s-%s", f.groupPrefix, desc.Name, uuid.NewString()[:8])
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  f.brokers,
		GroupID:  groupID,
		Topic:    f.topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				onError(err)
				continue
			}

			var ev Event
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				f.logger.Warn("skipping malformed change event",
					zap.String("channel", desc.Name),
					zap.Error(err),
				)
				continue
			}
			if desc.Matches(ev) {
				emit(ev)
			}
		}
	}()

	return func() error {
		cancel()
		err := reader.Close()
		<-done
		return err
	}, nil
}
