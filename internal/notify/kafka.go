// internal/notify/kafka.go
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

// KafkaNotifier publishes engine events to a Kafka topic, keyed by session
// id so that all events of one session land on the same partition. It uses
// an async producer: Notify enqueues and returns immediately, delivery
// errors are drained to the logger.
type KafkaNotifier struct {
	producer sarama.AsyncProducer
	topic    string
	logger   *slog.Logger
}

// NewKafkaNotifier connects an async producer to the given brokers.
func NewKafkaNotifier(brokers []string, topic string, logger *slog.Logger) (*KafkaNotifier, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	n := &KafkaNotifier{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}

	go func() {
		for prodErr := range producer.Errors() {
			n.logger.Error("failed to deliver session event", "topic", topic, "error", prodErr.Err)
		}
	}()

	return n, nil
}

// Notify enqueues the event for publication. If the producer's buffer is
// full the event is dropped rather than blocking the engine.
func (n *KafkaNotifier) Notify(ctx context.Context, event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("failed to marshal session event", "type", event.Type, "error", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(event.SessionID),
		Value: sarama.ByteEncoder(value),
	}

	select {
	case n.producer.Input() <- msg:
	default:
		n.logger.Warn("dropping session event, producer buffer full", "type", event.Type, "session_id", event.SessionID)
	}
}

// Close shuts the producer down, flushing buffered events.
func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}
