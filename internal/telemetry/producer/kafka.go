// Package producer publishes security events to Kafka.
package producer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"commerce-auth/backend/internal/telemetry"
)

const writeTimeout = 5 * time.Second

// Producer emits security events and owns the underlying connection.
type Producer interface {
	telemetry.EventEmitter
	// Close releases the writer. Safe to call if already closed.
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer implements Producer using segmentio/kafka-go.
type KafkaProducer struct {
	writer messageWriter
	topic  string
	logger *zap.Logger
}

// NewKafkaProducer creates a producer writing events to topic. It returns nil when brokers or topic
// are empty so callers can leave Kafka unconfigured. Call Close when shutting down.
func NewKafkaProducer(brokers []string, topic string, logger *zap.Logger) *KafkaProducer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaProducer(writer, topic, logger)
}

func newKafkaProducer(w messageWriter, topic string, logger *zap.Logger) *KafkaProducer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaProducer{writer: w, topic: topic, logger: logger}
}

// Emit writes the event as JSON keyed by subject id, so one principal's events stay ordered on a partition.
func (p *KafkaProducer) Emit(ctx context.Context, event *telemetry.Event) error {
	if p == nil || p.writer == nil || event == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	msg := kafka.Message{
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if event.SubjectID != "" {
		msg.Key = []byte(event.SubjectID)
	}
	if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
		p.logger.Warn("kafka emit failed", zap.String("topic", p.topic), zap.String("event_type", event.Type), zap.Error(err))
		return err
	}
	return nil
}

// Close closes the Kafka writer.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
