// Package kafka publishes shard notifications to Kafka topics.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/JakeFAU/quake-catalog-crawler/internal/quake"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces JSON messages. The topic is set per message, so one
// writer serves every topic.
type Publisher struct {
	writer messageWriter
}

// Config lists the brokers to connect to.
type Config struct {
	Brokers []string
}

// New creates a Kafka producer for the configured brokers.
func New(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.Brokers...),
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Publisher{writer: w}, nil
}

func newWithWriter(w messageWriter) *Publisher {
	return &Publisher{writer: w}
}

// Publish serializes payload and writes it synchronously. The returned ID is
// the message key.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("topic is required")
	}
	msg, err := serializeToMessage(topic, payload)
	if err != nil {
		return "", err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("write message: %w", err)
	}
	return string(msg.Key), nil
}

// Close flushes pending writes and releases connections.
func (p *Publisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}

func serializeToMessage(topic string, payload any) (kafkago.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize payload: %w", err)
	}
	msg := kafkago.Message{Topic: topic, Value: data}
	if evt, ok := payload.(quake.ShardWritten); ok {
		msg.Key = []byte(evt.Shard)
		msg.Headers = []kafkago.Header{
			{Key: "period", Value: []byte(evt.Period)},
			{Key: "run_id", Value: []byte(evt.RunID)},
			{Key: "written_at", Value: []byte(evt.WrittenAt.Format(time.RFC3339))},
		}
	}
	return msg, nil
}
