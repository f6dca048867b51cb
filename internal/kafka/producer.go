package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const producerName = "telegram-marketing-backend"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes JSON messages to one topic
type Producer struct {
	writer messageWriter
	topic  string
	logger *observability.Logger
}

// ProducerConfig holds configuration for the Kafka producer
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// NewProducer creates a synchronous producer with hash partitioning by key
func NewProducer(config ProducerConfig, logger *observability.Logger) *Producer {
	batchTimeout := config.BatchTimeout
	if batchTimeout == 0 {
		batchTimeout = 10 * time.Millisecond
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{writer: writer, topic: config.Topic, logger: logger}
}

// Message is a message to produce. Value is JSON encoded.
type Message struct {
	Key     string
	Value   interface{}
	Headers map[string]string
}

// Produce sends msg to the configured topic
func (p *Producer) Produce(ctx context.Context, msg Message) error {
	value, err := json.Marshal(msg.Value)
	if err != nil {
		return fmt.Errorf("failed to marshal message value: %w", err)
	}

	headers := make([]kafka.Header, 0, len(msg.Headers)+3)
	for k, v := range msg.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	now := time.Now()
	headers = append(headers,
		kafka.Header{Key: "message_id", Value: []byte(uuid.NewString())},
		kafka.Header{Key: "produced_at", Value: []byte(now.Format(time.RFC3339))},
		kafka.Header{Key: "producer", Value: []byte(producerName)},
	)

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(msg.Key),
		Value:   value,
		Headers: headers,
		Time:    now,
	})
	if err != nil {
		return fmt.Errorf("failed to write message to topic %s: %w", p.topic, err)
	}
	p.logger.Debug(ctx, fmt.Sprintf("produced message to topic %s with key %s", p.topic, msg.Key))
	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}
