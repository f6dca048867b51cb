package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/internal/services"
	"github.com/segmentio/kafka-go"
)

// EnvelopeHandler applies one inbound event
type EnvelopeHandler interface {
	Handle(ctx context.Context, env services.Envelope) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds configuration for the inbound event consumer
type ConsumerConfig struct {
	Brokers      []string
	Topic        string
	GroupID      string
	MaxAttempts  int
	RetryBackoff time.Duration
}

// Consumer reads event envelopes from a topic and hands them to the ingest service.
// Rejected events and events that keep failing go to the dead letter topic.
type Consumer struct {
	reader      messageReader
	topic       string
	handler     EnvelopeHandler
	dlq         *Producer
	maxAttempts int
	backoff     time.Duration
	logger      *observability.Logger
}

// NewConsumer creates a new consumer group reader. dlq may be nil.
func NewConsumer(config ConsumerConfig, handler EnvelopeHandler, dlq *Producer, logger *observability.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           config.Brokers,
		Topic:             config.Topic,
		GroupID:           config.GroupID,
		MinBytes:          1,
		MaxBytes:          10e6,
		MaxWait:           time.Second,
		StartOffset:       kafka.FirstOffset,
		SessionTimeout:    30 * time.Second,
		HeartbeatInterval: 3 * time.Second,
	})
	return newConsumer(reader, config, handler, dlq, logger)
}

func newConsumer(reader messageReader, config ConsumerConfig, handler EnvelopeHandler, dlq *Producer, logger *observability.Logger) *Consumer {
	maxAttempts := config.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoff := config.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Consumer{
		reader:      reader,
		topic:       config.Topic,
		handler:     handler,
		dlq:         dlq,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		logger:      logger,
	}
}

// Start consumes until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info(ctx, fmt.Sprintf("starting consumer for topic %s", c.topic))
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info(context.Background(), "consumer stopped")
				return nil
			}
			c.logger.Error(ctx, "error fetching message", err)
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}

		if err := c.process(ctx, msg); err != nil {
			// shutting down mid-retry: leave the offset uncommitted so the message is redelivered
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error(ctx, "failed to commit offset", err)
		}
	}
}

// process handles msg. It only returns an error when ctx ended before the
// message was settled.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "topic", Value: msg.Topic},
		observability.Field{Key: "partition", Value: msg.Partition},
		observability.Field{Key: "offset", Value: msg.Offset},
	)

	var env services.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		c.deadLetter(ctx, msg, fmt.Errorf("%w: %v", services.ErrInvalidEvent, err), 0)
		return nil
	}
	ctx = observability.WithFields(ctx,
		observability.Field{Key: "event_type", Value: env.Type},
		observability.Field{Key: "event_id", Value: env.ID},
	)

	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		start := time.Now()
		err = c.handler.Handle(ctx, env)
		if err == nil {
			c.logger.Debug(ctx, fmt.Sprintf("message processed in %v", time.Since(start)))
			return nil
		}
		if services.KindOf(err) != services.KindInternal {
			c.logger.Warn(ctx, fmt.Sprintf("event rejected: %v", err))
			c.deadLetter(ctx, msg, err, attempt)
			return nil
		}
		c.logger.Error(ctx, fmt.Sprintf("handler failed, attempt %d of %d", attempt, c.maxAttempts), err)
		if attempt < c.maxAttempts && !sleep(ctx, c.backoff*time.Duration(attempt)) {
			return ctx.Err()
		}
	}
	c.deadLetter(ctx, msg, err, c.maxAttempts)
	return nil
}

// deadLetter forwards msg with the failure attached
func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error, attempts int) {
	if c.dlq == nil {
		c.logger.Warn(ctx, "no dead letter topic configured, dropping message")
		return
	}
	err := c.dlq.Produce(ctx, Message{
		Key:   string(msg.Key),
		Value: json.RawMessage(rawOrString(msg.Value)),
		Headers: map[string]string{
			"original_topic":     msg.Topic,
			"original_partition": strconv.Itoa(msg.Partition),
			"original_offset":    strconv.FormatInt(msg.Offset, 10),
			"error":              cause.Error(),
			"attempts":           strconv.Itoa(attempts),
		},
	})
	if err != nil {
		c.logger.Error(ctx, "failed to send message to DLQ", err)
	}
}

// Close closes the reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}

// rawOrString keeps valid JSON as is and quotes anything else
func rawOrString(value []byte) []byte {
	if json.Valid(value) {
		return value
	}
	quoted, _ := json.Marshal(string(value))
	return quoted
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
