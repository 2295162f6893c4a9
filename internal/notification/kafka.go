package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"storefront/backend/internal/platform/logging"
)

const writeTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaQueue implements Mailer by enqueueing messages on a Kafka topic for cmd/worker.
type KafkaQueue struct {
	writer messageWriter
}

// NewKafkaQueue creates a queue that writes mail jobs to topic. brokers and topic must be non-empty.
// Call Close when shutting down.
func NewKafkaQueue(brokers []string, topic string) (*KafkaQueue, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, errors.New("notification: kafka brokers and topic are required")
	}
	return &KafkaQueue{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}, nil
}

// Send serializes m as JSON keyed by recipient, so mail for one address stays ordered.
func (q *KafkaQueue) Send(ctx context.Context, m Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := q.writer.WriteMessages(writeCtx, kafka.Message{Key: []byte(m.To), Value: payload}); err != nil {
		return fmt.Errorf("kafka enqueue: %w", err)
	}
	return nil
}

// Close closes the Kafka writer. Safe to call on a nil queue.
func (q *KafkaQueue) Close() error {
	if q == nil || q.writer == nil {
		return nil
	}
	return q.writer.Close()
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer drains the mail queue and delivers each job with a Mailer (SMTP in production).
type Consumer struct {
	reader      messageReader
	mailer      Mailer
	logger      *zap.Logger
	sendTimeout time.Duration
}

// NewConsumer returns a Consumer reading topic as part of groupID.
func NewConsumer(brokers []string, topic, groupID string, mailer Mailer, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
		MaxWait:  1 * time.Second,
	})
	return newConsumer(reader, mailer, logger)
}

func newConsumer(r messageReader, mailer Mailer, logger *zap.Logger) *Consumer {
	return &Consumer{reader: r, mailer: mailer, logger: logging.OrNop(logger).Named("mail-consumer"), sendTimeout: 10 * time.Second}
}

// Run consumes until ctx is cancelled. A job is committed after one delivery attempt whether
// or not it succeeded; malformed payloads are logged and skipped.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("kafka fetch failed", zap.Error(err))
			continue
		}
		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Warn("kafka commit failed", zap.Error(err), zap.Int64("offset", msg.Offset))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	var m Message
	if err := json.Unmarshal(msg.Value, &m); err != nil || m.To == "" {
		c.logger.Error("dropping malformed mail job", zap.Int64("offset", msg.Offset), zap.Error(err))
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	if err := c.mailer.Send(sendCtx, m); err != nil {
		c.logger.Error("mail delivery failed",
			zap.String("kind", string(m.Kind)), zap.String("account_id", m.AccountID), zap.Error(err))
		return
	}
	c.logger.Info("mail delivered", zap.String("kind", string(m.Kind)), zap.String("account_id", m.AccountID))
}

// Close closes the underlying reader.
func (c *Consumer) Close() error { return c.reader.Close() }
