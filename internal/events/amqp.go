package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"storefront/backend/internal/platform/logging"
)

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes events to a durable topic exchange, keyed by event type.
type AMQPPublisher struct {
	mu          sync.Mutex
	conn        *amqp.Connection
	channel     amqpChannel
	openChannel func() (amqpChannel, error)
	exchange    string
	declared    bool
	logger      *zap.Logger
}

// NewPublisher dials amqpURL and returns an AMQPPublisher. When amqpURL is empty or RabbitMQ
// is unreachable it returns a LogPublisher so the service still starts.
func NewPublisher(amqpURL, exchange string, logger *zap.Logger) Publisher {
	logger = logging.OrNop(logger)
	if strings.TrimSpace(amqpURL) == "" {
		logger.Info("AMQP_URL not set; account events go to the log")
		return NewLogPublisher(logger)
	}
	p, err := DialPublisher(amqpURL, exchange, logger)
	if err != nil {
		logger.Warn("rabbitmq unavailable; account events go to the log", zap.Error(err))
		return NewLogPublisher(logger)
	}
	return p
}

// DialPublisher connects to RabbitMQ with a bounded dial timeout.
func DialPublisher(amqpURL, exchange string, logger *zap.Logger) (*AMQPPublisher, error) {
	clean, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.DialConfig(clean, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("events: dial: %w", err)
	}
	open := func() (amqpChannel, error) { return conn.Channel() }
	ch, err := open()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("events: channel: %w", err)
	}
	p := newAMQPPublisher(ch, open, exchange, logger)
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch amqpChannel, open func() (amqpChannel, error), exchange string, logger *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		channel:     ch,
		openChannel: open,
		exchange:    exchange,
		logger:      logging.OrNop(logger).Named("events"),
	}
}

// Publish sends e with routing key e.Type. A failed publish reopens the channel and retries once.
func (p *AMQPPublisher) Publish(ctx context.Context, e AccountEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Timestamp:    e.OccurredAt,
		Type:         string(e.Type),
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.publishLocked(ctx, string(e.Type), msg)
	if err == nil {
		return nil
	}
	p.logger.Warn("publish failed; reopening channel", zap.String("type", string(e.Type)), zap.Error(err))
	if rerr := p.reopenLocked(); rerr != nil {
		return fmt.Errorf("events: publish %s: %w", e.Type, errors.Join(err, rerr))
	}
	if err := p.publishLocked(ctx, string(e.Type), msg); err != nil {
		return fmt.Errorf("events: publish %s: %w", e.Type, err)
	}
	return nil
}

func (p *AMQPPublisher) publishLocked(ctx context.Context, key string, msg amqp.Publishing) error {
	if !p.declared {
		if err := p.channel.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
			return err
		}
		p.declared = true
	}
	return p.channel.PublishWithContext(ctx, p.exchange, key, false, false, msg)
}

func (p *AMQPPublisher) reopenLocked() error {
	if p.openChannel == nil {
		return errors.New("no connection")
	}
	ch, err := p.openChannel()
	if err != nil {
		return err
	}
	_ = p.channel.Close()
	p.channel = ch
	p.declared = false
	return nil
}

// Close closes the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("events: parse AMQP_URL: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("events: AMQP_URL scheme must be amqp:// or amqps://")
	}
	return clean, nil
}
