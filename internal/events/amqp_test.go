package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	declares   int
	publishErr error
	published  []published
	closed     bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.declares++
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{exchange, key, msg})
	return nil
}

func (c *fakeChannel) Close() error { c.closed = true; return nil }

func TestAMQPPublisher_Publish(t *testing.T) {
	ch := &fakeChannel{}
	p := newAMQPPublisher(ch, nil, "storefront.accounts", nil)

	require.NoError(t, p.Publish(context.Background(), AccountEvent{Type: AccountRegistered, AccountID: "acc-1"}))
	require.NoError(t, p.Publish(context.Background(), AccountEvent{Type: AccountVerified, AccountID: "acc-1"}))

	assert.Equal(t, 1, ch.declares, "exchange is declared once")
	require.Len(t, ch.published, 2)
	first := ch.published[0]
	assert.Equal(t, "storefront.accounts", first.exchange)
	assert.Equal(t, "account.registered", first.key)
	assert.Equal(t, amqp.Persistent, first.msg.DeliveryMode)

	var body AccountEvent
	require.NoError(t, json.Unmarshal(first.msg.Body, &body))
	assert.Equal(t, "acc-1", body.AccountID)
	assert.NotEmpty(t, body.ID)
	assert.False(t, body.OccurredAt.IsZero())
}

func TestAMQPPublisher_ReopensChannelOnFailure(t *testing.T) {
	broken := &fakeChannel{publishErr: errors.New("channel closed")}
	fresh := &fakeChannel{}
	p := newAMQPPublisher(broken, func() (amqpChannel, error) { return fresh, nil }, "x", nil)

	require.NoError(t, p.Publish(context.Background(), AccountEvent{Type: AccountLocked, AccountID: "acc-1"}))
	assert.True(t, broken.closed)
	assert.Len(t, fresh.published, 1)
	assert.Equal(t, 1, fresh.declares)
}

func TestAMQPPublisher_FailsWhenReopenFails(t *testing.T) {
	broken := &fakeChannel{publishErr: errors.New("channel closed")}
	p := newAMQPPublisher(broken, func() (amqpChannel, error) { return nil, errors.New("conn closed") }, "x", nil)

	err := p.Publish(context.Background(), AccountEvent{Type: AccountLocked})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conn closed")
}

func TestNewPublisher_FallsBackToLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewPublisher("", "x", zap.New(core))
	_, ok := p.(*LogPublisher)
	require.True(t, ok)

	require.NoError(t, p.Publish(context.Background(), AccountEvent{Type: AccountLoggedIn, AccountID: "acc-9"}))
	assert.Equal(t, 1, logs.FilterMessage("account event").Len())

	p = NewPublisher("http://not-amqp", "x", zap.New(core))
	_, ok = p.(*LogPublisher)
	assert.True(t, ok)
}
