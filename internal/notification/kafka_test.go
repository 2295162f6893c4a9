package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/smtp"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testNow = time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("write without deadline")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaQueue_Send(t *testing.T) {
	w := &fakeWriter{}
	q := &KafkaQueue{writer: w}

	require.NoError(t, q.Send(context.Background(), Message{Kind: KindVerification, To: "a@x.com", Subject: "s", Body: "b"}))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "a@x.com", string(w.msgs[0].Key))
	var got Message
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, KindVerification, got.Kind)

	w.err = errors.New("broker down")
	assert.Error(t, q.Send(context.Background(), Message{To: "a@x.com"}))
}

func TestNewKafkaQueue_RequiresConfig(t *testing.T) {
	_, err := NewKafkaQueue(nil, "topic")
	assert.Error(t, err)
	var q *KafkaQueue
	assert.NoError(t, q.Close())
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, context.Canceled
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumer_DeliversAndCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	good, _ := json.Marshal(Message{Kind: KindPasswordReset, AccountID: "acc-1", To: "a@x.com", Subject: "s", Body: "b"})
	r := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		{Offset: 1, Value: good},
		{Offset: 2, Value: []byte("not json")},
		{Offset: 3, Value: good},
	}}
	mailer := &recordingMailer{}
	core, logs := observer.New(zap.InfoLevel)
	c := newConsumer(r, mailer, zap.New(core))

	require.NoError(t, c.Run(ctx))
	assert.Len(t, mailer.sent, 2)
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
	assert.Equal(t, 1, logs.FilterMessage("dropping malformed mail job").Len())
}

func TestConsumer_DeliveryFailureIsLogged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	good, _ := json.Marshal(Message{Kind: KindVerification, To: "a@x.com"})
	r := &fakeReader{cancel: cancel, msgs: []kafka.Message{{Offset: 7, Value: good}}}
	core, logs := observer.New(zap.InfoLevel)
	c := newConsumer(r, &recordingMailer{err: errors.New("smtp down")}, zap.New(core))

	require.NoError(t, c.Run(ctx))
	assert.Equal(t, []int64{7}, r.committed)
	assert.Equal(t, 1, logs.FilterMessage("mail delivery failed").Len())
}

func TestSMTPMailer_Send(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotAuth smtp.Auth
	)
	m := NewSMTPMailer(SMTPConfig{Host: "mail.local", Port: 587, Username: "u", Password: "p", From: "shop@x.com"})
	m.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotAuth = addr, to, a
		return nil
	}

	require.NoError(t, m.Send(context.Background(), Message{To: "a@x.com", Subject: "s", Body: "b"}))
	assert.Equal(t, "mail.local:587", gotAddr)
	assert.Equal(t, []string{"a@x.com"}, gotTo)
	assert.NotNil(t, gotAuth)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, Message{To: "a@x.com"}), context.Canceled)
}

func TestLogMailer_DoesNotLogBody(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := NewLogMailer(zap.New(core))

	require.NoError(t, l.Send(context.Background(), Message{Kind: KindPasswordReset, To: "a@x.com", Body: "secret-token"}))
	require.Equal(t, 1, logs.Len())
	for _, f := range logs.All()[0].Context {
		assert.NotContains(t, f.String, "secret-token")
	}
}
