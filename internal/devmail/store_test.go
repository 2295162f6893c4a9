package devmail

import (
	"context"
	"errors"
	"testing"
	"time"

	"storefront/backend/internal/notification"
)

func TestMemoryStore_PutGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Put(ctx, notification.Message{To: "Ada@X.com", Kind: notification.KindVerification, Body: "first"}, time.Now().Add(time.Minute))
	s.Put(ctx, notification.Message{To: "ada@x.com", Kind: notification.KindVerification, Body: "second"}, time.Now().Add(time.Minute))

	m, ok := s.Get(ctx, "ada@x.com", notification.KindVerification)
	if !ok || m.Body != "second" {
		t.Errorf("Get = %+v, %v; want latest message", m, ok)
	}
	if _, ok := s.Get(ctx, "ada@x.com", notification.KindPasswordReset); ok {
		t.Error("other kinds must not match")
	}
}

func TestMemoryStore_Expired(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.nowF = func() time.Time { return now }
	ctx := context.Background()
	s.Put(ctx, notification.Message{To: "a@x.com", Kind: notification.KindVerificationCode}, now.Add(time.Minute))

	now = now.Add(2 * time.Minute)
	if _, ok := s.Get(ctx, "a@x.com", notification.KindVerificationCode); ok {
		t.Error("expired message returned")
	}
	if len(s.m) != 0 {
		t.Error("expired entry not evicted")
	}
}

type failingMailer struct{ calls int }

func (f *failingMailer) Send(context.Context, notification.Message) error {
	f.calls++
	return errors.New("smtp down")
}

func TestRecorder_CapturesThenForwards(t *testing.T) {
	store := NewMemoryStore()
	next := &failingMailer{}
	r := NewRecorder(next, store, 0)

	err := r.Send(context.Background(), notification.Message{To: "a@x.com", Kind: notification.KindPasswordReset, Body: "reset"})
	if err == nil {
		t.Error("expected the wrapped mailer's error")
	}
	if next.calls != 1 {
		t.Errorf("wrapped mailer called %d times", next.calls)
	}
	if m, ok := store.Get(context.Background(), "a@x.com", notification.KindPasswordReset); !ok || m.Body != "reset" {
		t.Error("message not captured")
	}
}

func TestRecorder_NilNext(t *testing.T) {
	r := NewRecorder(nil, NewMemoryStore(), time.Minute)
	if err := r.Send(context.Background(), notification.Message{To: "a@x.com"}); err != nil {
		t.Errorf("Send: %v", err)
	}
}
