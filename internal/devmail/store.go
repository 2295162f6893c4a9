// Package devmail keeps the most recent outbound emails in memory so local development can
// read verification links and codes without an SMTP server (GET /dev/mail). Never enabled in
// production.
package devmail

import (
	"context"
	"strings"
	"sync"
	"time"

	"storefront/backend/internal/notification"
)

// DefaultTTL is how long a captured message stays readable.
const DefaultTTL = 30 * time.Minute

// Store holds the latest message per recipient and kind.
type Store interface {
	// Put records m until expiresAt, replacing any earlier message of the same kind to the same address.
	Put(ctx context.Context, m notification.Message, expiresAt time.Time)
	// Get returns the latest unexpired message of kind sent to email.
	Get(ctx context.Context, email string, kind notification.Kind) (notification.Message, bool)
}

type entry struct {
	msg       notification.Message
	expiresAt time.Time
}

// MemoryStore is an in-memory Store.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

func key(email string, kind notification.Kind) string {
	return strings.ToLower(strings.TrimSpace(email)) + "|" + string(kind)
}

func (s *MemoryStore) Put(ctx context.Context, m notification.Message, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key(m.To, m.Kind)] = entry{msg: m, expiresAt: expiresAt}
}

func (s *MemoryStore) Get(ctx context.Context, email string, kind notification.Kind) (notification.Message, bool) {
	k := key(email, kind)
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return notification.Message{}, false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, k)
		s.mu.Unlock()
		return notification.Message{}, false
	}
	return e.msg, true
}

// Recorder is a notification.Mailer that captures every message in a Store before handing it
// to the wrapped Mailer.
type Recorder struct {
	next  notification.Mailer
	store Store
	ttl   time.Duration
	nowF  func() time.Time
}

// NewRecorder wraps next. next may be nil to capture only.
func NewRecorder(next notification.Mailer, store Store, ttl time.Duration) *Recorder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Recorder{next: next, store: store, ttl: ttl, nowF: time.Now}
}

func (r *Recorder) Send(ctx context.Context, m notification.Message) error {
	r.store.Put(ctx, m, r.nowF().UTC().Add(r.ttl))
	if r.next == nil {
		return nil
	}
	return r.next.Send(ctx, m)
}
