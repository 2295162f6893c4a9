package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront/backend/internal/security"
)

const (
	stateKeyPrefix = "oauth:state:"
	stateTTL       = 5 * time.Minute
)

// ErrInvalidState is returned when the callback state is unknown, expired, already used, or
// was issued for another provider.
var ErrInvalidState = errors.New("oauth: invalid state")

// StateStore keeps one-shot OAuth state values in Redis.
type StateStore struct {
	rdb redis.UniversalClient
}

// NewStateStore returns a StateStore backed by rdb.
func NewStateStore(rdb redis.UniversalClient) *StateStore {
	return &StateStore{rdb: rdb}
}

// New creates and stores a random state bound to provider.
func (s *StateStore) New(ctx context.Context, provider string) (string, error) {
	state, err := security.NewOpaqueToken()
	if err != nil {
		return "", fmt.Errorf("oauth: state: %w", err)
	}
	if err := s.rdb.Set(ctx, stateKeyPrefix+state, provider, stateTTL).Err(); err != nil {
		return "", fmt.Errorf("oauth: state: store: %w", err)
	}
	return state, nil
}

// Consume deletes state and checks that it was issued for provider.
func (s *StateStore) Consume(ctx context.Context, state, provider string) error {
	if state == "" {
		return ErrInvalidState
	}
	got, err := s.rdb.GetDel(ctx, stateKeyPrefix+state).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrInvalidState
		}
		return fmt.Errorf("oauth: state: consume: %w", err)
	}
	if got != provider {
		return ErrInvalidState
	}
	return nil
}
