package verification

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront/backend/internal/platform/autherr"
	"storefront/backend/internal/security"
)

const (
	codeKeyPrefix   = "verify:code:"
	defaultMaxTries = 5
	maxTxRetries    = 4
)

// CodeStore keeps one pending numeric verification code per account in Redis.
// The record is a hash {hash, attempts} that expires with the code.
type CodeStore struct {
	rdb      redis.UniversalClient
	ttl      time.Duration
	maxTries int
}

// NewCodeStore returns a CodeStore whose codes live for ttl and allow five wrong tries.
func NewCodeStore(rdb redis.UniversalClient, ttl time.Duration) *CodeStore {
	return &CodeStore{rdb: rdb, ttl: ttl, maxTries: defaultMaxTries}
}

func (s *CodeStore) key(accountID string) string { return codeKeyPrefix + accountID }

// Issue generates a fresh 6-digit code for the account, replacing any pending one.
func (s *CodeStore) Issue(ctx context.Context, accountID string) (string, error) {
	code, err := security.NewNumericCode()
	if err != nil {
		return "", fmt.Errorf("verification: code: %w", err)
	}
	key := s.key(accountID)
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "hash", security.HashToken(code), "attempts", 0)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("verification: code: store: %w", err)
	}
	return code, nil
}

// Check compares code with the pending one. A match deletes the record. A miss counts an
// attempt and the last allowed miss deletes the record. Every failure is
// autherr.ErrTokenInvalidOrExpired.
func (s *CodeStore) Check(ctx context.Context, accountID, code string) error {
	key := s.key(accountID)
	provided := security.HashToken(code)

	for i := 0; i < maxTxRetries; i++ {
		var matched bool
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			rec, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			stored, ok := rec["hash"]
			if !ok {
				return redis.Nil
			}
			if subtle.ConstantTimeCompare([]byte(stored), []byte(provided)) == 1 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				matched = err == nil
				return err
			}
			attempts, _ := strconv.Atoi(rec["attempts"])
			attempts++
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if attempts >= s.maxTries {
					pipe.Del(ctx, key)
				} else {
					pipe.HSet(ctx, key, "attempts", attempts)
				}
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("verification: code: check: %w", err)
		}
		if !matched {
			return autherr.ErrTokenInvalidOrExpired
		}
		return nil
	}
	return autherr.ErrTokenInvalidOrExpired
}
