// Package handler serves liveness and readiness over HTTP and the standard gRPC health protocol.
package handler

import (
	"context"
	"time"
)

// Pinger checks connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker checks that the policy engine can evaluate (e.g. OPA evaluator).
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// PingFunc adapts a function to Pinger, e.g. func(ctx) error { return rdb.Ping(ctx).Err() }.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

const checkTimeout = 2 * time.Second

// Checker runs the readiness checks. Nil dependencies are skipped.
type Checker struct {
	db     Pinger
	redis  Pinger
	policy PolicyChecker
}

// NewChecker returns a Checker over the database, Redis and the policy engine.
func NewChecker(db, redis Pinger, policy PolicyChecker) *Checker {
	return &Checker{db: db, redis: redis, policy: policy}
}

// Check runs every configured check and returns "ok" or the error text per component,
// and whether all passed.
func (c *Checker) Check(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	results := make(map[string]string, 3)
	healthy := true
	record := func(name string, err error) {
		if err != nil {
			results[name] = err.Error()
			healthy = false
			return
		}
		results[name] = "ok"
	}
	if c.db != nil {
		record("database", c.db.PingContext(ctx))
	}
	if c.redis != nil {
		record("redis", c.redis.PingContext(ctx))
	}
	if c.policy != nil {
		record("policy", c.policy.HealthCheck(ctx))
	}
	return results, healthy
}
