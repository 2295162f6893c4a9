package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"storefront/backend/internal/platform/logging"
)

const capabilitiesQuery = "data.storefront.capabilities.capabilities"

// DefaultPolicy grants capabilities by role and email verification. Ordering, reviewing and
// selling require a verified address; admins hold every capability.
const DefaultPolicy = `package storefront.capabilities

base_actions := {"account:read", "account:update_profile", "account:change_password", "catalog:browse", "cart:manage"}

verified_actions := {"order:place", "order:read", "review:write"}

seller_actions := {"product:create", "product:update", "product:delete", "order:fulfil"}

admin_actions := {"category:manage", "account:manage", "order:manage"}

capabilities contains a if {
	some a in base_actions
}

capabilities contains a if {
	input.account.verified
	some a in verified_actions
}

capabilities contains a if {
	input.account.role == "seller"
	input.account.verified
	some a in seller_actions
}

capabilities contains a if {
	input.account.role == "admin"
	some a in (((base_actions | verified_actions) | seller_actions) | admin_actions)
}
`

// OPAEvaluator evaluates the capability policy with an in-process OPA Rego engine.
// The query is prepared once; evaluation errors deny.
type OPAEvaluator struct {
	query  rego.PreparedEvalQuery
	logger *zap.Logger
}

// NewOPAEvaluator compiles policy (DefaultPolicy when empty) and prepares the capabilities query.
func NewOPAEvaluator(ctx context.Context, policy string, logger *zap.Logger) (*OPAEvaluator, error) {
	if policy == "" {
		policy = DefaultPolicy
	}
	compiler, err := ast.CompileModules(map[string]string{"capabilities.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("policy: compile: %w", err)
	}
	q, err := rego.New(
		rego.Query(capabilitiesQuery),
		rego.Compiler(compiler),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: prepare: %w", err)
	}
	return &OPAEvaluator{query: q, logger: logging.OrNop(logger).Named("policy")}, nil
}

// HealthCheck evaluates the policy for a minimal subject. Returns nil on success.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	caps, err := e.Capabilities(ctx, Subject{Role: "customer"})
	if err != nil {
		return err
	}
	if len(caps) == 0 {
		return fmt.Errorf("policy: query returned no capabilities")
	}
	return nil
}

func (e *OPAEvaluator) Capabilities(ctx context.Context, s Subject) ([]string, error) {
	input := map[string]interface{}{
		"account": map[string]interface{}{
			"id":       s.AccountID,
			"role":     s.Role,
			"verified": s.Verified,
		},
	}
	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		e.logger.Error("policy evaluation failed", zap.String("account_id", s.AccountID), zap.Error(err))
		return nil, fmt.Errorf("policy: eval: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return []string{}, nil
	}
	raw, ok := rs[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("policy: unexpected result type %T", rs[0].Expressions[0].Value)
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if a, ok := v.(string); ok {
			out = append(out, a)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (e *OPAEvaluator) Allowed(ctx context.Context, s Subject, action string) (bool, error) {
	caps, err := e.Capabilities(ctx, s)
	if err != nil {
		return false, err
	}
	i := sort.SearchStrings(caps, action)
	return i < len(caps) && caps[i] == action, nil
}
