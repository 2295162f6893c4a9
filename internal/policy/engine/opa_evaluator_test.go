package engine

import (
	"context"
	"testing"
)

func newEvaluator(t *testing.T) *OPAEvaluator {
	t.Helper()
	e, err := NewOPAEvaluator(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	return e
}

func TestOPAEvaluator_HealthCheck(t *testing.T) {
	if err := newEvaluator(t).HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAEvaluator_Allowed(t *testing.T) {
	e := newEvaluator(t)
	ctx := context.Background()
	tests := []struct {
		name    string
		subject Subject
		action  string
		want    bool
	}{
		{"unverified customer browses", Subject{Role: "customer"}, "catalog:browse", true},
		{"unverified customer cannot order", Subject{Role: "customer"}, "order:place", false},
		{"verified customer orders", Subject{Role: "customer", Verified: true}, "order:place", true},
		{"verified customer cannot sell", Subject{Role: "customer", Verified: true}, "product:create", false},
		{"unverified seller cannot sell", Subject{Role: "seller"}, "product:create", false},
		{"verified seller sells", Subject{Role: "seller", Verified: true}, "product:create", true},
		{"admin manages categories", Subject{Role: "admin"}, "category:manage", true},
		{"admin orders without verification", Subject{Role: "admin"}, "order:place", true},
		{"unknown action", Subject{Role: "admin"}, "nuke:everything", false},
		{"unknown role gets base only", Subject{Role: "intruder", Verified: true}, "category:manage", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Allowed(ctx, tt.subject, tt.action)
			if err != nil {
				t.Fatalf("Allowed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Allowed(%+v, %q) = %v, want %v", tt.subject, tt.action, got, tt.want)
			}
		})
	}
}

func TestOPAEvaluator_CapabilitiesSorted(t *testing.T) {
	caps, err := newEvaluator(t).Capabilities(context.Background(), Subject{Role: "customer"})
	if err != nil {
		t.Fatalf("Capabilities: %v", err)
	}
	want := []string{"account:change_password", "account:read", "account:update_profile", "cart:manage", "catalog:browse"}
	if len(caps) != len(want) {
		t.Fatalf("caps = %v, want %v", caps, want)
	}
	for i := range want {
		if caps[i] != want[i] {
			t.Errorf("caps[%d] = %q, want %q", i, caps[i], want[i])
		}
	}
}

func TestNewOPAEvaluator_InvalidPolicy(t *testing.T) {
	if _, err := NewOPAEvaluator(context.Background(), "package broken\n\nallow if {", nil); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestOPAEvaluator_CustomPolicy(t *testing.T) {
	policy := `package storefront.capabilities

capabilities contains "catalog:browse" if {
	true
}
`
	e, err := NewOPAEvaluator(context.Background(), policy, nil)
	if err != nil {
		t.Fatalf("NewOPAEvaluator: %v", err)
	}
	caps, err := e.Capabilities(context.Background(), Subject{Role: "admin"})
	if err != nil {
		t.Fatalf("Capabilities: %v", err)
	}
	if len(caps) != 1 || caps[0] != "catalog:browse" {
		t.Errorf("caps = %v", caps)
	}
}
