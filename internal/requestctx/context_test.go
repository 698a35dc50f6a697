package requestctx

import (
	"context"
	"testing"
)

func TestNewKeysIdentityOnClientIP(t *testing.T) {
	first := New("abc", "203.0.113.7", "req-1")
	second := New("fresh", "203.0.113.7", "req-2")
	if first.Identity != "ip:203.0.113.7" {
		t.Fatalf("unexpected identity %q", first.Identity)
	}
	if first.Identity != second.Identity {
		t.Fatalf("changing the session id must not change the identity: %q vs %q", first.Identity, second.Identity)
	}
	if first.SessionID != "abc" {
		t.Fatalf("expected session id to be kept, got %q", first.SessionID)
	}
}

func TestIdentityFromContext(t *testing.T) {
	ctx := WithContext(context.Background(), New(" s1 ", " 10.0.0.1 ", "req"))
	if got := IdentityFrom(ctx); got != "ip:10.0.0.1" {
		t.Fatalf("unexpected identity %q", got)
	}
	if got := IdentityFrom(context.Background()); got != "" {
		t.Fatalf("expected empty identity, got %q", got)
	}
}
