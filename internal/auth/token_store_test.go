// ABOUTME: Unit tests for the opaque-token store's issue/verify/revoke cycle

package auth

import (
	"errors"
	"testing"
)

func TestTokenStore_IssueAndAuthenticate(t *testing.T) {
	s := NewTokenStore()

	token := s.Issue([]string{"tools.call", "tools.list"})
	if token == "" {
		t.Fatal("Issue() returned empty token")
	}

	ctx, err := s.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if ctx.PrincipalID != token {
		t.Errorf("PrincipalID = %q, want %q", ctx.PrincipalID, token)
	}
	if ctx.Method != "token" {
		t.Errorf("Method = %q, want %q", ctx.Method, "token")
	}
	if !ctx.HasCapability("tools.call") || !ctx.HasCapability("tools.list") {
		t.Errorf("capabilities = %v, want both tools.call and tools.list", ctx.Capabilities)
	}
}

func TestTokenStore_AuthenticateUnknownToken(t *testing.T) {
	s := NewTokenStore()

	_, err := s.Authenticate("does-not-exist")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Authenticate() error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenStore_RevokeInvalidatesToken(t *testing.T) {
	s := NewTokenStore()
	token := s.Issue([]string{"tools.call"})

	s.Revoke(token)

	if _, err := s.Authenticate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Authenticate() after Revoke error = %v, want ErrInvalidToken", err)
	}
}

func TestTokenStore_CapabilitiesAreCopiedNotAliased(t *testing.T) {
	s := NewTokenStore()
	caps := []string{"tools.call"}
	token := s.Issue(caps)

	caps[0] = "mutated"

	ctx, err := s.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if ctx.Capabilities[0] != "tools.call" {
		t.Fatalf("stored capability mutated via caller slice: got %q", ctx.Capabilities[0])
	}

	ctx.Capabilities[0] = "mutated-again"
	ctx2, err := s.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if ctx2.Capabilities[0] != "tools.call" {
		t.Fatalf("stored capability mutated via returned AuthContext: got %q", ctx2.Capabilities[0])
	}
}

func TestTokenStore_Count(t *testing.T) {
	s := NewTokenStore()
	if s.Count() != 0 {
		t.Fatalf("Count() = %d, want 0", s.Count())
	}

	a := s.Issue(nil)
	s.Issue(nil)
	if s.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", s.Count())
	}

	s.Revoke(a)
	if s.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", s.Count())
	}
}
