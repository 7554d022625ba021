package security

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"
)

func newTestProvider(t *testing.T) *TokenProvider {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return NewTokenProvider(key, key.Public(), "broker-auth", "broker-api", time.Minute)
}

func TestIssueValidateRoundTrip(t *testing.T) {
	p := newTestProvider(t)
	token, expiresAt, err := p.IssueAccess(42)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Error("expiresAt should be in the future")
	}
	userID, err := p.ValidateAccess(token)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if userID != 42 {
		t.Errorf("userID = %d, want 42", userID)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	p := newTestProvider(t)
	if _, err := p.ValidateAccess("not-a-token"); err == nil {
		t.Fatal("garbage token should be rejected")
	}
}

func TestValidateRejectsForeignIssuer(t *testing.T) {
	issuing := newTestProvider(t)
	token, _, err := issuing.IssueAccess(7)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	// Different key pair entirely; signature check must fail.
	validating := newTestProvider(t)
	if _, err := validating.ValidateAccess(token); err == nil {
		t.Fatal("token signed by a different key should be rejected")
	}
}
