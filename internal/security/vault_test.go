package security

import (
	"bytes"
	"testing"
)

func newTestVault(t *testing.T) *CredentialVault {
	t.Helper()
	enc, err := NewEncryptor(bytes.Repeat([]byte{0x07}, 32))
	if err != nil {
		t.Fatalf("NewEncryptor: %v", err)
	}
	return NewCredentialVault(enc)
}

func TestVaultLoadEmptyEnvelope(t *testing.T) {
	v := newTestVault(t)
	creds, err := v.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(creds) != 0 {
		t.Errorf("Load(\"\") = %v, want empty map", creds)
	}
	if Usable(creds) {
		t.Error("empty credentials must not be usable")
	}
}

func TestVaultStoreLoadRoundTrip(t *testing.T) {
	v := newTestVault(t)
	in := map[string]string{"api_key": "k-123", "user_agent_suffix": "bot"}
	envelope, err := v.Store(in)
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	out, err := v.Load(envelope)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out["api_key"] != "k-123" || out["user_agent_suffix"] != "bot" {
		t.Errorf("Load = %v, want %v", out, in)
	}
	if !Usable(out) {
		t.Error("credentials with api_key must be usable")
	}
}

func TestUsableRequiresAPIKey(t *testing.T) {
	if Usable(map[string]string{"other": "x"}) {
		t.Error("credentials without api_key must not be usable")
	}
	if Usable(map[string]string{"api_key": ""}) {
		t.Error("empty api_key must not be usable")
	}
}
