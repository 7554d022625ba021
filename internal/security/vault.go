package security

import (
	"encoding/json"
	"fmt"
)

// APIKeyField is the key the credential blob must contain for a robot to be usable.
const APIKeyField = "api_key"

// CredentialVault encrypts and decrypts robot credential blobs. Load and Store are
// explicit so the encryption step is visible and testable; nothing else in the
// codebase touches the raw blob.
type CredentialVault struct {
	enc *Encryptor
}

// NewCredentialVault returns a vault backed by the given encryptor.
func NewCredentialVault(enc *Encryptor) *CredentialVault {
	return &CredentialVault{enc: enc}
}

// Load decrypts a stored credential envelope into a key-value map.
// An empty envelope yields an empty map, not an error. Callers must verify the
// map is non-empty and contains APIKeyField before any network call.
func (v *CredentialVault) Load(envelope string) (map[string]string, error) {
	if envelope == "" {
		return map[string]string{}, nil
	}
	plain, err := v.enc.Decrypt(envelope)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials: %w", err)
	}
	creds := map[string]string{}
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}

// Store encrypts a key-value credential map into an envelope for persistence.
func (v *CredentialVault) Store(creds map[string]string) (string, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}
	envelope, err := v.enc.Encrypt(plain)
	if err != nil {
		return "", fmt.Errorf("encrypt credentials: %w", err)
	}
	return envelope, nil
}

// Usable reports whether a loaded credential map is sufficient for TNS calls.
func Usable(creds map[string]string) bool {
	return len(creds) > 0 && creds[APIKeyField] != ""
}
