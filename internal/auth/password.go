package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a plaintext password with configured cost.
func HashPassword(password string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its hashed value.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}

// CredentialVerifier confirms candidate secrets against stored bcrypt hashes.
type CredentialVerifier struct {
	cost      int
	dummyOnce sync.Once
	dummyHash string
}

// NewCredentialVerifier builds a verifier whose decoy hash uses cost, so a
// missing account costs the same as a wrong password.
func NewCredentialVerifier(cost int) *CredentialVerifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &CredentialVerifier{cost: cost}
}

// Verify reports whether candidate matches storedHash.
func (v *CredentialVerifier) Verify(storedHash, candidate string) bool {
	return ComparePassword(storedHash, candidate) == nil
}

// VerifyMissing burns a comparison against a decoy hash and always reports false.
func (v *CredentialVerifier) VerifyMissing(candidate string) bool {
	v.dummyOnce.Do(func() {
		hash, err := HashPassword("decoy-password-for-unknown-accounts", v.cost)
		if err == nil {
			v.dummyHash = hash
		}
	})
	if v.dummyHash != "" {
		_ = ComparePassword(v.dummyHash, candidate)
	}
	return false
}
