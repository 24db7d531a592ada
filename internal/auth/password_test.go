package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCompare(t *testing.T) {
	hash, err := HashPassword("pa55word", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "pa55word", hash)

	assert.NoError(t, ComparePassword(hash, "pa55word"))
	assert.Error(t, ComparePassword(hash, "Pa55word"))
	assert.Error(t, ComparePassword("not-a-hash", "pa55word"))
}

func TestCredentialVerifier(t *testing.T) {
	v := NewCredentialVerifier(bcrypt.MinCost)
	hash, err := HashPassword("right", bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, v.Verify(hash, "right"))
	assert.False(t, v.Verify(hash, "wrong"))
	assert.False(t, v.Verify("", "right"))
	assert.False(t, v.VerifyMissing("right"))
	assert.NotEmpty(t, v.dummyHash)

	cost, err := bcrypt.Cost([]byte(v.dummyHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)
}

func TestCredentialVerifier_InvalidCostFallsBack(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewCredentialVerifier(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewCredentialVerifier(99).cost)
}
