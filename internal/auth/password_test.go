package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hasher := NewPasswordHasher()

	encoded, err := hasher.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	ok, err := hasher.VerifyPassword("correct horse battery staple", encoded)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.VerifyPassword("wrong password", encoded)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPasswordUniqueSalt(t *testing.T) {
	hasher := NewPasswordHasher()

	first, err := hasher.HashPassword("same password")
	require.NoError(t, err)
	second, err := hasher.HashPassword("same password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	hasher := NewPasswordHasher()

	_, err := hasher.VerifyPassword("anything", "not-a-valid-hash")
	assert.Error(t, err)
}
