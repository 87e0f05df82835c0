package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAgentToken(t *testing.T) {
	gen := NewAgentTokenGenerator()

	token, hash, err := gen.GenerateAgentToken()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(token, "odo_"))
	assert.True(t, gen.ValidateTokenFormat(token))
	assert.Equal(t, gen.HashToken(token), hash)
	assert.Len(t, hash, 64)
}

func TestValidateTokenFormat(t *testing.T) {
	gen := NewAgentTokenGenerator()

	assert.False(t, gen.ValidateTokenFormat(""))
	assert.False(t, gen.ValidateTokenFormat("odo_tooshort"))
	assert.False(t, gen.ValidateTokenFormat(strings.Repeat("x", 120)))
}
