package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

const agentTokenPrefix = "odo_"

type AgentTokenGenerator struct{}

func NewAgentTokenGenerator() *AgentTokenGenerator {
	return &AgentTokenGenerator{}
}

// GenerateAgentToken creates a new agent token.
// Format: odo_<uuid>_<random_secret>
func (g *AgentTokenGenerator) GenerateAgentToken() (string, string, error) {
	id := uuid.New()

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	token := fmt.Sprintf("%s%s_%s", agentTokenPrefix, id.String(), secret)
	hash := g.HashToken(token)

	return token, hash, nil
}

// HashToken hashes an agent token for storage
func (g *AgentTokenGenerator) HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateTokenFormat checks if token has correct format
func (g *AgentTokenGenerator) ValidateTokenFormat(token string) bool {
	if len(token) < len(agentTokenPrefix)+36+1+64 {
		return false
	}
	return token[:len(agentTokenPrefix)] == agentTokenPrefix
}
