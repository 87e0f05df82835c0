package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opendevice/onboard/internal/config"
	"github.com/opendevice/onboard/internal/storage"
)

type Permission string

const (
	// PermRead allows viewing tasks and retrieved configuration.
	PermRead Permission = "read"
	// PermDeclare allows submitting declarations.
	PermDeclare Permission = "declare"
	PermAdmin   Permission = "admin"
)

type AuthService struct {
	storage        *storage.PostgresClient
	jwtHandler     *JWTHandler
	passwordHasher *PasswordHasher
	agentTokenGen  *AgentTokenGenerator
}

func NewAuthService(store *storage.PostgresClient, cfg config.AuthConfig) *AuthService {
	jwtSecret := cfg.GetJWTSecret()

	return &AuthService{
		storage:        store,
		jwtHandler:     NewJWTHandler(jwtSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
		passwordHasher: NewPasswordHasher(),
		agentTokenGen:  NewAgentTokenGenerator(),
	}
}

// LoginUser authenticates a user and returns tokens
func (a *AuthService) LoginUser(ctx context.Context, username, password, ipAddress, userAgent string) (accessToken, refreshToken string, err error) {
	user, err := a.storage.GetUserByUsername(ctx, username)
	if err != nil {
		a.logAuthEvent(ctx, "user_login_failed", nil, ipAddress, userAgent, false, "user not found")
		return "", "", fmt.Errorf("invalid credentials")
	}

	if user.LockedUntil != nil && time.Now().Before(*user.LockedUntil) {
		return "", "", fmt.Errorf("account locked until %v", user.LockedUntil)
	}

	valid, err := a.passwordHasher.VerifyPassword(password, user.PasswordHash)
	if err != nil || !valid {
		a.storage.IncrementFailedLoginAttempts(ctx, user.ID)
		a.logAuthEvent(ctx, "user_login_failed", &user.ID, ipAddress, userAgent, false, "invalid password")
		return "", "", fmt.Errorf("invalid credentials")
	}

	a.storage.ResetFailedLoginAttempts(ctx, user.ID)

	accessToken, err = a.jwtHandler.GenerateAccessToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err = a.jwtHandler.GenerateRefreshToken()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate refresh token: %w", err)
	}

	tokenHash := a.hashRefreshToken(refreshToken)
	expiresAt := time.Now().Add(a.jwtHandler.refreshTokenTTL)
	if err := a.storage.StoreRefreshToken(ctx, user.ID, tokenHash, expiresAt); err != nil {
		return "", "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	a.storage.UpdateLastLogin(ctx, user.ID)
	a.logAuthEvent(ctx, "user_login_success", &user.ID, ipAddress, userAgent, true, "")

	return accessToken, refreshToken, nil
}

// ValidateAgentToken validates an agent token and returns its permissions
func (a *AuthService) ValidateAgentToken(ctx context.Context, token, ipAddress, userAgent string) ([]Permission, error) {
	if !a.agentTokenGen.ValidateTokenFormat(token) {
		return nil, fmt.Errorf("invalid token format")
	}

	tokenHash := a.agentTokenGen.HashToken(token)
	agentToken, err := a.storage.GetAgentTokenByHash(ctx, tokenHash)
	if err != nil {
		a.logAuthEvent(ctx, "agent_token_failed", nil, ipAddress, userAgent, false, "token not found")
		return nil, fmt.Errorf("invalid token")
	}

	a.storage.UpdateAgentTokenLastUsed(ctx, agentToken.ID)
	a.logAuthEvent(ctx, "agent_token_success", nil, ipAddress, userAgent, true, "")

	permissions := make([]Permission, len(agentToken.Permissions))
	for i, p := range agentToken.Permissions {
		permissions[i] = Permission(p)
	}

	return permissions, nil
}

// ValidateToken validates either a JWT or an agent token
func (a *AuthService) ValidateToken(ctx context.Context, token, ipAddress, userAgent string) ([]Permission, error) {
	if claims, err := a.jwtHandler.ValidateAccessToken(token); err == nil {
		return a.roleToPermissions(claims.Role), nil
	}

	return a.ValidateAgentToken(ctx, token, ipAddress, userAgent)
}

func (a *AuthService) roleToPermissions(role string) []Permission {
	switch role {
	case "admin":
		return []Permission{PermRead, PermDeclare, PermAdmin}
	case "operator":
		return []Permission{PermRead, PermDeclare}
	default:
		return []Permission{PermRead}
	}
}

func (a *AuthService) hashRefreshToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

func (a *AuthService) logAuthEvent(ctx context.Context, eventType string, userID *uuid.UUID, ip, userAgent string, success bool, reason string) {
	_ = a.storage.LogAuthEvent(ctx, eventType, userID, ip, userAgent, success, reason)
}

// RefreshAccessToken generates new access token from refresh token
func (a *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (string, string, error) {
	tokenHash := a.hashRefreshToken(refreshToken)

	userID, err := a.storage.GetRefreshToken(ctx, tokenHash)
	if err != nil {
		return "", "", fmt.Errorf("invalid refresh token: %w", err)
	}

	user, err := a.storage.GetUserByID(ctx, *userID)
	if err != nil {
		return "", "", fmt.Errorf("user not found: %w", err)
	}

	a.storage.RevokeRefreshToken(ctx, tokenHash)

	accessToken, err := a.jwtHandler.GenerateAccessToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate access token: %w", err)
	}

	newRefreshToken, err := a.jwtHandler.GenerateRefreshToken()
	if err != nil {
		return "", "", fmt.Errorf("failed to generate refresh token: %w", err)
	}

	newTokenHash := a.hashRefreshToken(newRefreshToken)
	expiresAt := time.Now().Add(a.jwtHandler.refreshTokenTTL)
	if err := a.storage.StoreRefreshToken(ctx, user.ID, newTokenHash, expiresAt); err != nil {
		return "", "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return accessToken, newRefreshToken, nil
}

// RevokeRefreshToken revokes a refresh token
func (a *AuthService) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	tokenHash := a.hashRefreshToken(refreshToken)
	return a.storage.RevokeRefreshToken(ctx, tokenHash)
}

// CreateAgentToken creates a new agent token
func (a *AuthService) CreateAgentToken(ctx context.Context, name string, permissions []string, createdByUserID *uuid.UUID) (string, *storage.AgentToken, error) {
	token, tokenHash, err := a.agentTokenGen.GenerateAgentToken()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}

	agentToken, err := a.storage.CreateAgentToken(ctx, tokenHash, name, permissions, createdByUserID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to store token: %w", err)
	}

	a.logAuthEvent(ctx, "agent_token_created", createdByUserID, "", "", true, "")
	return token, agentToken, nil
}

// ListAgentTokens returns all agent tokens (without token values)
func (a *AuthService) ListAgentTokens(ctx context.Context) ([]*storage.AgentToken, error) {
	return a.storage.ListAgentTokens(ctx)
}

// DeleteAgentToken deletes an agent token
func (a *AuthService) DeleteAgentToken(ctx context.Context, tokenID uuid.UUID) error {
	return a.storage.DeleteAgentToken(ctx, tokenID)
}

// CreateUser creates a new user
func (a *AuthService) CreateUser(ctx context.Context, username, password, role string) (*storage.User, error) {
	passwordHash, err := a.passwordHasher.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return a.storage.CreateUser(ctx, username, passwordHash, role)
}

// GetUserByID retrieves a user by ID
func (a *AuthService) GetUserByID(ctx context.Context, userID uuid.UUID) (*storage.User, error) {
	return a.storage.GetUserByID(ctx, userID)
}

// ListUsers returns all users
func (a *AuthService) ListUsers(ctx context.Context) ([]*storage.User, error) {
	return a.storage.ListUsers(ctx)
}

// UpdateUser updates user details
func (a *AuthService) UpdateUser(ctx context.Context, userID uuid.UUID, password, role *string) error {
	if password != nil {
		passwordHash, err := a.passwordHasher.HashPassword(*password)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		if err := a.storage.UpdateUserPassword(ctx, userID, passwordHash); err != nil {
			return err
		}
	}

	if role != nil {
		if err := a.storage.UpdateUserRole(ctx, userID, *role); err != nil {
			return err
		}
	}

	return nil
}

// DeleteUser deletes a user
func (a *AuthService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	return a.storage.DeleteUser(ctx, userID)
}
