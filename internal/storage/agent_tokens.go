package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AgentToken is a long-lived credential for automation clients that drive
// the onboarding API without a user session.
type AgentToken struct {
	ID              uuid.UUID  `json:"id"`
	TokenHash       string     `json:"-"`
	Name            string     `json:"name"`
	Permissions     []string   `json:"permissions"`
	CreatedAt       time.Time  `json:"created_at"`
	LastUsedAt      *time.Time `json:"last_used_at"`
	CreatedByUserID *uuid.UUID `json:"created_by_user_id"`
}

func (p *PostgresClient) CreateAgentToken(ctx context.Context, tokenHash, name string, permissions []string, createdByUserID *uuid.UUID) (*AgentToken, error) {
	var token AgentToken
	err := p.pool.QueryRow(ctx, `
		INSERT INTO agent_tokens (token_hash, name, permissions, created_by_user_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, token_hash, name, permissions, created_at, last_used_at, created_by_user_id
	`, tokenHash, name, permissions, createdByUserID).Scan(
		&token.ID, &token.TokenHash, &token.Name, &token.Permissions,
		&token.CreatedAt, &token.LastUsedAt, &token.CreatedByUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create agent token: %w", err)
	}
	return &token, nil
}

func (p *PostgresClient) GetAgentTokenByHash(ctx context.Context, tokenHash string) (*AgentToken, error) {
	var token AgentToken
	err := p.pool.QueryRow(ctx, `
		SELECT id, token_hash, name, permissions, created_at, last_used_at, created_by_user_id
		FROM agent_tokens
		WHERE token_hash = $1
	`, tokenHash).Scan(
		&token.ID, &token.TokenHash, &token.Name, &token.Permissions,
		&token.CreatedAt, &token.LastUsedAt, &token.CreatedByUserID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent token: %w", err)
	}
	return &token, nil
}

func (p *PostgresClient) UpdateAgentTokenLastUsed(ctx context.Context, tokenID uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE agent_tokens SET last_used_at = NOW() WHERE id = $1
	`, tokenID)
	return err
}

func (p *PostgresClient) ListAgentTokens(ctx context.Context) ([]*AgentToken, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, permissions, created_at, last_used_at, created_by_user_id
		FROM agent_tokens
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*AgentToken
	for rows.Next() {
		var token AgentToken
		err := rows.Scan(
			&token.ID, &token.Name, &token.Permissions, &token.CreatedAt,
			&token.LastUsedAt, &token.CreatedByUserID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent token: %w", err)
		}
		tokens = append(tokens, &token)
	}
	return tokens, nil
}

func (p *PostgresClient) DeleteAgentToken(ctx context.Context, tokenID uuid.UUID) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM agent_tokens WHERE id = $1`, tokenID)
	if err != nil {
		return fmt.Errorf("failed to delete agent token: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
