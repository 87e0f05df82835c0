package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// OriginalConfig loads the stored original configuration for a machine id.
// A missing record is not an error; it means the device has never been
// onboarded.
func (p *PostgresClient) OriginalConfig(ctx context.Context, configID string) (map[string]any, error) {
	var configJSON []byte
	err := p.pool.QueryRow(ctx, `
		SELECT config FROM original_configs WHERE config_id = $1
	`, configID).Scan(&configJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load original config: %w", err)
	}

	var config map[string]any
	if err := json.Unmarshal(configJSON, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal original config: %w", err)
	}
	return config, nil
}

// SetOriginalConfig upserts the original configuration snapshot for a
// machine id.
func (p *PostgresClient) SetOriginalConfig(ctx context.Context, configID string, config map[string]any) error {
	configJSON, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal original config: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO original_configs (config_id, config)
		VALUES ($1, $2)
		ON CONFLICT (config_id)
		DO UPDATE SET config = EXCLUDED.config, updated_at = NOW()
	`, configID, configJSON)
	if err != nil {
		return fmt.Errorf("failed to store original config: %w", err)
	}
	return nil
}
