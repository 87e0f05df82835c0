package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CreateTask stores a new task for the given declaration and returns it
// with its generated id.
func (p *PostgresClient) CreateTask(ctx context.Context, declaration map[string]any, status string) (*Task, error) {
	declJSON, err := json.Marshal(declaration)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal declaration: %w", err)
	}

	var task Task
	task.Declaration = declJSON
	task.Status = status
	err = p.pool.QueryRow(ctx, `
		INSERT INTO tasks (status, declaration)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`, status, declJSON).Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	return &task, nil
}

// UpdateTaskStatus advances a task's state and message.
func (p *PostgresClient) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status, message string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE tasks SET status = $1, message = $2, updated_at = NOW()
		WHERE id = $3
	`, status, message, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	return nil
}

// SetTaskResult records the outcome of a finished run alongside any errors
// it collected.
func (p *PostgresClient) SetTaskResult(ctx context.Context, taskID uuid.UUID, result map[string]any, taskErrors []string) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal task result: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		UPDATE tasks SET result = $1, errors = $2, updated_at = NOW()
		WHERE id = $3
	`, resultJSON, taskErrors, taskID)
	if err != nil {
		return fmt.Errorf("failed to set task result: %w", err)
	}
	return nil
}

// GetTask loads a single task.
func (p *PostgresClient) GetTask(ctx context.Context, taskID uuid.UUID) (*Task, error) {
	var task Task
	err := p.pool.QueryRow(ctx, `
		SELECT id, status, COALESCE(message, ''), declaration, result, errors, created_at, updated_at
		FROM tasks
		WHERE id = $1
	`, taskID).Scan(
		&task.ID, &task.Status, &task.Message, &task.Declaration,
		&task.Result, &task.Errors, &task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return &task, nil
}

// ListTasks returns tasks newest first.
func (p *PostgresClient) ListTasks(ctx context.Context, limit int) ([]*Task, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, status, COALESCE(message, ''), declaration, result, errors, created_at, updated_at
		FROM tasks
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]*Task, 0)
	for rows.Next() {
		var task Task
		err := rows.Scan(
			&task.ID, &task.Status, &task.Message, &task.Declaration,
			&task.Result, &task.Errors, &task.CreatedAt, &task.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, &task)
	}
	return tasks, nil
}
