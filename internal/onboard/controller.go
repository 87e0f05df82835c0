// Package onboard runs declaration tasks end to end: normalize the
// declaration, retrieve the device's current configuration, and persist
// the snapshots, moving each task through RUNNING to OK, ERROR, or
// ROLLING_BACK.
package onboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opendevice/onboard/internal/api/websocket"
	"github.com/opendevice/onboard/internal/configmgr"
	"github.com/opendevice/onboard/internal/declaration"
	"github.com/opendevice/onboard/internal/mapping"
	"github.com/opendevice/onboard/internal/storage"
)

// TaskStore persists onboarding tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, declaration map[string]any, status string) (*storage.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status, message string) error
	SetTaskResult(ctx context.Context, taskID uuid.UUID, result map[string]any, taskErrors []string) error
	GetTask(ctx context.Context, taskID uuid.UUID) (*storage.Task, error)
	ListTasks(ctx context.Context, limit int) ([]*storage.Task, error)
}

// Controller owns the task lifecycle. One task runs at a time; the device
// management API serializes configuration changes anyway.
type Controller struct {
	logger  *zap.Logger
	parser  *declaration.Parser
	manager *configmgr.Manager
	tasks   TaskStore
	wsHub   *websocket.Hub

	mu          sync.Mutex
	running     bool
	lastCurrent map[string]any
}

func NewController(
	logger *zap.Logger,
	parser *declaration.Parser,
	manager *configmgr.Manager,
	tasks TaskStore,
	wsHub *websocket.Hub,
) *Controller {
	return &Controller{
		logger:  logger,
		parser:  parser,
		manager: manager,
		tasks:   tasks,
		wsHub:   wsHub,
	}
}

// Submit accepts a declaration, creates its task in RUNNING state, and
// processes it in the background. A second submission while a task is in
// flight is rejected.
func (c *Controller) Submit(ctx context.Context, decl map[string]any) (*storage.Task, error) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, fmt.Errorf("a task is already running")
	}
	c.running = true
	c.mu.Unlock()

	task, err := c.tasks.CreateTask(ctx, decl, string(StatusRunning))
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	c.broadcast(task.ID, StatusRunning, "", "")

	go c.run(task.ID, decl)

	return task, nil
}

// run drives one task to completion. It uses a background context because
// the submitting request has already returned.
func (c *Controller) run(taskID uuid.UUID, decl map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	if _, err := c.parser.Parse(decl, nil); err != nil {
		c.fail(ctx, taskID, fmt.Errorf("normalizing declaration: %w", err))
		return
	}

	c.mu.Lock()
	prior := c.lastCurrent
	c.mu.Unlock()

	// The retriever reads class markers and declared DB variable names
	// straight off the declaration, so it gets the raw form, not the
	// normalized model.
	result, err := c.manager.Retrieve(ctx, decl, prior, mapping.Options{})
	if err != nil {
		c.rollback(ctx, taskID, err)
		return
	}

	c.mu.Lock()
	c.lastCurrent = result.CurrentConfig
	c.mu.Unlock()

	if err := c.tasks.SetTaskResult(ctx, taskID, result.CurrentConfig, nil); err != nil {
		c.fail(ctx, taskID, fmt.Errorf("persisting task result: %w", err))
		return
	}

	c.setStatus(ctx, taskID, StatusOK, "")
	c.logger.Info("Task completed",
		zap.String("task_id", taskID.String()),
		zap.String("config_id", result.ConfigID),
		zap.String("device_version", result.DeviceVersion))
}

// rollback records that the task is falling back to the stored original
// configuration, then fails the task. The original snapshot itself is
// never touched by a failed run.
func (c *Controller) rollback(ctx context.Context, taskID uuid.UUID, cause error) {
	c.setStatus(ctx, taskID, StatusRollingBack, cause.Error())
	c.logger.Warn("Task rolling back to original configuration",
		zap.String("task_id", taskID.String()),
		zap.Error(cause))
	c.fail(ctx, taskID, cause)
}

func (c *Controller) fail(ctx context.Context, taskID uuid.UUID, cause error) {
	if err := c.tasks.SetTaskResult(ctx, taskID, nil, []string{cause.Error()}); err != nil {
		c.logger.Error("Failed to record task errors",
			zap.String("task_id", taskID.String()),
			zap.Error(err))
	}
	c.setStatus(ctx, taskID, StatusError, cause.Error())
	c.logger.Error("Task failed",
		zap.String("task_id", taskID.String()),
		zap.Error(cause))
}

func (c *Controller) setStatus(ctx context.Context, taskID uuid.UUID, status Status, message string) {
	if err := c.tasks.UpdateTaskStatus(ctx, taskID, string(status), message); err != nil {
		c.logger.Error("Failed to update task status",
			zap.String("task_id", taskID.String()),
			zap.String("status", string(status)),
			zap.Error(err))
	}
	c.broadcast(taskID, status, "", message)
}

func (c *Controller) broadcast(taskID uuid.UUID, status Status, previous Status, message string) {
	if c.wsHub == nil {
		return
	}
	c.wsHub.Broadcast(websocket.NewTaskStatusMessage(
		taskID.String(), string(status), string(previous), message,
	))
}

// Running reports whether a task is currently in flight.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// GetTask returns one task.
func (c *Controller) GetTask(ctx context.Context, taskID uuid.UUID) (*storage.Task, error) {
	return c.tasks.GetTask(ctx, taskID)
}

// ListTasks returns recent tasks.
func (c *Controller) ListTasks(ctx context.Context, limit int) ([]*storage.Task, error) {
	return c.tasks.ListTasks(ctx, limit)
}

// CurrentConfig retrieves the device's configuration in normalized form.
func (c *Controller) CurrentConfig(ctx context.Context) (map[string]any, error) {
	return c.retrieve(ctx, mapping.Options{})
}

// Inspect retrieves the device's configuration with property names
// translated to declaration ids.
func (c *Controller) Inspect(ctx context.Context) (map[string]any, error) {
	return c.retrieve(ctx, mapping.Options{TranslateToNewID: true})
}

func (c *Controller) retrieve(ctx context.Context, opts mapping.Options) (map[string]any, error) {
	c.mu.Lock()
	prior := c.lastCurrent
	c.mu.Unlock()

	result, err := c.manager.Retrieve(ctx, map[string]any{}, prior, opts)
	if err != nil {
		return nil, err
	}

	if !opts.TranslateToNewID {
		c.mu.Lock()
		c.lastCurrent = result.CurrentConfig
		c.mu.Unlock()
	}
	return result.CurrentConfig, nil
}
