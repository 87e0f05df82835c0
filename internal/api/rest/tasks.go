package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opendevice/onboard/internal/storage"
	"github.com/opendevice/onboard/internal/types"
)

// TaskResponse is the wire form of a task. Declaration and result are
// stored as raw JSON and passed through untouched.
type TaskResponse struct {
	ID          uuid.UUID       `json:"id"`
	Status      string          `json:"status"`
	Message     string          `json:"message,omitempty"`
	Declaration json.RawMessage `json:"declaration,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Errors      []string        `json:"errors,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func taskResponse(task *storage.Task) TaskResponse {
	return TaskResponse{
		ID:          task.ID,
		Status:      task.Status,
		Message:     task.Message,
		Declaration: json.RawMessage(task.Declaration),
		Result:      json.RawMessage(task.Result),
		Errors:      task.Errors,
		CreatedAt:   task.CreatedAt,
		UpdatedAt:   task.UpdatedAt,
	}
}

// POST /api/v1/declare
func (s *Server) submitDeclaration(c *gin.Context) {
	var declaration map[string]any
	if err := c.ShouldBindJSON(&declaration); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("DECLARE_400", "Invalid declaration body", err.Error()))
		return
	}

	task, err := s.lm.Controller().Submit(c.Request.Context(), declaration)
	if err != nil {
		s.logger.Error("Failed to submit declaration", zap.Error(err))
		c.JSON(http.StatusConflict, types.NewErrorResponse("DECLARE_409", "Failed to submit declaration", err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, taskResponse(task))
}

// GET /api/v1/tasks/:id
func (s *Server) getTask(c *gin.Context) {
	taskID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("TASK_400", "Invalid task ID", err.Error()))
		return
	}

	task, err := s.lm.Controller().GetTask(c.Request.Context(), taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, types.NewErrorResponse("TASK_404", "Task not found", nil))
			return
		}
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("TASK_500", "Failed to load task", err.Error()))
		return
	}

	c.JSON(http.StatusOK, taskResponse(task))
}

// GET /api/v1/tasks
func (s *Server) listTasks(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("TASK_400", "Invalid limit", nil))
			return
		}
		limit = parsed
	}

	tasks, err := s.lm.Controller().ListTasks(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("TASK_500", "Failed to list tasks", err.Error()))
		return
	}

	responses := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		responses = append(responses, taskResponse(task))
	}

	c.JSON(http.StatusOK, gin.H{"tasks": responses})
}

// GET /api/v1/config
func (s *Server) getCurrentConfig(c *gin.Context) {
	current, err := s.lm.Controller().CurrentConfig(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to retrieve current config", zap.Error(err))
		c.JSON(http.StatusBadGateway, types.NewErrorResponse("CONFIG_502", "Failed to retrieve configuration from device", err.Error()))
		return
	}

	c.JSON(http.StatusOK, current)
}

// GET /api/v1/inspect
func (s *Server) inspect(c *gin.Context) {
	inspected, err := s.lm.Controller().Inspect(c.Request.Context())
	if err != nil {
		s.logger.Error("Failed to inspect device", zap.Error(err))
		c.JSON(http.StatusBadGateway, types.NewErrorResponse("INSPECT_502", "Failed to inspect device configuration", err.Error()))
		return
	}

	c.JSON(http.StatusOK, inspected)
}
