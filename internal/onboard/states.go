package onboard

import "time"

// Status is the lifecycle state of an onboarding task.
type Status string

const (
	StatusRunning     Status = "RUNNING"
	StatusOK          Status = "OK"
	StatusError       Status = "ERROR"
	StatusRollingBack Status = "ROLLING_BACK"
)

// TaskStatus is the externally visible view of a task.
type TaskStatus struct {
	TaskID          string    `json:"task_id"`
	Status          Status    `json:"status"`
	Message         string    `json:"message,omitempty"`
	Errors          []string  `json:"errors,omitempty"`
	LastStateChange time.Time `json:"last_state_change"`
}
