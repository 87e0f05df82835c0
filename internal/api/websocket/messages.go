package websocket

import "time"

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Task lifecycle messages
	MessageTypeTaskSubmitted MessageType = "task_submitted"
	MessageTypeTaskStatus    MessageType = "task_status"
	MessageTypeTaskCompleted MessageType = "task_completed"
	MessageTypeTaskFailed    MessageType = "task_failed"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// TaskStatusData carries a task status transition
type TaskStatusData struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Previous string `json:"previous_status,omitempty"`
	Message  string `json:"message,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewTaskStatusMessage(taskID, status, previous, message string) Message {
	return NewMessage(MessageTypeTaskStatus, TaskStatusData{
		TaskID:   taskID,
		Status:   status,
		Previous: previous,
		Message:  message,
	})
}
