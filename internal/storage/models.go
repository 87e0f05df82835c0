package storage

import (
	"time"

	"github.com/google/uuid"
)

// Task is one onboarding run: the declaration it was given and where the
// run currently stands.
type Task struct {
	ID          uuid.UUID `json:"id"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Declaration []byte    `json:"declaration"` // JSONB
	Result      []byte    `json:"result,omitempty"`
	Errors      []string  `json:"errors,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OriginalConfigRecord is the first-seen device configuration kept per
// machine id for rollback.
type OriginalConfigRecord struct {
	ConfigID  string    `json:"config_id"`
	Config    []byte    `json:"config"` // JSONB
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
