package interfaces

import (
	"context"

	"github.com/opendevice/onboard/internal/config"
	"github.com/opendevice/onboard/internal/onboard"
	"github.com/opendevice/onboard/internal/storage"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State       string `json:"state"`
	DeviceHost  string `json:"device_host"`
	TaskRunning bool   `json:"task_running"`
}

type LifecycleManager interface {
	Config() *config.Config
	Storage() *storage.PostgresClient
	Controller() *onboard.Controller
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
