package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opendevice/onboard/internal/api/rest"
	"github.com/opendevice/onboard/internal/api/websocket"
	"github.com/opendevice/onboard/internal/auth"
	"github.com/opendevice/onboard/internal/catalog"
	"github.com/opendevice/onboard/internal/config"
	"github.com/opendevice/onboard/internal/configmgr"
	"github.com/opendevice/onboard/internal/declaration"
	"github.com/opendevice/onboard/internal/device"
	"github.com/opendevice/onboard/internal/interfaces"
	"github.com/opendevice/onboard/internal/onboard"
	"github.com/opendevice/onboard/internal/storage"
)

// LifecycleManager wires the config, storage, device transport, and task
// controller together and owns startup and shutdown ordering.
type LifecycleManager struct {
	config      *config.Config
	storage     *storage.PostgresClient
	controller  *onboard.Controller
	authService *auth.AuthService
	wsHub       *websocket.Hub
	logger      *zap.Logger

	restServer *rest.Server

	stateMu      sync.RWMutex
	currentState SystemState

	listenersMu     sync.RWMutex
	statusListeners []chan SystemStatus

	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewLifecycleManager(
	store *storage.PostgresClient,
	cfg *config.Config,
	logger *zap.Logger,
) (*LifecycleManager, error) {
	cat, err := loadCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config item catalog: %w", err)
	}

	deviceClient := device.NewClient(device.Config{
		Host:               cfg.Device.Host,
		Port:               cfg.Device.Port,
		Username:           cfg.Device.Username,
		Password:           cfg.Device.Password,
		Timeout:            cfg.Device.Timeout,
		InsecureSkipVerify: cfg.Device.InsecureSkipVerify,
	}, logger)

	manager := configmgr.New(cat, deviceClient, store, logger)
	parser := declaration.NewParser(cat, logger)

	authService := auth.NewAuthService(store, cfg.Auth)
	wsHub := websocket.NewHub(logger, authService)

	controller := onboard.NewController(logger, parser, manager, store, wsHub)

	return &LifecycleManager{
		config:          cfg,
		storage:         store,
		controller:      controller,
		authService:     authService,
		wsHub:           wsHub,
		logger:          logger,
		currentState:    StateInitializing,
		shutdownChan:    make(chan struct{}),
		statusListeners: make([]chan SystemStatus, 0),
	}, nil
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	if cfg.Catalog.Path != "" {
		return catalog.LoadFile(cfg.Catalog.Path)
	}
	return catalog.Load()
}

// Start starts the websocket hub and the REST API server.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting onboarding agent")

	lm.setState(StateInitializing)
	lm.broadcastStatus()

	if !lm.config.Auth.IsProductionReady() {
		lm.logger.Warn("JWT secret not configured, using development default")
	}

	go lm.wsHub.Run()

	if err := lm.startRESTServer(); err != nil {
		lm.setError(fmt.Errorf("failed to start REST API: %w", err))
		return err
	}

	lm.setState(StateRunning)
	lm.broadcastStatus()

	lm.logger.Info("System started successfully",
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.String("device_host", lm.config.Device.Host))

	return nil
}

// Shutdown gracefully shuts down the system.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")

		lm.setState(StateStopping)
		lm.broadcastStatus()

		shutdownErr = lm.gracefulShutdown(ctx)

		lm.setState(StateStopped)
		lm.broadcastStatus()

		close(lm.shutdownChan)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	if lm.restServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("rest api shutdown failed: %w", err)
		}
	}

	lm.storage.Close()
	lm.logger.Info("Graceful shutdown completed")
	return nil
}

func (lm *LifecycleManager) startRESTServer() error {
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.authService)
	return lm.restServer.Start()
}

// Wait blocks until shutdown has completed.
func (lm *LifecycleManager) Wait() {
	<-lm.shutdownChan
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = state
}

func (lm *LifecycleManager) setError(err error) {
	lm.logger.Error("System entered error state", zap.Error(err))
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.currentState = StateError
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	return interfaces.SystemStatus{
		State:       lm.currentState.String(),
		DeviceHost:  lm.config.Device.Host,
		TaskRunning: lm.controller.Running(),
	}
}

func (lm *LifecycleManager) getStatusInternal() SystemStatus {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()

	return SystemStatus{
		State:     lm.currentState,
		Timestamp: time.Now().Unix(),
	}
}

func (lm *LifecycleManager) broadcastStatus() {
	status := lm.getStatusInternal()

	lm.listenersMu.RLock()
	defer lm.listenersMu.RUnlock()

	for _, listener := range lm.statusListeners {
		select {
		case listener <- status:
		default:
			// Channel full, skip
		}
	}
}

// SubscribeStatus subscribes to status updates
func (lm *LifecycleManager) SubscribeStatus() chan SystemStatus {
	ch := make(chan SystemStatus, 10)

	lm.listenersMu.Lock()
	lm.statusListeners = append(lm.statusListeners, ch)
	lm.listenersMu.Unlock()

	return ch
}

// UnsubscribeStatus unsubscribes from status updates
func (lm *LifecycleManager) UnsubscribeStatus(ch chan SystemStatus) {
	lm.listenersMu.Lock()
	defer lm.listenersMu.Unlock()

	for i, listener := range lm.statusListeners {
		if listener == ch {
			lm.statusListeners = append(lm.statusListeners[:i], lm.statusListeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// Controller returns the onboarding task controller
func (lm *LifecycleManager) Controller() *onboard.Controller {
	return lm.controller
}

// Storage returns the storage client
func (lm *LifecycleManager) Storage() *storage.PostgresClient {
	return lm.storage
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}
