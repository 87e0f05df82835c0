package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/opendevice/onboard/internal/api/websocket"
	"github.com/opendevice/onboard/internal/auth"
	"github.com/opendevice/onboard/internal/config"
	"github.com/opendevice/onboard/internal/interfaces"
)

type Server struct {
	router      *gin.Engine
	lm          interfaces.LifecycleManager
	logger      *zap.Logger
	server      *http.Server
	wsHub       *websocket.Hub
	authService *auth.AuthService
}

func NewServer(cfg *config.Config, lm interfaces.LifecycleManager, logger *zap.Logger, wsHub *websocket.Hub, authService *auth.AuthService) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		lm:          lm,
		logger:      logger,
		wsHub:       wsHub,
		authService: authService,
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("Starting REST API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal("REST server failed", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server")
	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware())

	// Inject AuthService into Gin context
	s.router.Use(func(c *gin.Context) {
		c.Set("authService", s.authService)
		c.Next()
	})

	// Public routes (no auth required)
	s.router.GET("/health", s.healthCheck)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// ==================== AUTH ENDPOINTS (PUBLIC) ====================
		authPublic := v1.Group("/auth")
		{
			authPublic.POST("/login", s.login)
			authPublic.POST("/refresh", s.refreshToken)
		}

		// ==================== AUTH ENDPOINTS (AUTHENTICATED) ====================
		authProtected := v1.Group("/auth")
		authProtected.Use(s.authService.AuthMiddleware())
		{
			authProtected.POST("/logout", s.logout)
			authProtected.GET("/me", s.getCurrentUser)
		}

		// ==================== AGENT TOKENS (ADMIN ONLY) ====================
		agentTokens := v1.Group("/agent-tokens")
		agentTokens.Use(s.authService.AuthMiddleware())
		agentTokens.Use(auth.RequirePermission(auth.PermAdmin))
		{
			agentTokens.POST("", s.createAgentToken)
			agentTokens.GET("", s.listAgentTokens)
			agentTokens.DELETE("/:id", s.deleteAgentToken)
		}

		// ==================== USER MANAGEMENT (ADMIN ONLY) ====================
		users := v1.Group("/users")
		users.Use(s.authService.AuthMiddleware())
		users.Use(auth.RequirePermission(auth.PermAdmin))
		{
			users.POST("", s.createUser)
			users.GET("", s.listUsers)
			users.PATCH("/:id", s.updateUser)
			users.DELETE("/:id", s.deleteUser)
		}

		// ==================== SYSTEM ====================
		system := v1.Group("/system")
		system.Use(s.authService.AuthMiddleware())
		{
			system.GET("/status", auth.RequirePermission(auth.PermRead), s.getSystemStatus)
			system.POST("/shutdown", auth.RequirePermission(auth.PermAdmin), s.shutdown)
		}

		// ==================== DECLARATIONS & TASKS ====================
		declare := v1.Group("/declare")
		declare.Use(s.authService.AuthMiddleware())
		{
			declare.POST("", auth.RequirePermission(auth.PermDeclare), s.submitDeclaration)
		}

		tasks := v1.Group("/tasks")
		tasks.Use(s.authService.AuthMiddleware())
		tasks.Use(auth.RequirePermission(auth.PermRead))
		{
			tasks.GET("", s.listTasks)
			tasks.GET("/:id", s.getTask)
		}

		// ==================== CURRENT CONFIG ====================
		configGroup := v1.Group("")
		configGroup.Use(s.authService.AuthMiddleware())
		configGroup.Use(auth.RequirePermission(auth.PermRead))
		{
			configGroup.GET("/config", s.getCurrentConfig)
			configGroup.GET("/inspect", s.inspect)
		}

		// ==================== WEBSOCKET (PUBLIC - Auth via first message) ====================
		ws := v1.Group("/ws")
		{
			ws.GET("/live", s.wsLiveConnection)
			ws.GET("/status", s.authService.AuthMiddleware(), auth.RequirePermission(auth.PermRead), s.wsStatus)
		}
	}
}

// WebSocket handlers
func (s *Server) wsLiveConnection(c *gin.Context) {
	websocket.ServeWs(s.wsHub, c.Writer, c.Request)
}

func (s *Server) wsStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"connected_clients": s.wsHub.GetClientCount(),
	})
}

// Health check (public)
func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}
