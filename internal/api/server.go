package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"rstudio-ai-chat/internal/auth"
	"rstudio-ai-chat/internal/chat"
	"rstudio-ai-chat/internal/events"
	"rstudio-ai-chat/internal/license"
	"rstudio-ai-chat/internal/logging"
	"rstudio-ai-chat/internal/store"
)

// RateLimiter provides simple in-memory rate limiting per client
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Server represents the HTTP API server
type Server struct {
	router       *gin.Engine
	httpServer   *http.Server
	config       ServerConfig
	licenses     *license.Service
	orchestrator *chat.Orchestrator
	convs        chat.ConversationStore
	users        store.UserStore
	saved        store.SavedConversationStore
	stats        store.StatsProvider
	eventBus     *events.EventBus
	adminGate    *auth.AdminGate
	rateLimiter  *RateLimiter // protects the upstream provider from request bursts
	healthCheck  func(ctx context.Context) error
	wsHub        *WSHub
	logger       *logging.Logger
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	Host           string
	ProductionMode bool
}

// Deps bundles the services the server routes to. Saved, Stats and
// HealthCheck may be nil when the corresponding backend is absent.
type Deps struct {
	Licenses      *license.Service
	Orchestrator  *chat.Orchestrator
	Conversations chat.ConversationStore
	Users         store.UserStore
	Saved         store.SavedConversationStore
	Stats         store.StatsProvider
	EventBus      *events.EventBus
	AdminGate     *auth.AdminGate
	HealthCheck   func(ctx context.Context) error
}

// NewServer creates a new API server
func NewServer(config ServerConfig, deps Deps) *Server {
	// Set Gin mode
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// Middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173", "http://localhost:3000", "https://rstudio-tech.com"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "X-License-Key", "X-Admin-Key"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))
	router.Use(traceMiddleware())

	server := &Server{
		router:       router,
		config:       config,
		licenses:     deps.Licenses,
		orchestrator: deps.Orchestrator,
		convs:        deps.Conversations,
		users:        deps.Users,
		saved:        deps.Saved,
		stats:        deps.Stats,
		eventBus:     deps.EventBus,
		adminGate:    deps.AdminGate,
		rateLimiter:  NewRateLimiter(30, time.Minute), // 30 chat turns per minute per client
		healthCheck:  deps.HealthCheck,
		logger:       logging.Default().WithComponent("api"),
	}

	if deps.EventBus != nil {
		server.wsHub = NewWSHub(deps.EventBus)
	}

	server.setupRoutes()

	return server
}

// traceMiddleware attaches a per-request trace logger to the request
// context so handlers and downstream services share one trace id
func traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, _ := logging.WithTraceContext(c.Request.Context())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// rateLimitMiddleware limits chat turns per client. The license key
// identifies a client when present, the remote address otherwise.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(auth.HeaderLicenseKey)
		if key == "" {
			key = c.ClientIP()
		}

		if !s.rateLimiter.Allow(key) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"success": false,
				"error":   "Rate limit exceeded. Please slow down.",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/ping", s.handlePing)
		api.GET("/models", s.handleListModels)

		// Chat works without a license too; a valid key gets metered
		api.POST("/chat", auth.OptionalLicense(s.licenses), s.rateLimitMiddleware(), s.handleChat)

		api.GET("/conversations", s.handleListConversations)
		api.POST("/conversations/new", s.handleNewConversation)
		api.GET("/conversations/:id", s.handleGetConversation)
		api.DELETE("/conversations/:id", s.handleDeleteConversation)

		// Auth surface: stateless license validation + user bookkeeping
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/validate-license", s.handleValidateLicense)
			authGroup.GET("/profile/:userId", s.handleProfile)
			authGroup.POST("/logout", s.handleLogout)
		}

		// Saved conversations require a valid license
		gated := api.Group("", auth.RequireLicense(s.licenses))
		{
			gated.POST("/conversations/save", s.handleSaveConversation)
			gated.GET("/users/:userId/conversations", s.handleListUserConversations)
			gated.DELETE("/users/:userId/conversations/:id", s.handleDeleteUserConversation)
			gated.POST("/users/:userId/conversations/:id/restore", s.handleRestoreConversation)
		}

		// Admin surface
		admin := api.Group("/admin", s.adminGate.RequireAdmin())
		{
			admin.GET("/stats", s.handleAdminStats)
			admin.GET("/licenses", s.handleAdminListLicenses)
			admin.POST("/licenses", s.handleAdminCreateLicense)
			admin.POST("/licenses/bulk", s.handleAdminBulkCreateLicenses)
			admin.POST("/licenses/seed-demo", s.handleAdminSeedDemoLicenses)
			admin.PUT("/licenses/:key", s.handleAdminUpdateLicense)
			admin.DELETE("/licenses/:key", s.handleAdminDeleteLicense)
			admin.GET("/users", s.handleAdminListUsers)
			if s.wsHub != nil {
				admin.GET("/ws", s.wsHub.HandleConnection)
			}
		}
	}
}

// Router exposes the underlying gin engine for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // upstream completions can be slow
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server...")

	if s.wsHub != nil {
		s.wsHub.Close()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	if s.healthCheck != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := s.healthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "unhealthy",
				"database": "unhealthy",
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": license.NowMillis(),
	})
}

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":   "pong",
		"timestamp": license.NowMillis(),
	})
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error":   message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
