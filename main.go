package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"rstudio-ai-chat/config"
	"rstudio-ai-chat/internal/api"
	"rstudio-ai-chat/internal/auth"
	"rstudio-ai-chat/internal/cache"
	"rstudio-ai-chat/internal/chat"
	"rstudio-ai-chat/internal/database"
	"rstudio-ai-chat/internal/events"
	"rstudio-ai-chat/internal/license"
	"rstudio-ai-chat/internal/logging"
	"rstudio-ai-chat/internal/openrouter"
	"rstudio-ai-chat/internal/store"
	"rstudio-ai-chat/internal/vault"
)

func main() {
	// .env is optional; real deployments inject environment directly
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	zlog := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize event bus
	eventBus := events.NewEventBus()
	logger.Info("Event bus initialized")

	// Optional Vault secret resolution. Env values win only when Vault
	// has nothing for the field.
	if cfg.VaultConfig.Enabled {
		vaultClient, err := vault.NewClient(cfg.VaultConfig)
		if err != nil {
			logger.Fatal("Failed to initialize Vault client", "error", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		resolveSecrets(ctx, vaultClient, cfg, logger)
		cancel()
	}

	// Storage backend: PostgreSQL when enabled, in-memory otherwise
	var (
		backend     store.Backend
		healthCheck func(ctx context.Context) error
	)
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
		})
		if err != nil {
			logger.Fatal("Failed to connect to database", "error", err)
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := db.RunMigrations(ctx); err != nil {
			cancel()
			logger.Fatal("Failed to run migrations", "error", err)
		}
		cancel()

		repo := database.NewRepository(db)
		backend = repo
		healthCheck = repo.Ping
		logger.Info("PostgreSQL storage initialized", "host", cfg.DatabaseConfig.Host)
	} else {
		backend = store.NewMemory()
		logger.Info("In-memory storage initialized (data is process-lifetime)")
	}

	// Optional Redis license cache; degraded cache still serves misses
	var licenseCache license.Cache
	if cfg.RedisConfig.Enabled {
		cacheService, err := cache.NewService(cfg.RedisConfig)
		if err != nil {
			logger.Warn("Redis cache unavailable, continuing without", "error", err)
		} else {
			licenseCache = cacheService
			defer cacheService.Close()
			logger.Info("Redis license cache initialized", "address", cfg.RedisConfig.Address)
		}
	}

	licenseService := license.NewService(backend, licenseCache, zlog.With().Str("component", "license").Logger())

	// Upstream provider
	provider := openrouter.NewClient(&openrouter.ClientConfig{
		APIKey:      cfg.OpenRouterConfig.APIKey,
		BaseURL:     cfg.OpenRouterConfig.BaseURL,
		Referer:     cfg.OpenRouterConfig.Referer,
		Title:       cfg.OpenRouterConfig.Title,
		Temperature: cfg.OpenRouterConfig.Temperature,
		MaxTokens:   cfg.OpenRouterConfig.MaxTokens,
		Timeout:     time.Duration(cfg.OpenRouterConfig.TimeoutSeconds) * time.Second,
	})
	if !provider.IsConfigured() {
		logger.Warn("OPENROUTER_API_KEY not set, chat turns will fail upstream")
	}

	orchestrator := chat.NewOrchestrator(backend, provider, licenseService, eventBus,
		zlog.With().Str("component", "chat").Logger())

	adminGate := auth.NewAdminGate(cfg.AdminConfig.Key, cfg.AdminConfig.KeyHash)
	if !adminGate.Configured() {
		logger.Warn("No admin credential configured, admin endpoints are disabled")
	}

	server := api.NewServer(api.ServerConfig{
		Port:           cfg.ServerConfig.Port,
		Host:           cfg.ServerConfig.Host,
		ProductionMode: cfg.ServerConfig.ProductionMode,
	}, api.Deps{
		Licenses:      licenseService,
		Orchestrator:  orchestrator,
		Conversations: backend,
		Users:         backend,
		Saved:         backend,
		Stats:         backend,
		EventBus:      eventBus,
		AdminGate:     adminGate,
		HealthCheck:   healthCheck,
	})

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("HTTP server failed", "error", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}

	logger.Info("Shutdown complete")
}

// resolveSecrets fills credential fields from Vault when present
func resolveSecrets(ctx context.Context, vc *vault.Client, cfg *config.Config, logger *logging.Logger) {
	if key, err := vc.GetSecretField(ctx, vault.SecretOpenRouter, "api_key"); err != nil {
		logger.Warn("Vault lookup for OpenRouter key failed", "error", err)
	} else if key != "" {
		cfg.OpenRouterConfig.APIKey = key
		logger.Info("OpenRouter API key loaded from Vault")
	}

	if hash, err := vc.GetSecretField(ctx, vault.SecretAdmin, "key_hash"); err != nil {
		logger.Warn("Vault lookup for admin credential failed", "error", err)
	} else if hash != "" {
		cfg.AdminConfig.KeyHash = hash
		logger.Info("Admin credential hash loaded from Vault")
	}
}
