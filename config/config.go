package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	ServerConfig     ServerConfig     `json:"server"`
	DatabaseConfig   DatabaseConfig   `json:"database"`
	RedisConfig      RedisConfig      `json:"redis"`
	VaultConfig      VaultConfig      `json:"vault"`
	OpenRouterConfig OpenRouterConfig `json:"openrouter"`
	AdminConfig      AdminConfig      `json:"admin"`
	LoggingConfig    LoggingConfig    `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int    `json:"port"`
	Host           string `json:"host"`
	ProductionMode bool   `json:"production_mode"`
}

// DatabaseConfig holds PostgreSQL configuration. Disabled means the
// server runs on the in-memory store.
type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for license snapshot caching
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// OpenRouterConfig holds upstream completion provider configuration.
// The API key is never embedded in source: environment or Vault only.
type OpenRouterConfig struct {
	APIKey         string  `json:"-"`
	BaseURL        string  `json:"base_url"`
	Referer        string  `json:"referer"`
	Title          string  `json:"title"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	TimeoutSeconds int     `json:"timeout_seconds"`
}

// AdminConfig holds the administrative credential. KeyHash, when set,
// is a bcrypt hash and takes precedence over the plain Key.
type AdminConfig struct {
	Key     string `json:"-"`
	KeyHash string `json:"-"`
}

// LoggingConfig holds structured logging configuration
type LoggingConfig struct {
	Level       string `json:"level"`
	Output      string `json:"output"`
	JSONFormat  bool   `json:"json_format"`
	IncludeFile bool   `json:"include_file"`
}

// Load reads the optional config.json and applies environment variable
// overrides, which take precedence.
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Server
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", defaultInt(cfg.ServerConfig.Port, 3001))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", defaultStr(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("PRODUCTION_MODE", boolStr(cfg.ServerConfig.ProductionMode)) == "true"

	// Database
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DATABASE_ENABLED", boolStr(cfg.DatabaseConfig.Enabled)) == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DATABASE_HOST", defaultStr(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DATABASE_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DATABASE_USER", defaultStr(cfg.DatabaseConfig.User, "postgres"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DATABASE_NAME", defaultStr(cfg.DatabaseConfig.Database, "rstudio_chat"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DATABASE_SSLMODE", defaultStr(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolStr(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultStr(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Vault
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolStr(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", defaultStr(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", defaultStr(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", defaultStr(cfg.VaultConfig.SecretPath, "rstudio-ai-chat"))
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", boolStr(cfg.VaultConfig.TLSEnabled)) == "true"
	cfg.VaultConfig.CACert = getEnvOrDefault("VAULT_CACERT", cfg.VaultConfig.CACert)

	// OpenRouter
	cfg.OpenRouterConfig.APIKey = getEnvOrDefault("OPENROUTER_API_KEY", cfg.OpenRouterConfig.APIKey)
	cfg.OpenRouterConfig.BaseURL = getEnvOrDefault("OPENROUTER_BASE_URL", defaultStr(cfg.OpenRouterConfig.BaseURL, "https://openrouter.ai/api/v1"))
	cfg.OpenRouterConfig.Referer = getEnvOrDefault("OPENROUTER_REFERER", defaultStr(cfg.OpenRouterConfig.Referer, "https://rstudio-tech.com"))
	cfg.OpenRouterConfig.Title = getEnvOrDefault("OPENROUTER_TITLE", defaultStr(cfg.OpenRouterConfig.Title, "RStudio Tech AI"))
	cfg.OpenRouterConfig.TimeoutSeconds = getEnvIntOrDefault("OPENROUTER_TIMEOUT_SECONDS", defaultInt(cfg.OpenRouterConfig.TimeoutSeconds, 30))
	cfg.OpenRouterConfig.MaxTokens = getEnvIntOrDefault("OPENROUTER_MAX_TOKENS", defaultInt(cfg.OpenRouterConfig.MaxTokens, 2048))
	if cfg.OpenRouterConfig.Temperature == 0 {
		cfg.OpenRouterConfig.Temperature = 0.7
	}
	if v := os.Getenv("OPENROUTER_TEMPERATURE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.OpenRouterConfig.Temperature = parsed
		}
	}

	// Admin credential
	cfg.AdminConfig.Key = getEnvOrDefault("ADMIN_KEY", cfg.AdminConfig.Key)
	cfg.AdminConfig.KeyHash = getEnvOrDefault("ADMIN_KEY_HASH", cfg.AdminConfig.KeyHash)

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultStr(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", defaultStr(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"
}

func getEnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
