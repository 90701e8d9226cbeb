package config

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ServerConfig.Port != 3001 {
		t.Errorf("Expected default port 3001, got %d", cfg.ServerConfig.Port)
	}
	if cfg.OpenRouterConfig.BaseURL != "https://openrouter.ai/api/v1" {
		t.Errorf("Unexpected default base URL: %s", cfg.OpenRouterConfig.BaseURL)
	}
	if cfg.OpenRouterConfig.Temperature != 0.7 {
		t.Errorf("Expected default temperature 0.7, got %v", cfg.OpenRouterConfig.Temperature)
	}
	if cfg.OpenRouterConfig.MaxTokens != 2048 {
		t.Errorf("Expected default max tokens 2048, got %d", cfg.OpenRouterConfig.MaxTokens)
	}
	if cfg.DatabaseConfig.Enabled {
		t.Error("Database must be disabled by default")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WEB_PORT", "8080")
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("OPENROUTER_TEMPERATURE", "0.2")
	t.Setenv("ADMIN_KEY_HASH", "$2a$10$fake")
	t.Setenv("DATABASE_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.ServerConfig.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.ServerConfig.Port)
	}
	if cfg.OpenRouterConfig.APIKey != "sk-test" {
		t.Errorf("Expected API key from env, got %q", cfg.OpenRouterConfig.APIKey)
	}
	if cfg.OpenRouterConfig.Temperature != 0.2 {
		t.Errorf("Expected temperature 0.2, got %v", cfg.OpenRouterConfig.Temperature)
	}
	if cfg.AdminConfig.KeyHash != "$2a$10$fake" {
		t.Errorf("Expected admin hash from env, got %q", cfg.AdminConfig.KeyHash)
	}
	if !cfg.DatabaseConfig.Enabled {
		t.Error("Expected database enabled from env")
	}
}

func TestCredentialsNeverSerialized(t *testing.T) {
	// The JSON tags must keep secrets out of any marshaled config
	cfg := &Config{}
	cfg.OpenRouterConfig.APIKey = "sk-secret"
	cfg.AdminConfig.Key = "admin-secret"

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	for _, secret := range []string{"sk-secret", "admin-secret"} {
		if strings.Contains(string(data), secret) {
			t.Errorf("Secret %q leaked into serialized config", secret)
		}
	}
}
