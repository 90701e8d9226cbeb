package vault

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"

	"rstudio-ai-chat/config"
)

// Secret names read at startup
const (
	SecretOpenRouter = "openrouter"
	SecretAdmin      = "admin"
)

// Client wraps the HashiCorp Vault client. Secrets live under the
// KV-v2 mount at <mount>/data/<secret_path>/<name>.
type Client struct {
	client *api.Client
	config config.VaultConfig
}

// NewClient creates a new Vault client. With vault disabled the client
// reports every secret as absent so config falls back to environment
// variables.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{CACert: cfg.CACert}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// Enabled reports whether the client talks to a real Vault
func (c *Client) Enabled() bool {
	return c.config.Enabled
}

// GetSecret reads a named secret's key/value fields. Returns
// (nil, nil) when the secret does not exist or vault is disabled.
func (c *Client) GetSecret(ctx context.Context, name string) (map[string]string, error) {
	if !c.config.Enabled {
		return nil, nil
	}

	path := fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, name)
	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secret %s: %w", name, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, nil
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, nil
	}

	out := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, nil
}

// GetSecretField reads a single field of a named secret, empty string
// when absent.
func (c *Client) GetSecretField(ctx context.Context, name, field string) (string, error) {
	data, err := c.GetSecret(ctx, name)
	if err != nil {
		return "", err
	}
	return data[field], nil
}
