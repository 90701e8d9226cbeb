// Package openrouter is the client for the external completion
// provider. The provider is treated as an opaque, possibly-failing
// dependency: one synchronous call per chat turn, bounded by a
// timeout, no retries.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL is the OpenRouter API root
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// ErrEmptyCompletion is returned when the provider answers 2xx but the
// payload carries no usable reply text. Callers substitute a fallback
// message instead of failing the turn.
var ErrEmptyCompletion = errors.New("empty completion from provider")

// ClientConfig holds OpenRouter client configuration
type ClientConfig struct {
	APIKey      string        `json:"api_key"`
	BaseURL     string        `json:"base_url"`
	Referer     string        `json:"referer"`
	Title       string        `json:"title"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Timeout     time.Duration `json:"timeout"`
}

// DefaultClientConfig returns default configuration
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:     DefaultBaseURL,
		Referer:     "https://rstudio-tech.com",
		Title:       "RStudio Tech AI",
		Temperature: 0.7,
		MaxTokens:   2048,
		Timeout:     30 * time.Second,
	}
}

// Client is the OpenRouter API client
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
}

// NewClient creates a new OpenRouter client
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Message is a role/content pair sent upstream
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// completionRequest is the chat completions request payload
type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

// completionResponse is the chat completions response payload
type completionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error,omitempty"`
}

// Complete sends the full conversation history to the provider and
// returns the primary reply text. The provider is stateless per call
// and needs the entire history, not just the latest message.
func (c *Client) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	reqBody := completionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		Stream:      false,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	httpReq.Header.Set("HTTP-Referer", c.config.Referer)
	httpReq.Header.Set("X-Title", c.config.Title)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("provider returned status %d", resp.StatusCode)
	}

	var completion completionResponse
	if err := json.Unmarshal(respBody, &completion); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if completion.Error != nil {
		return "", fmt.Errorf("provider error %d: %s", completion.Error.Code, completion.Error.Message)
	}

	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}

	return completion.Choices[0].Message.Content, nil
}

// IsConfigured checks if the client has an API key
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}
