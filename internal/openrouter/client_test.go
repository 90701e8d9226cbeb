package openrouter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(baseURL string) *Client {
	cfg := DefaultClientConfig()
	cfg.APIKey = "test-key"
	cfg.BaseURL = baseURL
	return NewClient(cfg)
}

func completionBody(content string) string {
	resp := map[string]interface{}{
		"id":    "gen-1",
		"model": "test-model",
		"choices": []map[string]interface{}{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestCompleteSendsExpectedRequest(t *testing.T) {
	var gotPath, gotAuth, gotReferer, gotTitle string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotReferer = r.Header.Get("HTTP-Referer")
		gotTitle = r.Header.Get("X-Title")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(completionBody("hello")))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	reply, err := client.Complete(context.Background(), "deepseek/deepseek-r1-0528:free", []Message{
		{Role: "user", Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if reply != "hello" {
		t.Errorf("Expected reply 'hello', got %q", reply)
	}

	if gotPath != "/chat/completions" {
		t.Errorf("Expected /chat/completions, got %s", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("Expected bearer auth, got %q", gotAuth)
	}
	if gotReferer != "https://rstudio-tech.com" {
		t.Errorf("Unexpected referer: %q", gotReferer)
	}
	if gotTitle != "RStudio Tech AI" {
		t.Errorf("Unexpected title header: %q", gotTitle)
	}

	if gotBody["model"] != "deepseek/deepseek-r1-0528:free" {
		t.Errorf("Unexpected model: %v", gotBody["model"])
	}
	if gotBody["temperature"] != 0.7 {
		t.Errorf("Expected temperature 0.7, got %v", gotBody["temperature"])
	}
	if gotBody["max_tokens"] != float64(2048) {
		t.Errorf("Expected max_tokens 2048, got %v", gotBody["max_tokens"])
	}
	if gotBody["stream"] != false {
		t.Errorf("Expected stream=false, got %v", gotBody["stream"])
	}
}

func TestCompleteEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionBody("")))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Complete(context.Background(), "m", []Message{{Role: "user", Content: "hi"}})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("Expected ErrEmptyCompletion, got %v", err)
	}
}

func TestCompleteNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"gen-1","choices":[]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Complete(context.Background(), "m", []Message{{Role: "user", Content: "hi"}})
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Errorf("Expected ErrEmptyCompletion, got %v", err)
	}
}

func TestCompleteUpstreamStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Complete(context.Background(), "m", []Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatal("Expected an error for 502")
	}
	if errors.Is(err, ErrEmptyCompletion) {
		t.Error("Status errors must be distinct from empty completions")
	}
}

func TestCompleteProviderErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":{"message":"rate limited","code":429}}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.Complete(context.Background(), "m", []Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatal("Expected an error for provider error payload")
	}
}

func TestCompleteContextCancellation(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	client := newTestClient(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, "m", []Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatal("Expected cancellation error")
	}
}

func TestIsConfigured(t *testing.T) {
	if NewClient(DefaultClientConfig()).IsConfigured() {
		t.Error("Client without API key must not be configured")
	}
	if !newTestClient("http://localhost").IsConfigured() {
		t.Error("Client with API key must be configured")
	}
}
