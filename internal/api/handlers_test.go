package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"rstudio-ai-chat/internal/auth"
	"rstudio-ai-chat/internal/chat"
	"rstudio-ai-chat/internal/license"
	"rstudio-ai-chat/internal/openrouter"
	"rstudio-ai-chat/internal/store"
)

const testAdminKey = "admin-test-key"

type stubProvider struct {
	reply string
	err   error
	calls int
}

func (s *stubProvider) Complete(_ context.Context, _ string, _ []openrouter.Message) (string, error) {
	s.calls++
	return s.reply, s.err
}

type testEnv struct {
	server   *Server
	backend  *store.Memory
	licenses *license.Service
	provider *stubProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := store.NewMemory()
	licenses := license.NewService(backend, nil, zerolog.Nop())
	provider := &stubProvider{reply: "Bonjour!"}
	orchestrator := chat.NewOrchestrator(backend, provider, licenses, nil, zerolog.Nop())

	server := NewServer(ServerConfig{Port: 0, Host: "127.0.0.1"}, Deps{
		Licenses:      licenses,
		Orchestrator:  orchestrator,
		Conversations: backend,
		Users:         backend,
		Saved:         backend,
		Stats:         backend,
		AdminGate:     auth.NewAdminGate(testAdminKey, ""),
	})

	return &testEnv{server: server, backend: backend, licenses: licenses, provider: provider}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var payload *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		payload = bytes.NewReader(data)
	} else {
		payload = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)

	var parsed map[string]interface{}
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
		}
	}
	return w, parsed
}

func (e *testEnv) seedLicense(t *testing.T, licType license.Type, maxUsage int) *license.License {
	t.Helper()
	lic := license.New(licType, maxUsage, 0)
	if err := e.backend.CreateLicense(context.Background(), lic); err != nil {
		t.Fatalf("Failed to seed license: %v", err)
	}
	return lic
}

func adminHeaders() map[string]string {
	return map[string]string{"X-Admin-Key": testAdminKey}
}

func TestPing(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.request(t, http.MethodGet, "/api/ping", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if body["message"] != "pong" {
		t.Errorf("Expected pong, got %v", body["message"])
	}
}

func TestChatWithoutLicense(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.request(t, http.MethodPost, "/api/chat",
		map[string]string{"message": "Salut"}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", w.Code, body)
	}

	msg, _ := body["message"].(map[string]interface{})
	if msg["content"] != "Bonjour!" {
		t.Errorf("Expected reply, got %v", msg["content"])
	}
	if body["conversationId"] == "" || body["conversationId"] == nil {
		t.Error("Expected a conversation id")
	}
}

func TestChatEmptyMessageRejected(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.request(t, http.MethodPost, "/api/chat",
		map[string]string{"message": ""}, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestChatWithLicenseMeters(t *testing.T) {
	env := newTestEnv(t)
	lic := env.seedLicense(t, license.TypeTrial, 0)

	w, _ := env.request(t, http.MethodPost, "/api/chat",
		map[string]string{"message": "Salut"},
		map[string]string{"X-License-Key": lic.Key})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	stored, _ := env.backend.GetLicense(context.Background(), lic.Key)
	if stored.UsageCount != 1 {
		t.Errorf("Expected usage count 1, got %d", stored.UsageCount)
	}
}

func TestChatUpstreamFailureDoesNotMeter(t *testing.T) {
	env := newTestEnv(t)
	env.provider.err = errors.New("gateway timeout")
	lic := env.seedLicense(t, license.TypeTrial, 0)

	w, body := env.request(t, http.MethodPost, "/api/chat",
		map[string]string{"message": "Salut"},
		map[string]string{"X-License-Key": lic.Key})
	if w.Code != http.StatusOK {
		t.Fatalf("Failed turns still answer 200, got %d", w.Code)
	}

	msg, _ := body["message"].(map[string]interface{})
	if msg["content"] != chat.ErrorReply {
		t.Errorf("Expected synthetic error reply, got %v", msg["content"])
	}

	stored, _ := env.backend.GetLicense(context.Background(), lic.Key)
	if stored.UsageCount != 0 {
		t.Errorf("Failed turn must not meter, got count %d", stored.UsageCount)
	}
}

func TestChatExhaustedLicenseRejectedBeforeProvider(t *testing.T) {
	env := newTestEnv(t)
	lic := env.seedLicense(t, license.TypeTrial, 1)
	ctx := context.Background()
	env.backend.IncrementUsage(ctx, lic.Key)

	w, body := env.request(t, http.MethodPost, "/api/chat",
		map[string]string{"message": "Salut"},
		map[string]string{"X-License-Key": lic.Key})
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", w.Code)
	}
	if body["valid"] != false {
		t.Errorf("Expected valid=false, got %v", body["valid"])
	}
	if env.provider.calls != 0 {
		t.Errorf("Provider must not be reached, got %d calls", env.provider.calls)
	}

	stored, _ := env.backend.GetLicense(ctx, lic.Key)
	if stored.UsageCount != 1 {
		t.Errorf("Exhausted license must not be metered further, got %d", stored.UsageCount)
	}
}

func TestChatInvalidLicenseKeyRejected(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.request(t, http.MethodPost, "/api/chat",
		map[string]string{"message": "Salut"},
		map[string]string{"X-License-Key": "no-such-key"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", w.Code)
	}
	if env.provider.calls != 0 {
		t.Errorf("Provider must not be reached, got %d calls", env.provider.calls)
	}
}

func TestValidateLicenseCreatesUser(t *testing.T) {
	env := newTestEnv(t)
	lic := env.seedLicense(t, license.TypeBasic, 0)

	w, body := env.request(t, http.MethodPost, "/api/auth/validate-license",
		map[string]string{"licenseKey": lic.Key}, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", w.Code, body)
	}

	user, _ := body["user"].(map[string]interface{})
	if user["id"] == nil || user["licenseKey"] != lic.Key {
		t.Fatalf("Expected user bound to license, got %v", user)
	}
	firstID := user["id"]

	// Second validation reuses the user
	_, body = env.request(t, http.MethodPost, "/api/auth/validate-license",
		map[string]string{"licenseKey": lic.Key}, nil)
	user, _ = body["user"].(map[string]interface{})
	if user["id"] != firstID {
		t.Errorf("Expected same user on revalidation, got %v vs %v", user["id"], firstID)
	}
}

func TestValidateLicenseRejectsUnknownKey(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.request(t, http.MethodPost, "/api/auth/validate-license",
		map[string]string{"licenseKey": "nope"}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", w.Code)
	}
	if body["valid"] != false {
		t.Errorf("Expected valid=false, got %v", body["valid"])
	}
}

func TestDeleteConversationUnknownID(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.request(t, http.MethodDelete, "/api/conversations/unknown", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestConversationLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	// Create via chat, then read back and delete
	_, body := env.request(t, http.MethodPost, "/api/chat",
		map[string]string{"message": "Salut"}, nil)
	convID, _ := body["conversationId"].(string)
	if convID == "" {
		t.Fatal("Expected conversation id from chat")
	}

	w, body := env.request(t, http.MethodGet, "/api/conversations/"+convID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	conv, _ := body["conversation"].(map[string]interface{})
	msgs, _ := conv["messages"].([]interface{})
	if len(msgs) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(msgs))
	}

	w, _ = env.request(t, http.MethodDelete, "/api/conversations/"+convID, nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 on delete, got %d", w.Code)
	}

	w, _ = env.request(t, http.MethodGet, "/api/conversations/"+convID, nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
}

func TestAdminRequiresKey(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.request(t, http.MethodGet, "/api/admin/licenses", nil, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", w.Code)
	}

	w, _ = env.request(t, http.MethodGet, "/api/admin/licenses", nil,
		map[string]string{"X-Admin-Key": "wrong"})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 with wrong key, got %d", w.Code)
	}
}

func TestAdminCreateLicense(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.request(t, http.MethodPost, "/api/admin/licenses",
		map[string]interface{}{"type": "premium"}, adminHeaders())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", w.Code, body)
	}

	lic, _ := body["license"].(map[string]interface{})
	if lic["type"] != "premium" {
		t.Errorf("Expected premium, got %v", lic["type"])
	}
	if lic["maxUsage"] != float64(10000) {
		t.Errorf("Expected default max usage 10000, got %v", lic["maxUsage"])
	}
	if lic["expiresAt"] == nil {
		t.Error("Expected default expiry for premium")
	}
}

func TestAdminCreateLicenseInvalidType(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.request(t, http.MethodPost, "/api/admin/licenses",
		map[string]interface{}{"type": "platinum"}, adminHeaders())
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestAdminBulkCreate(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.request(t, http.MethodPost, "/api/admin/licenses/bulk",
		map[string]interface{}{"type": "basic", "count": 5}, adminHeaders())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", w.Code, body)
	}
	if body["count"] != float64(5) {
		t.Errorf("Expected 5 licenses, got %v", body["count"])
	}

	lics, _ := env.backend.ListLicenses(context.Background())
	if len(lics) != 5 {
		t.Errorf("Expected 5 stored licenses, got %d", len(lics))
	}
}

func TestAdminBulkCreateOverCap(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.request(t, http.MethodPost, "/api/admin/licenses/bulk",
		map[string]interface{}{"type": "basic", "count": 101}, adminHeaders())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 over cap, got %d", w.Code)
	}

	lics, _ := env.backend.ListLicenses(context.Background())
	if len(lics) != 0 {
		t.Errorf("Over-cap request must not write anything, found %d", len(lics))
	}
}

func TestAdminSeedDemo(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.request(t, http.MethodPost, "/api/admin/licenses/seed-demo", nil, adminHeaders())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", w.Code, body)
	}

	lics, _ := body["licenses"].([]interface{})
	if len(lics) != 4 {
		t.Fatalf("Expected one license per type, got %d", len(lics))
	}

	types := make(map[string]bool)
	for _, item := range lics {
		lic, _ := item.(map[string]interface{})
		types[lic["type"].(string)] = true
	}
	for _, want := range []string{"trial", "basic", "premium", "unlimited"} {
		if !types[want] {
			t.Errorf("Missing seeded type %s", want)
		}
	}
}

func TestAdminUpdateLicense(t *testing.T) {
	env := newTestEnv(t)
	lic := env.seedLicense(t, license.TypeBasic, 0)

	w, body := env.request(t, http.MethodPut, "/api/admin/licenses/"+lic.Key,
		map[string]interface{}{"isActive": false, "maxUsage": 42}, adminHeaders())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %v", w.Code, body)
	}

	stored, _ := env.backend.GetLicense(context.Background(), lic.Key)
	if stored.IsActive {
		t.Error("Expected license to be deactivated")
	}
	if stored.MaxUsage != 42 {
		t.Errorf("Expected max usage 42, got %d", stored.MaxUsage)
	}
}

func TestAdminUpdateUnknownLicense(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.request(t, http.MethodPut, "/api/admin/licenses/unknown",
		map[string]interface{}{"isActive": false}, adminHeaders())
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestAdminDeleteLicense(t *testing.T) {
	env := newTestEnv(t)
	lic := env.seedLicense(t, license.TypeBasic, 0)

	w, _ := env.request(t, http.MethodDelete, "/api/admin/licenses/"+lic.Key, nil, adminHeaders())
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	w, _ = env.request(t, http.MethodDelete, "/api/admin/licenses/"+lic.Key, nil, adminHeaders())
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", w.Code)
	}
}

func TestAdminStats(t *testing.T) {
	env := newTestEnv(t)
	env.seedLicense(t, license.TypeTrial, 0)

	w, body := env.request(t, http.MethodGet, "/api/admin/stats", nil, adminHeaders())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	stats, _ := body["stats"].(map[string]interface{})
	types, _ := stats["licenseTypes"].(map[string]interface{})
	if types["trial"] != float64(1) {
		t.Errorf("Expected one trial license in stats, got %v", types["trial"])
	}
}

func TestModelsCatalog(t *testing.T) {
	env := newTestEnv(t)

	w, body := env.request(t, http.MethodGet, "/api/models", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	models, _ := body["models"].([]interface{})
	if len(models) != 5 {
		t.Errorf("Expected 5 models, got %d", len(models))
	}
	if body["defaultModel"] != chat.DefaultModel {
		t.Errorf("Expected default model %s, got %v", chat.DefaultModel, body["defaultModel"])
	}
}

func TestSavedConversationFlow(t *testing.T) {
	env := newTestEnv(t)
	lic := env.seedLicense(t, license.TypeBasic, 0)
	licHeader := map[string]string{"X-License-Key": lic.Key}

	// Register the user and start a conversation
	_, body := env.request(t, http.MethodPost, "/api/auth/validate-license",
		map[string]string{"licenseKey": lic.Key}, nil)
	user, _ := body["user"].(map[string]interface{})
	userID, _ := user["id"].(string)

	_, body = env.request(t, http.MethodPost, "/api/chat",
		map[string]string{"message": "garde ça"}, licHeader)
	convID, _ := body["conversationId"].(string)

	// Save requires a license
	w, _ := env.request(t, http.MethodPost, "/api/conversations/save",
		map[string]string{"userId": userID, "conversationId": convID}, nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without license, got %d", w.Code)
	}

	w, _ = env.request(t, http.MethodPost, "/api/conversations/save",
		map[string]string{"userId": userID, "conversationId": convID}, licHeader)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	w, body = env.request(t, http.MethodGet, "/api/users/"+userID+"/conversations", nil, licHeader)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	saved, _ := body["conversations"].([]interface{})
	if len(saved) != 1 {
		t.Fatalf("Expected 1 saved conversation, got %d", len(saved))
	}

	// A different user cannot delete it
	w, _ = env.request(t, http.MethodDelete, "/api/users/other/conversations/"+convID, nil, licHeader)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for foreign delete, got %d", w.Code)
	}

	w, _ = env.request(t, http.MethodDelete, "/api/users/"+userID+"/conversations/"+convID, nil, licHeader)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 on owner delete, got %d", w.Code)
	}
}
