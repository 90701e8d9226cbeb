package chat

import (
	"strings"
	"testing"
)

func TestDeriveTitle(t *testing.T) {
	cases := []struct {
		name    string
		message string
		want    string
	}{
		{"empty passes through", "", ""},
		{"short message kept whole", "Bonjour", "Bonjour"},
		{"exactly 50 chars kept whole", strings.Repeat("a", 50), strings.Repeat("a", 50)},
		{"51 chars truncated", strings.Repeat("a", 51), strings.Repeat("a", 50) + "..."},
	}

	for _, tc := range cases {
		if got := DeriveTitle(tc.message); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestDeriveTitleMultibyte(t *testing.T) {
	// 60 two-byte runes must cut at 50 runes without splitting one
	message := strings.Repeat("é", 60)
	got := DeriveTitle(message)

	want := strings.Repeat("é", 50) + "..."
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	conv := NewConversation("t")

	conv.Append(RoleUser, "one")
	conv.Append(RoleAssistant, "two")
	conv.Append(RoleUser, "three")

	if len(conv.Messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(conv.Messages))
	}
	for i, want := range []string{"one", "two", "three"} {
		if conv.Messages[i].Content != want {
			t.Errorf("Message %d: expected %q, got %q", i, want, conv.Messages[i].Content)
		}
	}
	if conv.Messages[0].Role != RoleUser || conv.Messages[1].Role != RoleAssistant {
		t.Error("Roles must alternate as appended")
	}
}

func TestAppendBumpsUpdatedAt(t *testing.T) {
	conv := NewConversation("t")
	conv.UpdatedAt = 0

	msg := conv.Append(RoleUser, "hi")
	if conv.UpdatedAt == 0 {
		t.Error("Expected updatedAt to be bumped on append")
	}
	if msg.ID == "" || msg.Timestamp == 0 {
		t.Errorf("Expected populated message, got %+v", msg)
	}
}

func TestNewConversationDefaults(t *testing.T) {
	conv := NewConversation("")
	if conv.Title != DefaultTitle {
		t.Errorf("Expected default title %q, got %q", DefaultTitle, conv.Title)
	}
	if conv.ID == "" {
		t.Error("Expected a generated id")
	}
	if conv.Messages == nil || len(conv.Messages) != 0 {
		t.Errorf("Expected empty message slice, got %v", conv.Messages)
	}
}

func TestFreeModelsCatalog(t *testing.T) {
	if len(FreeModels) != 5 {
		t.Fatalf("Expected 5 free models, got %d", len(FreeModels))
	}

	foundDefault := false
	for _, m := range FreeModels {
		if m.ID == DefaultModel {
			foundDefault = true
		}
		if !m.Free {
			t.Errorf("Model %s should be marked free", m.ID)
		}
	}
	if !foundDefault {
		t.Errorf("Default model %s missing from catalog", DefaultModel)
	}
}
