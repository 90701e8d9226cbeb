package chat

import (
	"github.com/google/uuid"

	"rstudio-ai-chat/internal/license"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message. Timestamps are epoch milliseconds.
type Message struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Conversation is an ordered, append-only sequence of messages sharing
// one id. Insertion order is chronological order.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt int64     `json:"createdAt"`
	UpdatedAt int64     `json:"updatedAt"`
}

// SavedConversation is a conversation persisted to long-term storage
// on behalf of a user.
type SavedConversation struct {
	Conversation
	UserID    string `json:"userId"`
	IsPrivate bool   `json:"isPrivate"`
	SavedAt   int64  `json:"savedAt"`
}

// DefaultTitle is used for conversations created without a first message
const DefaultTitle = "Nouveau Chat"

const titleMaxLen = 50

// DeriveTitle builds a conversation title from its first user message:
// the message itself up to 50 characters, with an ellipsis marker when
// truncated.
func DeriveTitle(message string) string {
	runes := []rune(message)
	if len(runes) <= titleMaxLen {
		return message
	}
	return string(runes[:titleMaxLen]) + "..."
}

// NewConversation creates an empty conversation with a generated id.
func NewConversation(title string) *Conversation {
	if title == "" {
		title = DefaultTitle
	}
	now := license.NowMillis()
	return &Conversation{
		ID:        uuid.New().String(),
		Title:     title,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds a message to the conversation and bumps updatedAt.
func (c *Conversation) Append(role, content string) Message {
	msg := Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: license.NowMillis(),
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = msg.Timestamp
	return msg
}

// Model describes an upstream model offered to the client.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Free        bool   `json:"free"`
}

// DefaultModel is used when a chat request does not name one.
const DefaultModel = "deepseek/deepseek-r1-0528:free"

// FreeModels is the catalog of free OpenRouter models exposed by
// GET /api/models.
var FreeModels = []Model{
	{
		ID:          "deepseek/deepseek-r1-0528:free",
		Name:        "DeepSeek R1",
		Description: "Modèle de raisonnement avancé de DeepSeek",
		Free:        true,
	},
	{
		ID:          "qwen/qwen3-8b:free",
		Name:        "Qwen 3 8B",
		Description: "Modèle efficace 8B d'Alibaba",
		Free:        true,
	},
	{
		ID:          "qwen/qwen3-14b:free",
		Name:        "Qwen 3 14B",
		Description: "Modèle plus puissant 14B d'Alibaba",
		Free:        true,
	},
	{
		ID:          "mistralai/devstral-small:free",
		Name:        "Devstral Small",
		Description: "Modèle de développement axé code de Mistral",
		Free:        true,
	},
	{
		ID:          "google/gemma-3n-e4b-it:free",
		Name:        "Gemma 3n",
		Description: "Modèle instruction-tuned de Google",
		Free:        true,
	},
}
