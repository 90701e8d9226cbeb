// Package store defines the storage surfaces shared by the in-memory
// and PostgreSQL backends, so either can sit behind the API server.
package store

import (
	"context"

	"rstudio-ai-chat/internal/chat"
	"rstudio-ai-chat/internal/license"
)

// Backend is the full storage surface the server wires up. Both the
// in-memory store and the PostgreSQL repository satisfy it.
type Backend interface {
	license.Store
	chat.ConversationStore
	UserStore
	SavedConversationStore
	StatsProvider
}

// User is an identity created lazily on the first successful
// validation of a previously-unseen license key. Timestamps are epoch
// milliseconds.
type User struct {
	ID              string   `json:"id"`
	LicenseKey      string   `json:"licenseKey"`
	CreatedAt       int64    `json:"createdAt"`
	LastLogin       int64    `json:"lastLogin"`
	ConversationIDs []string `json:"conversationIds"`
}

// UserStore persists users. GetUser and GetUserByLicenseKey return
// (nil, nil) when absent.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByLicenseKey(ctx context.Context, key string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	TouchLogin(ctx context.Context, id string, nowMs int64) error
	AddConversationID(ctx context.Context, userID, conversationID string) error
	RemoveConversationID(ctx context.Context, userID, conversationID string) error
}

// SavedConversationStore persists conversations a user chose to keep.
type SavedConversationStore interface {
	SaveConversation(ctx context.Context, userID string, conv *chat.Conversation) error
	ListUserConversations(ctx context.Context, userID string) ([]*chat.SavedConversation, error)
	GetSavedConversation(ctx context.Context, id string) (*chat.SavedConversation, error)
	DeleteSavedConversation(ctx context.Context, id string) (bool, error)
}

// UsageStats is the aggregate view served to the admin dashboard.
type UsageStats struct {
	TotalUsers         int            `json:"totalUsers"`
	ActiveUsers        int            `json:"activeUsers"`
	TotalConversations int            `json:"totalConversations"`
	TotalMessages      int            `json:"totalMessages"`
	LicenseTypes       map[string]int `json:"licenseTypes"`
}

// StatsProvider computes usage statistics. ActiveUsers counts users
// whose last login falls inside a rolling 7-day window.
type StatsProvider interface {
	GetUsageStats(ctx context.Context) (*UsageStats, error)
}

// ActiveUserWindowMs is the rolling window for the active-user count
const ActiveUserWindowMs = 7 * 24 * 60 * 60 * 1000
