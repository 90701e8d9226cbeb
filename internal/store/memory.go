package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"rstudio-ai-chat/internal/chat"
	"rstudio-ai-chat/internal/license"
)

// Memory is the process-lifetime storage backend: keyed maps with no
// eviction, suitable for single-instance demos. It implements
// license.Store, chat.ConversationStore, UserStore,
// SavedConversationStore and StatsProvider. All values are copied on
// the way in and out so callers never share map-backed state.
type Memory struct {
	mu            sync.RWMutex
	licenses      map[string]*license.License
	users         map[string]*User
	conversations map[string]*chat.Conversation
	saved         map[string]*chat.SavedConversation
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		licenses:      make(map[string]*license.License),
		users:         make(map[string]*User),
		conversations: make(map[string]*chat.Conversation),
		saved:         make(map[string]*chat.SavedConversation),
	}
}

// ----------------------------------------------------------------------------
// license.Store
// ----------------------------------------------------------------------------

// CreateLicense stores a new license
func (m *Memory) CreateLicense(_ context.Context, lic *license.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.licenses[lic.Key]; exists {
		return fmt.Errorf("license %s already exists", lic.Key)
	}
	m.licenses[lic.Key] = lic.Snapshot()
	return nil
}

// CreateLicenses stores a batch of licenses, all-or-nothing
func (m *Memory) CreateLicenses(_ context.Context, lics []*license.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, lic := range lics {
		if _, exists := m.licenses[lic.Key]; exists {
			return fmt.Errorf("license %s already exists", lic.Key)
		}
	}
	for _, lic := range lics {
		m.licenses[lic.Key] = lic.Snapshot()
	}
	return nil
}

// GetLicense returns a copy of the license, or (nil, nil) when absent
func (m *Memory) GetLicense(_ context.Context, key string) (*license.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lic, ok := m.licenses[key]
	if !ok {
		return nil, nil
	}
	return lic.Snapshot(), nil
}

// ListLicenses returns all licenses ordered by createdAt descending
func (m *Memory) ListLicenses(_ context.Context) ([]*license.License, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*license.License, 0, len(m.licenses))
	for _, lic := range m.licenses {
		out = append(out, lic.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// UpdateLicense replaces the stored license fields
func (m *Memory) UpdateLicense(_ context.Context, lic *license.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.licenses[lic.Key]; !ok {
		return fmt.Errorf("license %s not found", lic.Key)
	}
	lic.UpdatedAt = license.NowMillis()
	m.licenses[lic.Key] = lic.Snapshot()
	return nil
}

// DeleteLicense removes a license, reporting whether it existed
func (m *Memory) DeleteLicense(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.licenses[key]; !ok {
		return false, nil
	}
	delete(m.licenses, key)
	return true, nil
}

// IncrementUsage bumps the usage counter in place under the store
// lock, never read-modify-write from the request handler.
func (m *Memory) IncrementUsage(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	lic, ok := m.licenses[key]
	if !ok {
		return fmt.Errorf("license %s not found", key)
	}
	lic.UsageCount++
	lic.UpdatedAt = license.NowMillis()
	return nil
}

// ----------------------------------------------------------------------------
// UserStore
// ----------------------------------------------------------------------------

// CreateUser stores a new user
func (m *Memory) CreateUser(_ context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.ID]; exists {
		return fmt.Errorf("user %s already exists", user.ID)
	}
	m.users[user.ID] = copyUser(user)
	return nil
}

// GetUser returns a copy of the user, or (nil, nil) when absent
func (m *Memory) GetUser(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(user), nil
}

// GetUserByLicenseKey finds the user associated with a license key
func (m *Memory) GetUserByLicenseKey(_ context.Context, key string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, user := range m.users {
		if user.LicenseKey == key {
			return copyUser(user), nil
		}
	}
	return nil, nil
}

// ListUsers returns all users ordered by createdAt descending
func (m *Memory) ListUsers(_ context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*User, 0, len(m.users))
	for _, user := range m.users {
		out = append(out, copyUser(user))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// TouchLogin updates a user's last login timestamp
func (m *Memory) TouchLogin(_ context.Context, id string, nowMs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %s not found", id)
	}
	user.LastLogin = nowMs
	return nil
}

// AddConversationID records a saved conversation against a user
func (m *Memory) AddConversationID(_ context.Context, userID, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("user %s not found", userID)
	}
	for _, id := range user.ConversationIDs {
		if id == conversationID {
			return nil
		}
	}
	user.ConversationIDs = append(user.ConversationIDs, conversationID)
	return nil
}

// RemoveConversationID drops a saved conversation from a user
func (m *Memory) RemoveConversationID(_ context.Context, userID, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("user %s not found", userID)
	}
	kept := user.ConversationIDs[:0]
	for _, id := range user.ConversationIDs {
		if id != conversationID {
			kept = append(kept, id)
		}
	}
	user.ConversationIDs = kept
	return nil
}

// ----------------------------------------------------------------------------
// chat.ConversationStore
// ----------------------------------------------------------------------------

// PutConversation stores a conversation keyed by its id
func (m *Memory) PutConversation(_ context.Context, conv *chat.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conversations[conv.ID] = copyConversation(conv)
	return nil
}

// GetConversation returns a copy of the conversation, or (nil, nil)
func (m *Memory) GetConversation(_ context.Context, id string) (*chat.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, nil
	}
	return copyConversation(conv), nil
}

// ListConversations returns conversations ordered by updatedAt descending
func (m *Memory) ListConversations(_ context.Context) ([]*chat.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*chat.Conversation, 0, len(m.conversations))
	for _, conv := range m.conversations {
		out = append(out, copyConversation(conv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out, nil
}

// DeleteConversation removes a conversation, reporting whether it existed
func (m *Memory) DeleteConversation(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[id]; !ok {
		return false, nil
	}
	delete(m.conversations, id)
	return true, nil
}

// ----------------------------------------------------------------------------
// SavedConversationStore
// ----------------------------------------------------------------------------

// SaveConversation persists a private copy of a conversation for a user
func (m *Memory) SaveConversation(_ context.Context, userID string, conv *chat.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.saved[conv.ID] = &chat.SavedConversation{
		Conversation: *copyConversation(conv),
		UserID:       userID,
		IsPrivate:    true,
		SavedAt:      license.NowMillis(),
	}
	return nil
}

// ListUserConversations returns a user's saved conversations by
// updatedAt descending
func (m *Memory) ListUserConversations(_ context.Context, userID string) ([]*chat.SavedConversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*chat.SavedConversation, 0)
	for _, sc := range m.saved {
		if sc.UserID == userID {
			out = append(out, copySaved(sc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt > out[j].UpdatedAt })
	return out, nil
}

// GetSavedConversation returns a saved conversation, or (nil, nil)
func (m *Memory) GetSavedConversation(_ context.Context, id string) (*chat.SavedConversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sc, ok := m.saved[id]
	if !ok {
		return nil, nil
	}
	return copySaved(sc), nil
}

// DeleteSavedConversation removes a saved conversation
func (m *Memory) DeleteSavedConversation(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.saved[id]; !ok {
		return false, nil
	}
	delete(m.saved, id)
	return true, nil
}

// ----------------------------------------------------------------------------
// StatsProvider
// ----------------------------------------------------------------------------

// GetUsageStats aggregates counters for the admin dashboard
func (m *Memory) GetUsageStats(_ context.Context) (*UsageStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &UsageStats{
		TotalUsers:         len(m.users),
		TotalConversations: len(m.conversations),
		LicenseTypes:       make(map[string]int),
	}
	for t := range license.DefaultLimits {
		stats.LicenseTypes[string(t)] = 0
	}
	for _, lic := range m.licenses {
		stats.LicenseTypes[string(lic.Type)]++
	}

	cutoff := license.NowMillis() - ActiveUserWindowMs
	for _, user := range m.users {
		if user.LastLogin > cutoff {
			stats.ActiveUsers++
		}
	}
	for _, conv := range m.conversations {
		stats.TotalMessages += len(conv.Messages)
	}
	return stats, nil
}

func copyUser(u *User) *User {
	cp := *u
	cp.ConversationIDs = append([]string(nil), u.ConversationIDs...)
	return &cp
}

func copyConversation(c *chat.Conversation) *chat.Conversation {
	cp := *c
	cp.Messages = append([]chat.Message(nil), c.Messages...)
	return &cp
}

func copySaved(sc *chat.SavedConversation) *chat.SavedConversation {
	cp := *sc
	cp.Messages = append([]chat.Message(nil), sc.Messages...)
	return &cp
}
