package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rstudio-ai-chat/internal/chat"
	"rstudio-ai-chat/internal/license"
)

// PutConversation upserts the whole conversation document keyed by id
func (r *Repository) PutConversation(ctx context.Context, conv *chat.Conversation) error {
	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	query := `
	INSERT INTO conversations (id, title, messages, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE
	SET title = $2, messages = $3, updated_at = $5
	`
	if _, err := r.db.Pool.Exec(ctx, query,
		conv.ID, conv.Title, messages, conv.CreatedAt, conv.UpdatedAt,
	); err != nil {
		return fmt.Errorf("failed to put conversation: %w", err)
	}
	return nil
}

// GetConversation retrieves a conversation by id, (nil, nil) when absent
func (r *Repository) GetConversation(ctx context.Context, id string) (*chat.Conversation, error) {
	query := `SELECT id, title, messages, created_at, updated_at FROM conversations WHERE id = $1`

	var conv chat.Conversation
	var messages []byte
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&conv.ID, &conv.Title, &messages, &conv.CreatedAt, &conv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	if err := json.Unmarshal(messages, &conv.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return &conv, nil
}

// ListConversations retrieves conversations by updatedAt descending
func (r *Repository) ListConversations(ctx context.Context) ([]*chat.Conversation, error) {
	query := `SELECT id, title, messages, created_at, updated_at FROM conversations ORDER BY updated_at DESC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*chat.Conversation
	for rows.Next() {
		var conv chat.Conversation
		var messages []byte
		if err := rows.Scan(&conv.ID, &conv.Title, &messages, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if err := json.Unmarshal(messages, &conv.Messages); err != nil {
			return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
		}
		conversations = append(conversations, &conv)
	}
	return conversations, rows.Err()
}

// DeleteConversation removes a conversation, reporting whether it existed
func (r *Repository) DeleteConversation(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SaveConversation persists a private copy of a conversation for a user
func (r *Repository) SaveConversation(ctx context.Context, userID string, conv *chat.Conversation) error {
	messages, err := json.Marshal(conv.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}

	query := `
	INSERT INTO saved_conversations (id, user_id, title, messages, is_private, created_at, updated_at, saved_at)
	VALUES ($1, $2, $3, $4, true, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE
	SET user_id = $2, title = $3, messages = $4, updated_at = $6, saved_at = $7
	`
	if _, err := r.db.Pool.Exec(ctx, query,
		conv.ID, userID, conv.Title, messages, conv.CreatedAt, conv.UpdatedAt, license.NowMillis(),
	); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

const savedColumns = `id, user_id, title, messages, is_private, created_at, updated_at, saved_at`

// ListUserConversations returns a user's saved conversations, most
// recently updated first
func (r *Repository) ListUserConversations(ctx context.Context, userID string) ([]*chat.SavedConversation, error) {
	query := `SELECT ` + savedColumns + ` FROM saved_conversations WHERE user_id = $1 ORDER BY updated_at DESC`

	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list saved conversations: %w", err)
	}
	defer rows.Close()

	out := make([]*chat.SavedConversation, 0)
	for rows.Next() {
		sc, err := scanSaved(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// GetSavedConversation retrieves a saved conversation, (nil, nil) when absent
func (r *Repository) GetSavedConversation(ctx context.Context, id string) (*chat.SavedConversation, error) {
	query := `SELECT ` + savedColumns + ` FROM saved_conversations WHERE id = $1`

	row := r.db.Pool.QueryRow(ctx, query, id)
	sc, err := scanSaved(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sc, nil
}

// DeleteSavedConversation removes a saved conversation
func (r *Repository) DeleteSavedConversation(ctx context.Context, id string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM saved_conversations WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete saved conversation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanSaved(row pgx.Row) (*chat.SavedConversation, error) {
	var sc chat.SavedConversation
	var messages []byte
	err := row.Scan(
		&sc.ID, &sc.UserID, &sc.Title, &messages, &sc.IsPrivate,
		&sc.CreatedAt, &sc.UpdatedAt, &sc.SavedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan saved conversation: %w", err)
	}
	if err := json.Unmarshal(messages, &sc.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal messages: %w", err)
	}
	return &sc, nil
}
