package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rstudio-ai-chat/internal/store"
)

const userColumns = `id, license_key, created_at, last_login, conversation_ids`

// CreateUser inserts a new user
func (r *Repository) CreateUser(ctx context.Context, user *store.User) error {
	query := `
	INSERT INTO users (` + userColumns + `)
	VALUES ($1, $2, $3, $4, $5)
	`
	ids := user.ConversationIDs
	if ids == nil {
		ids = []string{}
	}
	_, err := r.db.Pool.Exec(ctx, query,
		user.ID, user.LicenseKey, user.CreatedAt, user.LastLogin, ids,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by id, (nil, nil) when absent
func (r *Repository) GetUser(ctx context.Context, id string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var user store.User
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.LicenseKey, &user.CreatedAt, &user.LastLogin, &user.ConversationIDs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetUserByLicenseKey finds the user associated with a license key
func (r *Repository) GetUserByLicenseKey(ctx context.Context, key string) (*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE license_key = $1 LIMIT 1`

	var user store.User
	err := r.db.Pool.QueryRow(ctx, query, key).Scan(
		&user.ID, &user.LicenseKey, &user.CreatedAt, &user.LastLogin, &user.ConversationIDs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by license key: %w", err)
	}
	return &user, nil
}

// ListUsers retrieves all users, newest first
func (r *Repository) ListUsers(ctx context.Context) ([]*store.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		var user store.User
		if err := rows.Scan(
			&user.ID, &user.LicenseKey, &user.CreatedAt, &user.LastLogin, &user.ConversationIDs,
		); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &user)
	}
	return users, rows.Err()
}

// TouchLogin updates a user's last login timestamp
func (r *Repository) TouchLogin(ctx context.Context, id string, nowMs int64) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE users SET last_login = $2 WHERE id = $1`, id, nowMs)
	if err != nil {
		return fmt.Errorf("failed to touch login: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s not found", id)
	}
	return nil
}

// AddConversationID appends a saved conversation id to a user, once
func (r *Repository) AddConversationID(ctx context.Context, userID, conversationID string) error {
	query := `
	UPDATE users
	SET conversation_ids = array_append(conversation_ids, $2)
	WHERE id = $1 AND NOT ($2 = ANY(conversation_ids))
	`
	if _, err := r.db.Pool.Exec(ctx, query, userID, conversationID); err != nil {
		return fmt.Errorf("failed to add conversation id: %w", err)
	}
	return nil
}

// RemoveConversationID drops a saved conversation id from a user
func (r *Repository) RemoveConversationID(ctx context.Context, userID, conversationID string) error {
	query := `
	UPDATE users
	SET conversation_ids = array_remove(conversation_ids, $2)
	WHERE id = $1
	`
	if _, err := r.db.Pool.Exec(ctx, query, userID, conversationID); err != nil {
		return fmt.Errorf("failed to remove conversation id: %w", err)
	}
	return nil
}
