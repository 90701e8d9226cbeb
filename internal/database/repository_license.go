package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"rstudio-ai-chat/internal/license"
)

const licenseColumns = `key, id, type, is_active, usage_count, max_usage, expires_at, created_at, updated_at`

// CreateLicense inserts a new license
func (r *Repository) CreateLicense(ctx context.Context, lic *license.License) error {
	query := `
	INSERT INTO licenses (` + licenseColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		lic.Key,
		lic.ID,
		lic.Type,
		lic.IsActive,
		lic.UsageCount,
		lic.MaxUsage,
		lic.ExpiresAt,
		lic.CreatedAt,
		lic.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create license: %w", err)
	}
	return nil
}

// CreateLicenses inserts a batch of licenses inside one transaction,
// so an over-cap or conflicting batch writes nothing.
func (r *Repository) CreateLicenses(ctx context.Context, lics []*license.License) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
	INSERT INTO licenses (` + licenseColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	for _, lic := range lics {
		if _, err := tx.Exec(ctx, query,
			lic.Key, lic.ID, lic.Type, lic.IsActive, lic.UsageCount,
			lic.MaxUsage, lic.ExpiresAt, lic.CreatedAt, lic.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to create license batch: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// GetLicense retrieves a license by its key, (nil, nil) when absent
func (r *Repository) GetLicense(ctx context.Context, key string) (*license.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE key = $1`

	var lic license.License
	err := r.db.Pool.QueryRow(ctx, query, key).Scan(
		&lic.Key,
		&lic.ID,
		&lic.Type,
		&lic.IsActive,
		&lic.UsageCount,
		&lic.MaxUsage,
		&lic.ExpiresAt,
		&lic.CreatedAt,
		&lic.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license by key: %w", err)
	}
	return &lic, nil
}

// ListLicenses retrieves all licenses, newest first
func (r *Repository) ListLicenses(ctx context.Context) ([]*license.License, error) {
	query := `SELECT ` + licenseColumns + ` FROM licenses ORDER BY created_at DESC`

	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list licenses: %w", err)
	}
	defer rows.Close()

	var licenses []*license.License
	for rows.Next() {
		var lic license.License
		if err := rows.Scan(
			&lic.Key, &lic.ID, &lic.Type, &lic.IsActive, &lic.UsageCount,
			&lic.MaxUsage, &lic.ExpiresAt, &lic.CreatedAt, &lic.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", err)
		}
		licenses = append(licenses, &lic)
	}
	return licenses, rows.Err()
}

// UpdateLicense updates the mutable fields of a license
func (r *Repository) UpdateLicense(ctx context.Context, lic *license.License) error {
	lic.UpdatedAt = license.NowMillis()

	query := `
	UPDATE licenses
	SET type = $2, is_active = $3, usage_count = $4, max_usage = $5,
	    expires_at = $6, updated_at = $7
	WHERE key = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query,
		lic.Key, lic.Type, lic.IsActive, lic.UsageCount,
		lic.MaxUsage, lic.ExpiresAt, lic.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update license: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("license %s not found", lic.Key)
	}
	return nil
}

// DeleteLicense removes a license, reporting whether it existed
func (r *Repository) DeleteLicense(ctx context.Context, key string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM licenses WHERE key = $1`, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete license: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IncrementUsage bumps the usage counter with a native in-place
// increment, so concurrent chat turns on one license never lose updates.
func (r *Repository) IncrementUsage(ctx context.Context, key string) error {
	query := `
	UPDATE licenses
	SET usage_count = usage_count + 1, updated_at = $2
	WHERE key = $1
	`
	tag, err := r.db.Pool.Exec(ctx, query, key, license.NowMillis())
	if err != nil {
		return fmt.Errorf("failed to increment usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("license %s not found", key)
	}
	return nil
}
