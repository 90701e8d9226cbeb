package database

import (
	"context"
	"fmt"

	"rstudio-ai-chat/internal/license"
	"rstudio-ai-chat/internal/store"
)

// GetUsageStats aggregates counters for the admin dashboard
func (r *Repository) GetUsageStats(ctx context.Context) (*store.UsageStats, error) {
	stats := &store.UsageStats{
		LicenseTypes: make(map[string]int),
	}
	for t := range license.DefaultLimits {
		stats.LicenseTypes[string(t)] = 0
	}

	if err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users`,
	).Scan(&stats.TotalUsers); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	cutoff := license.NowMillis() - store.ActiveUserWindowMs
	if err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM users WHERE last_login > $1`, cutoff,
	).Scan(&stats.ActiveUsers); err != nil {
		return nil, fmt.Errorf("failed to count active users: %w", err)
	}

	if err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(jsonb_array_length(messages)), 0) FROM conversations`,
	).Scan(&stats.TotalConversations, &stats.TotalMessages); err != nil {
		return nil, fmt.Errorf("failed to count conversations: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT type, COUNT(*) FROM licenses GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count licenses by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var licenseType string
		var count int
		if err := rows.Scan(&licenseType, &count); err != nil {
			return nil, fmt.Errorf("failed to scan license stats: %w", err)
		}
		stats.LicenseTypes[licenseType] = count
	}
	return stats, rows.Err()
}
