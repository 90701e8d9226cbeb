package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// RunMigrations executes database migrations. Timestamp columns are
// BIGINT epoch milliseconds, matching the wire format.
func (db *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS licenses (
			key VARCHAR(64) PRIMARY KEY,
			id VARCHAR(64) NOT NULL,
			type VARCHAR(20) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT true,
			usage_count INTEGER NOT NULL DEFAULT 0,
			max_usage INTEGER NOT NULL,
			expires_at BIGINT,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_licenses_type ON licenses(type)`,
		`CREATE INDEX IF NOT EXISTS idx_licenses_active ON licenses(is_active)`,

		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			license_key VARCHAR(64) NOT NULL,
			created_at BIGINT NOT NULL,
			last_login BIGINT NOT NULL,
			conversation_ids TEXT[] NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_license_key ON users(license_key)`,
		`CREATE INDEX IF NOT EXISTS idx_users_last_login ON users(last_login)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id VARCHAR(64) PRIMARY KEY,
			title TEXT NOT NULL,
			messages JSONB NOT NULL DEFAULT '[]',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_updated ON conversations(updated_at DESC)`,

		`CREATE TABLE IF NOT EXISTS saved_conversations (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			title TEXT NOT NULL,
			messages JSONB NOT NULL DEFAULT '[]',
			is_private BOOLEAN NOT NULL DEFAULT true,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			saved_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_saved_conversations_user ON saved_conversations(user_id)`,
	}

	for _, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Repository provides access to all persistent stores
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}
