// Package postgres provides PostgreSQL-backed rule and asset stores on pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/ruleup/domain/rule"
)

// Config configures the connection pool.
type Config struct {
	// DSN is a libpq connection string or postgres:// URL.
	DSN string

	MaxConns        int32
	MaxConnLifetime time.Duration
	ConnectTimeout  time.Duration

	// Schema holds the rule tables.
	Schema string

	// AutoMigrate creates tables if they don't exist.
	AutoMigrate bool
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		DSN:             "postgres://postgres@localhost:5432/ruleup?sslmode=disable",
		MaxConns:        10,
		MaxConnLifetime: time.Hour,
		ConnectTimeout:  10 * time.Second,
		Schema:          "public",
		AutoMigrate:     true,
	}
}

// Connect opens a pool and migrates the schema when AutoMigrate is set.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errors.Join(rule.ErrConnectionFailed, err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Join(rule.ErrConnectionFailed, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Join(rule.ErrConnectionFailed, err)
	}

	if cfg.AutoMigrate {
		if err := Migrate(ctx, pool, cfg.Schema); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return pool, nil
}

// Migrate creates the rule tables in schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	schema = schemaOrDefault(schema)
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s.rules (
			id TEXT PRIMARY KEY,
			rule_id TEXT NOT NULL UNIQUE,
			revision INTEGER NOT NULL,
			prebuilt BOOLEAN NOT NULL,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_rules_prebuilt ON %[1]s.rules (prebuilt);

		CREATE TABLE IF NOT EXISTS %[1]s.rule_assets (
			rule_id TEXT NOT NULL,
			version INTEGER NOT NULL,
			data JSONB NOT NULL,
			PRIMARY KEY (rule_id, version)
		);
	`, schema)
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func schemaOrDefault(schema string) string {
	if schema == "" {
		return "public"
	}
	return schema
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Join(rule.ErrOperationTimeout, err)
	}
	return err
}
