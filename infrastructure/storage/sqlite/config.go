// Package sqlite provides SQLite-backed rule and asset stores.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Config configures SQLite storage.
type Config struct {
	// DSN is the data source name (e.g., "file:rules.db?cache=shared&mode=rwc").
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// AutoMigrate creates tables if they don't exist.
	AutoMigrate bool

	// JournalMode sets the SQLite journal mode (e.g., "WAL").
	JournalMode string

	// BusyTimeout sets the busy timeout in milliseconds.
	BusyTimeout int
}

// Option configures SQLite storage.
type Option func(*Config)

// WithDSN sets the data source name.
func WithDSN(dsn string) Option {
	return func(c *Config) {
		c.DSN = dsn
	}
}

// WithPath sets a file database path.
func WithPath(path string) Option {
	return func(c *Config) {
		if path == ":memory:" {
			c.DSN = "file::memory:?cache=shared"
			c.JournalMode = ""
			return
		}
		c.DSN = "file:" + path + "?cache=shared&mode=rwc"
	}
}

// WithJournalMode sets the SQLite journal mode.
func WithJournalMode(mode string) Option {
	return func(c *Config) {
		c.JournalMode = mode
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		DSN:             "file:ruleup.db?cache=shared&mode=rwc",
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
		JournalMode:     "WAL",
		BusyTimeout:     5000,
	}
}

// Errors
var (
	ErrConnectionFailed = errors.New("sqlite: connection failed")
	ErrMigrationFailed  = errors.New("sqlite: migration failed")
)

const schema = `
	CREATE TABLE IF NOT EXISTS rules (
		id TEXT PRIMARY KEY,
		rule_id TEXT NOT NULL UNIQUE,
		revision INTEGER NOT NULL,
		prebuilt INTEGER NOT NULL,
		data BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rules_prebuilt ON rules(prebuilt);

	CREATE TABLE IF NOT EXISTS rule_assets (
		rule_id TEXT NOT NULL,
		version INTEGER NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (rule_id, version)
	);
`

// Open opens a SQLite database and creates the rule tables when AutoMigrate
// is set. The returned handle is shared by NewRuleStore and NewAssetStore.
func Open(cfg Config, opts ...Option) (*sql.DB, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	var pragmas []string
	if cfg.JournalMode != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode="+cfg.JournalMode)
	}
	if cfg.BusyTimeout > 0 {
		pragmas = append(pragmas, "PRAGMA busy_timeout="+strconv.Itoa(cfg.BusyTimeout))
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, errors.Join(ErrConnectionFailed, err)
		}
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	if cfg.AutoMigrate {
		if err := Migrate(context.Background(), db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

// Migrate creates the rule tables if they don't exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique ||
			se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// placeholders returns "?, ?, ..." for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
