package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tether/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added domain-key indexes on generated columns
const currentSchemaVersion = 1

// DefaultBackupRetention is the number of backups kept per backup type.
const DefaultBackupRetention = 10

// Store provides durable storage for tether collections.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db        *sql.DB
	stamp     *model.Stamper
	logger    *slog.Logger
	retention int
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the wall clock used to stamp records.
func WithClock(c model.Clock) Option {
	return func(s *Store) { s.stamp = model.NewStamper(c) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithBackupRetention sets how many backups are kept per type.
// Values below 1 are ignored.
func WithBackupRetention(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retention = n
		}
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times. Any failure is
// reported as a StorageUnavailable error.
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{
		stamp:     model.NewStamper(model.SystemClock{}),
		logger:    slog.Default(),
		retention: DefaultBackupRetention,
	}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, model.StorageUnavailable("store.open", fmt.Errorf("open database: %w", err))
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, model.StorageUnavailable("store.open", fmt.Errorf("connect to database: %w", err))
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, model.StorageUnavailable("store.open", fmt.Errorf("apply pragmas: %w", err))
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, model.StorageUnavailable("store.open", fmt.Errorf("apply schema: %w", err))
	}

	s.db = db
	s.logger.Debug("store opened", "path", path, "retention", s.retention)
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes the domain keys extracted from payloads.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_achievements_unlocked_at ON achievements_data(unlocked_at);
		CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON study_sessions(start_time);
		CREATE INDEX IF NOT EXISTS idx_sessions_skill_id ON study_sessions(skill_id);
		CREATE INDEX IF NOT EXISTS idx_backup_type ON backup_data(backup_type, timestamp);
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, rolling back on error. Failures are
// reported as TransactionFailure under op.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.TransactionFailure(op, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(tx); err != nil {
		return model.TransactionFailure(op, err)
	}
	if err := tx.Commit(); err != nil {
		return model.TransactionFailure(op, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// tableFor maps a collection to its table. Only known collection names ever
// reach SQL text.
func tableFor(op string, c model.Collection) (string, error) {
	if !c.Valid() {
		return "", model.NewError(model.CodeTransactionFailure, op, nil, "unknown collection %q", string(c))
	}
	return string(c), nil
}
