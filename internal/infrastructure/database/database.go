package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/opencanvas/canvas-core/internal/infrastructure/logging"
)

// DB wraps the SQLite connection used for the sync ledger.
//
// A single write connection is enforced at the pool level because SQLite
// only supports one writer at a time. WAL mode keeps readers unblocked
// while the sync engine records run history.
type DB struct {
	conn   *sql.DB
	path   string
	logger *logging.Logger
}

// Config holds the database settings needed to open a connection.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// Open creates the database file if needed and establishes a connection
// with WAL journaling and foreign keys enabled.
func Open(cfg Config, logger *logging.Logger) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database: path is required")
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("database: create directory %s: %w", dir, err)
	}

	busyMs := int64(5000)
	if cfg.BusyTimeout > 0 {
		busyMs = cfg.BusyTimeout.Milliseconds()
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=%d", cfg.Path, busyMs)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", cfg.Path, err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 1
	}
	conn.SetMaxOpenConns(maxOpen)
	if cfg.MaxIdleConns > 0 {
		conn.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("database: ping %s: %w", cfg.Path, err)
	}

	db := &DB{
		conn:   conn,
		path:   cfg.Path,
		logger: logger,
	}

	logger.Info("database opened", "path", cfg.Path, "max_open_conns", maxOpen)
	return db, nil
}

// Close releases the underlying connection pool.
func (db *DB) Close() error {
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("database: close: %w", err)
	}
	db.logger.Info("database closed", "path", db.path)
	return nil
}

// Path returns the filesystem location of the database file.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck verifies the connection is alive and the file is writable.
func (db *DB) HealthCheck(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("database: health ping: %w", err)
	}

	var result int
	if err := db.conn.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database: health query: %w", err)
	}
	return nil
}

// Stats returns connection pool statistics for diagnostics.
func (db *DB) Stats() sql.DBStats {
	return db.conn.Stats()
}

// ExecContext executes a statement that does not return rows.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.conn.ExecContext(ctx, query, args...)
}

// QueryContext executes a statement that returns rows.
func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext executes a statement expected to return at most one row.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.conn.QueryRowContext(ctx, query, args...)
}

// BeginTx starts a transaction with the given options.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	return db.conn.BeginTx(ctx, opts)
}
