// Package sqlite is the Index Store: a modernc.org/sqlite-backed relational
// store with FTS5 shadow tables, ordered idempotent migrations, a FIFO
// named-lock registry, and a small parameterized query builder, matching
// the teacher's storage/sqlite package shape and pragma set.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"maragu.dev/goqite"
	_ "modernc.org/sqlite"

	"github.com/driftweb/crawlindex/internal/common"
)

// Store is the sqlite-backed Index Store.
type Store struct {
	db     *sql.DB
	logger arbor.ILogger
	config common.StorageConfig

	locker *Locker
}

// Open creates (or opens) the index database at config.Path, applies
// pragmas, initializes the goqite queue schema used by internal/queue, and
// runs pending migrations.
func Open(logger arbor.ILogger, config common.StorageConfig) (*Store, error) {
	dir := filepath.Dir(config.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	if config.ResetOnStartup {
		if err := resetDatabase(logger, config.Path); err != nil {
			return nil, fmt.Errorf("failed to reset database: %w", err)
		}
	}

	logger.Debug().Str("path", config.Path).Msg("opening index store")

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite does not handle concurrent writers well; a single connection
	// serializes all access and lets the named-lock registry above it
	// express the real concurrency model (per-archive, not per-connection).
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, logger: logger, config: config, locker: NewLocker()}

	if err := goqite.Setup(context.Background(), db); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			db.Close()
			return nil, fmt.Errorf("failed to initialize queue schema: %w", err)
		}
	}

	if err := s.configure(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info().Str("path", config.Path).Msg("index store ready")
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		fmt.Sprintf("PRAGMA cache_size = -%d", s.config.CacheSizeKB),
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.config.BusyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

// DB returns the underlying *sql.DB for packages (like internal/queue)
// that need direct access to the shared connection.
func (s *Store) DB() *sql.DB { return s.db }

// Locker returns the store's named-lock registry.
func (s *Store) Locker() *Locker { return s.locker }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// resetDatabase deletes the database file and its WAL/SHM siblings. Only
// ever invoked when StorageConfig.ResetOnStartup is set, which is a
// development-only escape hatch.
func resetDatabase(logger arbor.ILogger, dbPath string) error {
	logger.Warn().Str("path", dbPath).Msg("resetting index store (deleting all data)")

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", path, err)
		}
	}
	return nil
}
