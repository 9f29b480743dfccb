// Package sqlite is the durable side of the pipeline: schema migrations, the
// single-writer persistence worker, and the read queries behind the recorder
// API and the CSV exporter.
package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/yegors/skybridge/internal/config"
	"github.com/yegors/skybridge/pkg/logger"
	_ "modernc.org/sqlite"
)

// Store owns the SQLite handle shared by the persistence worker and the read
// queries. SQLite only supports one writer at a time, so the pool is pinned
// to a single connection and every write goes through the worker.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
}

// Open opens the database at cfg.Path, creating it if needed, and applies
// pending migrations.
func Open(cfg config.StorageConfig, log *logger.Logger) (*Store, error) {
	storeLogger := log.Named("sqlite")

	storeLogger.Info("Opening SQLite store",
		logger.String("path", cfg.Path))

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool limits
	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	// Set pragmas for better performance and concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA cache_size=10000"); err != nil {
		return nil, fmt.Errorf("failed to set cache size: %w", err)
	}

	if err := migrate(db, storeLogger); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:     db,
		logger: storeLogger,
	}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the database connection
func (s *Store) DB() *sql.DB {
	return s.db
}
