package sqlite

import (
	"database/sql"
	"fmt"

	"github.com/yegors/skybridge/pkg/logger"
)

// A migration is one additive schema step. Steps are applied in order and
// recorded by name in the migrations table; a shipped step is never edited,
// and migrations never drop or rename.
type migration struct {
	name string
	up   string
}

var schemaMigrations = []migration{
	{
		name: "001_base_schema",
		up: `
			CREATE TABLE IF NOT EXISTS aircraft (
				address TEXT PRIMARY KEY,
				callsign TEXT,
				first_seen REAL,
				last_seen REAL
			);
			CREATE TABLE IF NOT EXISTS flight_session (
				id TEXT PRIMARY KEY,
				aircraft_address TEXT,
				start_time REAL,
				end_time REAL
			);
			CREATE INDEX IF NOT EXISTS idx_flight_session_aircraft ON flight_session(aircraft_address);
			CREATE TABLE IF NOT EXISTS path (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				session_id TEXT,
				address TEXT,
				ts REAL,
				ts_iso TEXT,
				lat REAL,
				lon REAL,
				alt REAL
			);
			CREATE INDEX IF NOT EXISTS idx_path_address_ts ON path(address, ts);
		`,
	},
	{
		name: "002_path_velocity",
		up: `
			ALTER TABLE path ADD COLUMN velocity REAL;
			ALTER TABLE path ADD COLUMN track REAL;
			ALTER TABLE path ADD COLUMN vertical_rate REAL;
			ALTER TABLE path ADD COLUMN type TEXT;
		`,
	},
}

// migrate applies every pending schema migration in order.
func migrate(db *sql.DB, log *logger.Logger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedMigrations(db)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}

	for _, m := range schemaMigrations {
		if applied[m.name] {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.name, err)
		}
		log.Info("Applied migration", logger.String("name", m.name))
	}
	return nil
}

func appliedMigrations(db *sql.DB) (map[string]bool, error) {
	rows, err := db.Query("SELECT name FROM migrations ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

func applyMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.up); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO migrations (name) VALUES (?)", m.name); err != nil {
		return err
	}
	return tx.Commit()
}
