package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Alert rules (owned by the dashboard CRUD layer, read here)
			CREATE TABLE IF NOT EXISTS alert_rules (
				id TEXT PRIMARY KEY,
				name TEXT UNIQUE NOT NULL,
				type TEXT NOT NULL,
				severity TEXT NOT NULL,
				conditions_json TEXT NOT NULL,
				domain_pattern TEXT,
				cooldown_minutes INTEGER NOT NULL DEFAULT 0,
				notify_json TEXT NOT NULL,
				enabled INTEGER NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Suppression windows (owned by the dashboard CRUD layer)
			CREATE TABLE IF NOT EXISTS alert_suppressions (
				id TEXT PRIMARY KEY,
				name TEXT UNIQUE NOT NULL,
				active INTEGER NOT NULL DEFAULT 1,
				alert_type TEXT,
				severity TEXT,
				domain TEXT,
				starts_at DATETIME NOT NULL,
				ends_at DATETIME NOT NULL,
				recurrence_json TEXT,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Fired alerts (owned by the alert engine)
			CREATE TABLE IF NOT EXISTS alert_history (
				id TEXT PRIMARY KEY,
				type TEXT NOT NULL,
				severity TEXT NOT NULL,
				fingerprint TEXT NOT NULL,
				title TEXT NOT NULL,
				message TEXT NOT NULL,
				domain TEXT,
				current_value REAL NOT NULL,
				threshold_value REAL NOT NULL,
				metadata_json TEXT,
				status TEXT NOT NULL DEFAULT 'created',
				cooldown_until DATETIME NOT NULL,
				acknowledged_by TEXT,
				acknowledged_at DATETIME,
				acknowledged_note TEXT,
				resolved_by TEXT,
				resolved_at DATETIME,
				resolved_note TEXT,
				notification_sent INTEGER NOT NULL DEFAULT 0,
				notification_channels_json TEXT,
				notification_sent_at DATETIME,
				created_at DATETIME NOT NULL
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_rules_enabled ON alert_rules(enabled);
			CREATE INDEX IF NOT EXISTS idx_rules_type ON alert_rules(type);
			CREATE INDEX IF NOT EXISTS idx_suppressions_active ON alert_suppressions(active);
			CREATE INDEX IF NOT EXISTS idx_history_fingerprint_created
				ON alert_history(fingerprint, created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_history_status ON alert_history(status);
			CREATE INDEX IF NOT EXISTS idx_history_domain ON alert_history(domain);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
