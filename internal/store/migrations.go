package store

import (
	"database/sql"
	"fmt"
)

type migration struct {
	version int
	name    string
	sql     string
}

// migrations are applied in order and recorded in schema_migrations.
// Append only; never edit a released entry.
var migrations = []migration{
	{
		version: 1,
		name:    "chat_sandboxes",
		sql: `
CREATE TABLE IF NOT EXISTS chat_sandboxes (
	chat_id         TEXT PRIMARY KEY,
	sandbox_id      TEXT,
	driver          TEXT NOT NULL DEFAULT '',
	expires_at      DATETIME,
	workspace_paths TEXT NOT NULL DEFAULT '[]',
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_sandboxes_expires_at ON chat_sandboxes(expires_at);
`,
	},
	{
		version: 2,
		name:    "chat_workspace_files",
		sql: `
CREATE TABLE IF NOT EXISTS chat_workspace_files (
	chat_id    TEXT NOT NULL,
	path       TEXT NOT NULL,
	content    TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (chat_id, path)
);
`,
	},
	{
		version: 3,
		name:    "chat_workspace_blobs",
		sql: `
CREATE TABLE IF NOT EXISTS chat_workspace_blobs (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	size       INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);
`,
	},
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("reading schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name) VALUES (?, ?)`, m.version, m.name); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	return v, err
}
