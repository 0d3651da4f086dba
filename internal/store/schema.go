// ABOUTME: Versioned schema definition for the structured store
// ABOUTME: Upgrade steps are pure data, applied strictly in version order on open

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// schemaVersion is the schema version this build expects.
const schemaVersion = 2

// metadata keys used by the store itself.
const metaSchemaVersion = "schema_version"

// upgradeStep is one versioned slice of DDL. Every statement must be
// idempotent so a step can re-run against a partially-upgraded store.
type upgradeStep struct {
	version int
	stmts   []string
}

var upgradeSteps = []upgradeStep{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS chat_rooms (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				last_message_at INTEGER,
				is_active INTEGER NOT NULL DEFAULT 0,
				config_json TEXT,
				session_handle TEXT,
				session_last_connected INTEGER,
				session_resumable INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_rooms_created ON chat_rooms(created_at)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_rooms_last_message ON chat_rooms(last_message_at)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_rooms_active ON chat_rooms(is_active)`,

			`CREATE TABLE IF NOT EXISTS messages (
				id TEXT PRIMARY KEY,
				chat_room_id TEXT NOT NULL,
				type TEXT NOT NULL DEFAULT 'user',
				content TEXT NOT NULL,
				timestamp INTEGER NOT NULL,
				audio_ref TEXT,
				transcript TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(chat_room_id)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_room_time ON messages(chat_room_id, timestamp)`,

			`CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value_json TEXT NOT NULL,
				updated_at INTEGER NOT NULL,
				version INTEGER NOT NULL DEFAULT 1
			)`,
		},
	},
	{
		version: 2,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS transcriptions (
				id TEXT PRIMARY KEY,
				chat_room_id TEXT NOT NULL,
				content TEXT NOT NULL,
				is_active INTEGER NOT NULL DEFAULT 0,
				is_final INTEGER NOT NULL DEFAULT 0,
				timestamp INTEGER NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_transcriptions_room ON transcriptions(chat_room_id)`,
			`CREATE INDEX IF NOT EXISTS idx_transcriptions_room_time ON transcriptions(chat_room_id, timestamp)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_type ON messages(type)`,
		},
	},
}

// applySchema brings the database up to schemaVersion. Each pending
// step runs in its own transaction together with the version bump, so
// a failed step leaves the recorded version untouched.
func applySchema(db *sql.DB, logger *slog.Logger) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating metadata table: %w", err)
	}

	current, err := readSchemaVersion(db)
	if err != nil {
		return err
	}
	if current > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, schemaVersion)
	}

	for _, step := range upgradeSteps {
		if step.version <= current {
			continue
		}
		if err := applyStep(db, step); err != nil {
			return fmt.Errorf("applying schema version %d: %w", step.version, err)
		}
		logger.Info("applied schema upgrade", "version", step.version)
		current = step.version
	}
	return nil
}

func applyStep(db *sql.DB, step upgradeStep) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range step.stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(
		`INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		metaSchemaVersion, strconv.Itoa(step.version), time.Now().UnixMilli(),
	); err != nil {
		return err
	}
	return tx.Commit()
}

func readSchemaVersion(db *sql.DB) (int, error) {
	var raw string
	err := db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, metaSchemaVersion).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing schema version %q: %w", raw, err)
	}
	return v, nil
}
