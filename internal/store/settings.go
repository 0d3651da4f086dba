// ABOUTME: Settings entity API for the structured store
// ABOUTME: Key-to-tagged-value entries with last-write-wins upsert semantics

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// GetSetting retrieves a setting by key. Returns ErrNotFound if absent.
func (d *DB) GetSetting(ctx context.Context, key string) (*Setting, error) {
	var setting *Setting
	err := d.read(ctx, "get setting", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT key, value_json, updated_at, version FROM settings WHERE key = ?`, key)
		s, err := scanSetting(row)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		setting = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return setting, nil
}

// SetSetting upserts a setting. The previous value, if any, is
// overwritten; settings never cascade.
func (d *DB) SetSetting(ctx context.Context, setting *Setting) error {
	if setting.Key == "" {
		return fmt.Errorf("setting key is required")
	}
	if setting.Version == 0 {
		setting.Version = 1
	}
	setting.UpdatedAt = time.Now().UTC()

	valueJSON, err := json.Marshal(setting.Value)
	if err != nil {
		return fmt.Errorf("encoding setting value: %w", err)
	}

	err = d.write(ctx, "set setting", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO settings (key, value_json, updated_at, version)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value_json = excluded.value_json,
				updated_at = excluded.updated_at,
				version = excluded.version
		`,
			setting.Key,
			string(valueJSON),
			setting.UpdatedAt.UnixMilli(),
			setting.Version,
		)
		if err != nil {
			return fmt.Errorf("upserting setting: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.logger.Debug("set setting", "key", setting.Key, "kind", setting.Value.Kind)
	return nil
}

// DeleteSetting removes a setting by key. Returns ErrNotFound if absent.
func (d *DB) DeleteSetting(ctx context.Context, key string) error {
	return d.write(ctx, "delete setting", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
		if err != nil {
			return fmt.Errorf("deleting setting: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("getting rows affected: %w", err)
		}
		if n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GetAllSettings returns every setting ordered by key.
func (d *DB) GetAllSettings(ctx context.Context) ([]*Setting, error) {
	var settings []*Setting
	err := d.read(ctx, "get all settings", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT key, value_json, updated_at, version FROM settings ORDER BY key`)
		if err != nil {
			return fmt.Errorf("querying settings: %w", err)
		}
		defer rows.Close()

		settings = settings[:0]
		for rows.Next() {
			s, err := scanSetting(rows)
			if err != nil {
				return err
			}
			settings = append(settings, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return settings, nil
}

func scanSetting(row interface{ Scan(dest ...any) error }) (*Setting, error) {
	var (
		setting   Setting
		valueJSON string
		updatedAt int64
	)
	err := row.Scan(&setting.Key, &valueJSON, &updatedAt, &setting.Version)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning setting row: %w", err)
	}

	if err := json.Unmarshal([]byte(valueJSON), &setting.Value); err != nil {
		return nil, fmt.Errorf("decoding setting %q value: %w", setting.Key, err)
	}
	setting.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &setting, nil
}
