// ABOUTME: Transcription entity API for the structured store
// ABOUTME: Transient speech-to-text entries per room with application-driven cleanup

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SaveTranscription upserts a transcription entry. Streaming updates
// rewrite the same id until the entry is final.
func (d *DB) SaveTranscription(ctx context.Context, entry *Transcription) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	err := d.write(ctx, "save transcription", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transcriptions (id, chat_room_id, content, is_active, is_final, timestamp)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				content = excluded.content,
				is_active = excluded.is_active,
				is_final = excluded.is_final,
				timestamp = excluded.timestamp
		`,
			entry.ID,
			entry.ChatRoomID,
			entry.Content,
			entry.Active,
			entry.Final,
			entry.Timestamp.UTC().UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("upserting transcription: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.logger.Debug("saved transcription", "id", entry.ID, "chat_room_id", entry.ChatRoomID, "final", entry.Final)
	return nil
}

// GetTranscriptions returns a room's transcriptions ordered by
// timestamp ascending.
func (d *DB) GetTranscriptions(ctx context.Context, chatRoomID string) ([]*Transcription, error) {
	var entries []*Transcription
	err := d.read(ctx, "get transcriptions", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT id, chat_room_id, content, is_active, is_final, timestamp
			FROM transcriptions
			WHERE chat_room_id = ?
			ORDER BY timestamp ASC, id ASC
		`, chatRoomID)
		if err != nil {
			return fmt.Errorf("querying transcriptions: %w", err)
		}
		defer rows.Close()

		entries = entries[:0]
		for rows.Next() {
			var (
				entry     Transcription
				timestamp int64
			)
			if err := rows.Scan(
				&entry.ID,
				&entry.ChatRoomID,
				&entry.Content,
				&entry.Active,
				&entry.Final,
				&timestamp,
			); err != nil {
				return fmt.Errorf("scanning transcription row: %w", err)
			}
			entry.Timestamp = time.UnixMilli(timestamp).UTC()
			entries = append(entries, &entry)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteTranscriptions removes every transcription for a room. Deleting
// for a room with no entries is not an error.
func (d *DB) DeleteTranscriptions(ctx context.Context, chatRoomID string) error {
	return d.write(ctx, "delete transcriptions", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM transcriptions WHERE chat_room_id = ?`, chatRoomID); err != nil {
			return fmt.Errorf("deleting transcriptions: %w", err)
		}
		return nil
	})
}
