// ABOUTME: Message entity API for the structured store
// ABOUTME: Adds, in-place updates, paginated reads, and deletes of chat turns

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const messageColumns = `id, chat_room_id, type, content, timestamp, audio_ref, transcript`

// AddMessage inserts a new message into a room and bumps the room's
// last_message_at, both within one transaction. Returns ErrNotFound if
// the room doesn't exist.
func (d *DB) AddMessage(ctx context.Context, chatRoomID string, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Type == "" {
		msg.Type = MessageTypeUser
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.ChatRoomID = chatRoomID

	err := d.write(ctx, "add message", func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM chat_rooms WHERE id = ?`, chatRoomID).Scan(&exists)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("checking chat room: %w", err)
		}

		if err := insertMessage(ctx, tx, msg); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE chat_rooms SET last_message_at = ? WHERE id = ?`,
			msg.Timestamp.UTC().UnixMilli(), chatRoomID,
		); err != nil {
			return fmt.Errorf("updating last_message_at: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.logger.Debug("added message", "id", msg.ID, "chat_room_id", chatRoomID, "type", msg.Type)
	return nil
}

// UpdateMessage rewrites a message in place, for streaming responses
// that grow until the turn completes. Returns ErrNotFound if the
// message doesn't exist in the given room.
func (d *DB) UpdateMessage(ctx context.Context, chatRoomID string, msg *Message) error {
	return d.write(ctx, "update message", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE messages
			SET type = ?, content = ?, timestamp = ?, audio_ref = ?, transcript = ?
			WHERE id = ? AND chat_room_id = ?
		`,
			msg.Type,
			msg.Content,
			msg.Timestamp.UTC().UnixMilli(),
			nullStringPtr(msg.AudioRef),
			nullStringPtr(msg.Transcript),
			msg.ID,
			chatRoomID,
		)
		if err != nil {
			return fmt.Errorf("updating message: %w", err)
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

// GetMessages returns a room's messages ordered by timestamp
// ascending. limit <= 0 means no limit; offset < 0 is treated as 0.
func (d *DB) GetMessages(ctx context.Context, chatRoomID string, limit, offset int) ([]*Message, error) {
	var msgs []*Message
	err := d.read(ctx, "get messages", func(tx *sql.Tx) error {
		var err error
		msgs, err = queryMessages(ctx, tx, chatRoomID, limit, offset)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// DeleteMessage removes a single message by id. Returns ErrNotFound if
// it doesn't exist.
func (d *DB) DeleteMessage(ctx context.Context, messageID string) error {
	return d.write(ctx, "delete message", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, messageID)
		if err != nil {
			return fmt.Errorf("deleting message: %w", err)
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

// queryMessages reads a room's messages inside an existing transaction.
// Shared by GetMessages and the room read path so both sort the same way.
func queryMessages(ctx context.Context, tx *sql.Tx, chatRoomID string, limit, offset int) ([]*Message, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_room_id = ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ? OFFSET ?
	`, chatRoomID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return msgs, nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, msg *Message) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ID,
		msg.ChatRoomID,
		msg.Type,
		msg.Content,
		msg.Timestamp.UTC().UnixMilli(),
		nullStringPtr(msg.AudioRef),
		nullStringPtr(msg.Transcript),
	)
	if err != nil {
		if IsConstraintViolation(err) {
			return fmt.Errorf("message %q already exists: %w", msg.ID, err)
		}
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// upsertMessage writes a message as part of a room save, where repeated
// saves of the same room must not fail on existing turns.
func upsertMessage(ctx context.Context, tx *sql.Tx, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Type == "" {
		msg.Type = MessageTypeUser
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chat_room_id = excluded.chat_room_id,
			type = excluded.type,
			content = excluded.content,
			timestamp = excluded.timestamp,
			audio_ref = excluded.audio_ref,
			transcript = excluded.transcript
	`,
		msg.ID,
		msg.ChatRoomID,
		msg.Type,
		msg.Content,
		msg.Timestamp.UTC().UnixMilli(),
		nullStringPtr(msg.AudioRef),
		nullStringPtr(msg.Transcript),
	)
	if err != nil {
		return fmt.Errorf("upserting message: %w", err)
	}
	return nil
}

func scanMessage(row interface{ Scan(dest ...any) error }) (*Message, error) {
	var (
		msg        Message
		timestamp  int64
		audioRef   sql.NullString
		transcript sql.NullString
	)
	err := row.Scan(
		&msg.ID,
		&msg.ChatRoomID,
		&msg.Type,
		&msg.Content,
		&timestamp,
		&audioRef,
		&transcript,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning message row: %w", err)
	}

	msg.Timestamp = time.UnixMilli(timestamp).UTC()
	if audioRef.Valid {
		msg.AudioRef = &audioRef.String
	}
	if transcript.Valid {
		msg.Transcript = &transcript.String
	}
	return &msg, nil
}
