// ABOUTME: Chat room entity API for the structured store
// ABOUTME: Room + owned messages are written and deleted as single transactions

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const chatRoomColumns = `id, name, created_at, last_message_at, is_active, config_json,
	session_handle, session_last_connected, session_resumable`

// GetAllChatRooms returns room metadata (without messages), most
// recently active first.
func (d *DB) GetAllChatRooms(ctx context.Context) ([]*ChatRoom, error) {
	var rooms []*ChatRoom
	err := d.read(ctx, "get all chat rooms", func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			SELECT `+chatRoomColumns+`
			FROM chat_rooms
			ORDER BY COALESCE(last_message_at, created_at) DESC
		`)
		if err != nil {
			return fmt.Errorf("querying chat rooms: %w", err)
		}
		defer rows.Close()

		rooms = rooms[:0]
		for rows.Next() {
			room, err := scanChatRoom(rows)
			if err != nil {
				return err
			}
			rooms = append(rooms, room)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

// GetChatRoom returns a room with its messages sorted by timestamp
// ascending. Returns ErrNotFound if the room doesn't exist.
func (d *DB) GetChatRoom(ctx context.Context, id string) (*ChatRoom, error) {
	var room *ChatRoom
	err := d.read(ctx, "get chat room", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+chatRoomColumns+`
			FROM chat_rooms
			WHERE id = ?
		`, id)
		r, err := scanChatRoom(row)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		msgs, err := queryMessages(ctx, tx, id, -1, 0)
		if err != nil {
			return err
		}
		r.Messages = msgs
		room = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// GetActiveChatRoom returns the room currently flagged active, without
// messages. Returns ErrNotFound when no room is active.
func (d *DB) GetActiveChatRoom(ctx context.Context) (*ChatRoom, error) {
	var room *ChatRoom
	err := d.read(ctx, "get active chat room", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+chatRoomColumns+`
			FROM chat_rooms
			WHERE is_active = 1
			LIMIT 1
		`)
		r, err := scanChatRoom(row)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		room = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return room, nil
}

// SaveChatRoom upserts the room and each of its owned messages in one
// write transaction. A mid-write abort leaves neither the room row nor
// any message behind.
func (d *DB) SaveChatRoom(ctx context.Context, room *ChatRoom) error {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if room.CreatedAt.IsZero() {
		room.CreatedAt = now
	}

	err := d.write(ctx, "save chat room", func(tx *sql.Tx) error {
		if err := upsertChatRoom(ctx, tx, room); err != nil {
			return err
		}
		for _, msg := range room.Messages {
			msg.ChatRoomID = room.ID
			if err := upsertMessage(ctx, tx, msg); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.logger.Debug("saved chat room", "id", room.ID, "messages", len(room.Messages))
	return nil
}

// SetActiveChatRoom flags one room active and clears the flag on all
// others within a single transaction. Returns ErrNotFound if the room
// doesn't exist.
func (d *DB) SetActiveChatRoom(ctx context.Context, id string) error {
	return d.write(ctx, "set active chat room", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE chat_rooms SET is_active = 0 WHERE id <> ?`, id); err != nil {
			return fmt.Errorf("clearing active flags: %w", err)
		}
		res, err := tx.ExecContext(ctx, `UPDATE chat_rooms SET is_active = 1 WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("setting active flag: %w", err)
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

// DeleteChatRoom removes the room and every message referencing it in
// one transaction. Returns ErrNotFound if the room doesn't exist.
func (d *DB) DeleteChatRoom(ctx context.Context, id string) error {
	err := d.write(ctx, "delete chat room", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_room_id = ?`, id); err != nil {
			return fmt.Errorf("deleting room messages: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM chat_rooms WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting chat room: %w", err)
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
	if err != nil {
		return err
	}

	d.logger.Debug("deleted chat room", "id", id)
	return nil
}

// upsertChatRoom writes the room row. created_at is preserved on
// conflict so re-saving a room never rewrites its creation time.
func upsertChatRoom(ctx context.Context, tx *sql.Tx, room *ChatRoom) error {
	var configJSON any
	if room.Config != nil {
		data, err := json.Marshal(room.Config)
		if err != nil {
			return fmt.Errorf("encoding room config: %w", err)
		}
		configJSON = string(data)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO chat_rooms (`+chatRoomColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			last_message_at = excluded.last_message_at,
			is_active = excluded.is_active,
			config_json = excluded.config_json,
			session_handle = excluded.session_handle,
			session_last_connected = excluded.session_last_connected,
			session_resumable = excluded.session_resumable
	`,
		room.ID,
		room.Name,
		room.CreatedAt.UTC().UnixMilli(),
		nullTime(room.LastMessageAt),
		room.Active,
		configJSON,
		nullStringPtr(room.Session.Handle),
		nullTimePtr(room.Session.LastConnected),
		room.Session.Resumable,
	)
	if err != nil {
		return fmt.Errorf("upserting chat room: %w", err)
	}
	return nil
}

// scanChatRoom reads one room row. Works for both QueryRow and rows.Next
// call sites; sql.ErrNoRows passes through for the caller to translate.
func scanChatRoom(row interface{ Scan(dest ...any) error }) (*ChatRoom, error) {
	var (
		room          ChatRoom
		createdAt     int64
		lastMessageAt sql.NullInt64
		configJSON    sql.NullString
		handle        sql.NullString
		lastConnected sql.NullInt64
	)

	err := row.Scan(
		&room.ID,
		&room.Name,
		&createdAt,
		&lastMessageAt,
		&room.Active,
		&configJSON,
		&handle,
		&lastConnected,
		&room.Session.Resumable,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning chat room row: %w", err)
	}

	room.CreatedAt = time.UnixMilli(createdAt).UTC()
	if lastMessageAt.Valid {
		room.LastMessageAt = time.UnixMilli(lastMessageAt.Int64).UTC()
	}
	if configJSON.Valid {
		var cfg RoomConfig
		if err := json.Unmarshal([]byte(configJSON.String), &cfg); err != nil {
			return nil, fmt.Errorf("decoding room config: %w", err)
		}
		room.Config = &cfg
	}
	if handle.Valid {
		room.Session.Handle = &handle.String
	}
	if lastConnected.Valid {
		t := time.UnixMilli(lastConnected.Int64).UTC()
		room.Session.LastConnected = &t
	}
	return &room, nil
}
