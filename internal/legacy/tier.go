// ABOUTME: Entity operations over the flat layout so legacy can serve as a fallback tier
// ABOUTME: Rooms embed their messages; settings are one key each; transcriptions are one array

package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/power7414/chatstore/internal/store"
)

// GetAllChatRooms returns room metadata (without messages), most
// recently active first.
func (s *Store) GetAllChatRooms(_ context.Context) ([]*store.ChatRoom, error) {
	rooms, err := s.loadRooms()
	if err != nil {
		return nil, err
	}
	out := make([]*store.ChatRoom, 0, len(rooms))
	for _, r := range rooms {
		c := r.Clone()
		c.Messages = nil
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return lastActivity(out[i]).After(lastActivity(out[j]))
	})
	return out, nil
}

// GetChatRoom returns a room with its messages sorted by timestamp.
func (s *Store) GetChatRoom(_ context.Context, id string) (*store.ChatRoom, error) {
	rooms, err := s.loadRooms()
	if err != nil {
		return nil, err
	}
	for _, r := range rooms {
		if r.ID == id {
			c := r.Clone()
			sortMessages(c.Messages)
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

// GetActiveChatRoom returns the room flagged active, without messages.
func (s *Store) GetActiveChatRoom(_ context.Context) (*store.ChatRoom, error) {
	rooms, err := s.loadRooms()
	if err != nil {
		return nil, err
	}
	for _, r := range rooms {
		if r.Active {
			c := r.Clone()
			c.Messages = nil
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

// SaveChatRoom upserts a room together with its embedded messages.
// The flat layout makes the write atomic for free: one file rewrite.
func (s *Store) SaveChatRoom(_ context.Context, room *store.ChatRoom) error {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}
	for _, msg := range room.Messages {
		msg.ChatRoomID = room.ID
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now().UTC()
		}
	}

	return s.mutateRooms(func(rooms []*store.ChatRoom) ([]*store.ChatRoom, error) {
		for i, r := range rooms {
			if r.ID == room.ID {
				rooms[i] = room.Clone()
				return rooms, nil
			}
		}
		return append(rooms, room.Clone()), nil
	})
}

// SetActiveChatRoom flags one room active and clears the rest.
func (s *Store) SetActiveChatRoom(_ context.Context, id string) error {
	return s.mutateRooms(func(rooms []*store.ChatRoom) ([]*store.ChatRoom, error) {
		found := false
		for _, r := range rooms {
			r.Active = r.ID == id
			found = found || r.Active
		}
		if !found {
			return nil, store.ErrNotFound
		}
		return rooms, nil
	})
}

// DeleteChatRoom removes a room and, with it, its embedded messages.
func (s *Store) DeleteChatRoom(_ context.Context, id string) error {
	return s.mutateRooms(func(rooms []*store.ChatRoom) ([]*store.ChatRoom, error) {
		for i, r := range rooms {
			if r.ID == id {
				return append(rooms[:i], rooms[i+1:]...), nil
			}
		}
		return nil, store.ErrNotFound
	})
}

// AddMessage appends a message to a room and bumps lastMessageAt.
func (s *Store) AddMessage(_ context.Context, chatRoomID string, msg *store.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Type == "" {
		msg.Type = store.MessageTypeUser
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.ChatRoomID = chatRoomID

	return s.mutateRooms(func(rooms []*store.ChatRoom) ([]*store.ChatRoom, error) {
		for _, r := range rooms {
			if r.ID == chatRoomID {
				r.Messages = append(r.Messages, msg.Clone())
				r.LastMessageAt = msg.Timestamp
				return rooms, nil
			}
		}
		return nil, store.ErrNotFound
	})
}

// UpdateMessage rewrites a message in place within its room.
func (s *Store) UpdateMessage(_ context.Context, chatRoomID string, msg *store.Message) error {
	return s.mutateRooms(func(rooms []*store.ChatRoom) ([]*store.ChatRoom, error) {
		for _, r := range rooms {
			if r.ID != chatRoomID {
				continue
			}
			for i, m := range r.Messages {
				if m.ID == msg.ID {
					updated := msg.Clone()
					updated.ChatRoomID = chatRoomID
					r.Messages[i] = updated
					return rooms, nil
				}
			}
		}
		return nil, store.ErrNotFound
	})
}

// GetMessages returns a room's messages sorted by timestamp, windowed
// by limit/offset. limit <= 0 means no limit.
func (s *Store) GetMessages(_ context.Context, chatRoomID string, limit, offset int) ([]*store.Message, error) {
	rooms, err := s.loadRooms()
	if err != nil {
		return nil, err
	}
	var msgs []*store.Message
	for _, r := range rooms {
		if r.ID == chatRoomID {
			for _, m := range r.Messages {
				msgs = append(msgs, m.Clone())
			}
			break
		}
	}
	sortMessages(msgs)

	if offset < 0 {
		offset = 0
	}
	if offset >= len(msgs) {
		return nil, nil
	}
	msgs = msgs[offset:]
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

// DeleteMessage removes a message by id, searching every room.
func (s *Store) DeleteMessage(_ context.Context, messageID string) error {
	return s.mutateRooms(func(rooms []*store.ChatRoom) ([]*store.ChatRoom, error) {
		for _, r := range rooms {
			for i, m := range r.Messages {
				if m.ID == messageID {
					r.Messages = append(r.Messages[:i], r.Messages[i+1:]...)
					return rooms, nil
				}
			}
		}
		return nil, store.ErrNotFound
	})
}

// GetSetting retrieves a setting by key.
func (s *Store) GetSetting(_ context.Context, key string) (*store.Setting, error) {
	raw, ok, err := s.GetRaw(SettingKeyPrefix + key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, store.ErrNotFound
	}
	var setting store.Setting
	if err := json.Unmarshal(raw, &setting); err != nil {
		return nil, fmt.Errorf("decoding setting %q: %w", key, err)
	}
	return &setting, nil
}

// SetSetting upserts a setting under its prefixed key.
func (s *Store) SetSetting(_ context.Context, setting *store.Setting) error {
	if setting.Key == "" {
		return fmt.Errorf("setting key is required")
	}
	if setting.Version == 0 {
		setting.Version = 1
	}
	setting.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(setting)
	if err != nil {
		return fmt.Errorf("encoding setting %q: %w", setting.Key, err)
	}
	return s.SetRaw(SettingKeyPrefix+setting.Key, raw)
}

// DeleteSetting removes a setting by key.
func (s *Store) DeleteSetting(_ context.Context, key string) error {
	_, ok, err := s.GetRaw(SettingKeyPrefix + key)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return s.DeleteKeys(SettingKeyPrefix + key)
}

// GetAllSettings returns every setting, ordered by key.
func (s *Store) GetAllSettings(_ context.Context) ([]*store.Setting, error) {
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}
	var settings []*store.Setting
	for _, k := range keys {
		if len(k) <= len(SettingKeyPrefix) || k[:len(SettingKeyPrefix)] != SettingKeyPrefix {
			continue
		}
		raw, ok, err := s.GetRaw(k)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		var setting store.Setting
		if err := json.Unmarshal(raw, &setting); err != nil {
			return nil, fmt.Errorf("decoding setting %q: %w", k, err)
		}
		settings = append(settings, &setting)
	}
	return settings, nil
}

// SaveTranscription upserts a transcription entry by id.
func (s *Store) SaveTranscription(_ context.Context, entry *store.Transcription) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	return s.mutateTranscriptions(func(entries []*store.Transcription) ([]*store.Transcription, error) {
		for i, e := range entries {
			if e.ID == entry.ID {
				entries[i] = entry.Clone()
				return entries, nil
			}
		}
		return append(entries, entry.Clone()), nil
	})
}

// GetTranscriptions returns a room's transcriptions sorted by timestamp.
func (s *Store) GetTranscriptions(_ context.Context, chatRoomID string) ([]*store.Transcription, error) {
	entries, err := s.loadTranscriptions()
	if err != nil {
		return nil, err
	}
	var out []*store.Transcription
	for _, e := range entries {
		if e.ChatRoomID == chatRoomID {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// DeleteTranscriptions removes every transcription for a room.
func (s *Store) DeleteTranscriptions(_ context.Context, chatRoomID string) error {
	return s.mutateTranscriptions(func(entries []*store.Transcription) ([]*store.Transcription, error) {
		kept := entries[:0]
		for _, e := range entries {
			if e.ChatRoomID != chatRoomID {
				kept = append(kept, e)
			}
		}
		return kept, nil
	})
}

// Counts reports how many entities the flat store holds.
func (s *Store) Counts(_ context.Context) (store.Counts, error) {
	rooms, err := s.loadRooms()
	if err != nil {
		return store.Counts{}, err
	}
	entries, err := s.loadTranscriptions()
	if err != nil {
		return store.Counts{}, err
	}
	keys, err := s.Keys()
	if err != nil {
		return store.Counts{}, err
	}

	counts := store.Counts{
		ChatRooms:      len(rooms),
		Transcriptions: len(entries),
	}
	for _, r := range rooms {
		counts.Messages += len(r.Messages)
	}
	for _, k := range keys {
		if len(k) > len(SettingKeyPrefix) && k[:len(SettingKeyPrefix)] == SettingKeyPrefix {
			counts.Settings++
		}
	}
	return counts, nil
}

// loadRooms decodes the chat_rooms array. A missing key is no rooms.
func (s *Store) loadRooms() ([]*store.ChatRoom, error) {
	raw, ok, err := s.GetRaw(KeyChatRooms)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var rooms []*store.ChatRoom
	if err := json.Unmarshal(raw, &rooms); err != nil {
		return nil, fmt.Errorf("decoding chat rooms: %w", err)
	}
	return rooms, nil
}

// mutateRooms applies fn to the rooms array under the store lock, so
// overlapping mutations from different goroutines cannot drop each
// other's writes. fn returning an error leaves the file untouched.
func (s *Store) mutateRooms(fn func([]*store.ChatRoom) ([]*store.ChatRoom, error)) error {
	return s.Update(KeyChatRooms, func(raw json.RawMessage, ok bool) (json.RawMessage, error) {
		var rooms []*store.ChatRoom
		if ok {
			if err := json.Unmarshal(raw, &rooms); err != nil {
				return nil, fmt.Errorf("decoding chat rooms: %w", err)
			}
		}
		rooms, err := fn(rooms)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(rooms)
		if err != nil {
			return nil, fmt.Errorf("encoding chat rooms: %w", err)
		}
		return out, nil
	})
}

// mutateTranscriptions is mutateRooms for the transcriptions array.
func (s *Store) mutateTranscriptions(fn func([]*store.Transcription) ([]*store.Transcription, error)) error {
	return s.Update(KeyTranscriptions, func(raw json.RawMessage, ok bool) (json.RawMessage, error) {
		var entries []*store.Transcription
		if ok {
			if err := json.Unmarshal(raw, &entries); err != nil {
				return nil, fmt.Errorf("decoding transcriptions: %w", err)
			}
		}
		entries, err := fn(entries)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("encoding transcriptions: %w", err)
		}
		return out, nil
	})
}

func (s *Store) loadTranscriptions() ([]*store.Transcription, error) {
	raw, ok, err := s.GetRaw(KeyTranscriptions)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var entries []*store.Transcription
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decoding transcriptions: %w", err)
	}
	return entries, nil
}

func sortMessages(msgs []*store.Message) {
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

func lastActivity(r *store.ChatRoom) time.Time {
	if !r.LastMessageAt.IsZero() {
		return r.LastMessageAt
	}
	return r.CreatedAt
}
