// ABOUTME: In-memory map tier, the last storage fallback
// ABOUTME: Deep copies on the way in and out so callers never share state with the store

package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/power7414/chatstore/internal/store"
)

// Store keeps every entity in memory. Safe for concurrent use.
type Store struct {
	mu             sync.Mutex
	rooms          map[string]*store.ChatRoom
	messages       map[string]*store.Message // id -> message, rooms hold no message slices here
	settings       map[string]*store.Setting
	transcriptions map[string]*store.Transcription
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		rooms:          make(map[string]*store.ChatRoom),
		messages:       make(map[string]*store.Message),
		settings:       make(map[string]*store.Setting),
		transcriptions: make(map[string]*store.Transcription),
	}
}

// Name identifies this tier in health records and logs.
func (s *Store) Name() string { return "memory" }

// Ping always succeeds; memory is assumed available.
func (s *Store) Ping(_ context.Context) error { return nil }

// GetAllChatRooms returns room metadata, most recently active first.
func (s *Store) GetAllChatRooms(_ context.Context) ([]*store.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*store.ChatRoom, 0, len(s.rooms))
	for _, r := range s.rooms {
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
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := r.Clone()
	out.Messages = s.roomMessagesLocked(id)
	return out, nil
}

// GetActiveChatRoom returns the room flagged active, without messages.
func (s *Store) GetActiveChatRoom(_ context.Context) (*store.ChatRoom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rooms {
		if r.Active {
			c := r.Clone()
			c.Messages = nil
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

// SaveChatRoom upserts a room and each of its carried messages.
func (s *Store) SaveChatRoom(_ context.Context, room *store.ChatRoom) error {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := room.Clone()
	for _, msg := range stored.Messages {
		msg.ChatRoomID = room.ID
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = time.Now().UTC()
		}
		s.messages[msg.ID] = msg
	}
	stored.Messages = nil
	s.rooms[room.ID] = stored
	return nil
}

// SetActiveChatRoom flags one room active and clears the rest.
func (s *Store) SetActiveChatRoom(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[id]; !ok {
		return store.ErrNotFound
	}
	for _, r := range s.rooms {
		r.Active = r.ID == id
	}
	return nil
}

// DeleteChatRoom removes a room and every message referencing it.
func (s *Store) DeleteChatRoom(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.rooms, id)
	for msgID, msg := range s.messages {
		if msg.ChatRoomID == id {
			delete(s.messages, msgID)
		}
	}
	return nil
}

// AddMessage stores a new message and bumps the room's lastMessageAt.
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

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[chatRoomID]
	if !ok {
		return store.ErrNotFound
	}
	s.messages[msg.ID] = msg.Clone()
	r.LastMessageAt = msg.Timestamp
	return nil
}

// UpdateMessage rewrites a stored message in place.
func (s *Store) UpdateMessage(_ context.Context, chatRoomID string, msg *store.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.messages[msg.ID]
	if !ok || existing.ChatRoomID != chatRoomID {
		return store.ErrNotFound
	}
	updated := msg.Clone()
	updated.ChatRoomID = chatRoomID
	s.messages[msg.ID] = updated
	return nil
}

// GetMessages returns a room's messages sorted by timestamp, windowed
// by limit/offset. limit <= 0 means no limit.
func (s *Store) GetMessages(_ context.Context, chatRoomID string, limit, offset int) ([]*store.Message, error) {
	s.mu.Lock()
	msgs := s.roomMessagesLocked(chatRoomID)
	s.mu.Unlock()

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

// DeleteMessage removes a message by id.
func (s *Store) DeleteMessage(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[messageID]; !ok {
		return store.ErrNotFound
	}
	delete(s.messages, messageID)
	return nil
}

// GetSetting retrieves a setting by key.
func (s *Store) GetSetting(_ context.Context, key string) (*store.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	setting, ok := s.settings[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return setting.Clone(), nil
}

// SetSetting upserts a setting.
func (s *Store) SetSetting(_ context.Context, setting *store.Setting) error {
	if setting.Version == 0 {
		setting.Version = 1
	}
	setting.UpdatedAt = time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[setting.Key] = setting.Clone()
	return nil
}

// DeleteSetting removes a setting by key.
func (s *Store) DeleteSetting(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.settings[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.settings, key)
	return nil
}

// GetAllSettings returns every setting, ordered by key.
func (s *Store) GetAllSettings(_ context.Context) ([]*store.Setting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*store.Setting, 0, len(s.settings))
	for _, setting := range s.settings {
		out = append(out, setting.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// SaveTranscription upserts a transcription entry.
func (s *Store) SaveTranscription(_ context.Context, entry *store.Transcription) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcriptions[entry.ID] = entry.Clone()
	return nil
}

// GetTranscriptions returns a room's transcriptions sorted by timestamp.
func (s *Store) GetTranscriptions(_ context.Context, chatRoomID string) ([]*store.Transcription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*store.Transcription
	for _, e := range s.transcriptions {
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
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.transcriptions {
		if e.ChatRoomID == chatRoomID {
			delete(s.transcriptions, id)
		}
	}
	return nil
}

// Counts reports how many entities the store holds.
func (s *Store) Counts(_ context.Context) (store.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return store.Counts{
		ChatRooms:      len(s.rooms),
		Messages:       len(s.messages),
		Settings:       len(s.settings),
		Transcriptions: len(s.transcriptions),
	}, nil
}

// roomMessagesLocked collects cloned messages for a room, sorted by
// timestamp. Must be called with mu held.
func (s *Store) roomMessagesLocked(chatRoomID string) []*store.Message {
	var msgs []*store.Message
	for _, m := range s.messages {
		if m.ChatRoomID == chatRoomID {
			msgs = append(msgs, m.Clone())
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp.Equal(msgs[j].Timestamp) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs
}

func lastActivity(r *store.ChatRoom) time.Time {
	if !r.LastMessageAt.IsZero() {
		return r.LastMessageAt
	}
	return r.CreatedAt
}
