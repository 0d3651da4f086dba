// ABOUTME: Tier is what the storage service needs from each storage backend
// ABOUTME: Implemented by the structured store, the legacy flat store, and the memory map

package service

import (
	"context"

	"github.com/power7414/chatstore/internal/store"
)

// Tier is one storage backend in the fallback chain. All three tiers
// expose the same entity operations so the dispatcher can treat them
// uniformly.
type Tier interface {
	Name() string
	Ping(ctx context.Context) error

	GetAllChatRooms(ctx context.Context) ([]*store.ChatRoom, error)
	GetChatRoom(ctx context.Context, id string) (*store.ChatRoom, error)
	GetActiveChatRoom(ctx context.Context) (*store.ChatRoom, error)
	SaveChatRoom(ctx context.Context, room *store.ChatRoom) error
	SetActiveChatRoom(ctx context.Context, id string) error
	DeleteChatRoom(ctx context.Context, id string) error

	AddMessage(ctx context.Context, chatRoomID string, msg *store.Message) error
	UpdateMessage(ctx context.Context, chatRoomID string, msg *store.Message) error
	GetMessages(ctx context.Context, chatRoomID string, limit, offset int) ([]*store.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error

	GetSetting(ctx context.Context, key string) (*store.Setting, error)
	SetSetting(ctx context.Context, setting *store.Setting) error
	DeleteSetting(ctx context.Context, key string) error
	GetAllSettings(ctx context.Context) ([]*store.Setting, error)

	SaveTranscription(ctx context.Context, entry *store.Transcription) error
	GetTranscriptions(ctx context.Context, chatRoomID string) ([]*store.Transcription, error)
	DeleteTranscriptions(ctx context.Context, chatRoomID string) error

	Counts(ctx context.Context) (store.Counts, error)
}
