// ABOUTME: Storage service facade with sticky tier degradation
// ABOUTME: One dispatcher tries the ordered tier list; only total failure reaches callers

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/power7414/chatstore/internal/config"
	"github.com/power7414/chatstore/internal/legacy"
	"github.com/power7414/chatstore/internal/memstore"
	"github.com/power7414/chatstore/internal/store"
)

// ErrAllTiersExhausted is returned when every storage tier has failed.
// This is the only storage error a caller should ever surface to users.
var ErrAllTiersExhausted = errors.New("all storage tiers exhausted")

// tierState tracks per-session health of one tier.
type tierState struct {
	healthy  bool
	lastErr  error
	failedAt time.Time
}

// Service composes the storage tiers behind one API surface that
// degrades gracefully. Safe for concurrent use.
type Service struct {
	logger *slog.Logger
	tiers  []Tier

	// db and legacyStore are retained for migration and quota
	// estimation; nil when the service was built from bare tiers.
	db          *store.DB
	legacyStore *legacy.Store

	mu    sync.Mutex
	state map[string]*tierState
}

// New builds the standard three-tier chain: structured store, legacy
// flat store, in-memory map.
func New(db *store.DB, legacyStore *legacy.Store, logger *slog.Logger) *Service {
	s := NewWithTiers(logger, db, legacyStore, memstore.New())
	s.db = db
	s.legacyStore = legacyStore
	return s
}

// NewFromConfig builds the standard tier chain from a loaded
// configuration: the structured store at database.path with the
// configured retry tuning, the legacy store at legacy.path, and the
// in-memory fallback. The caller owns the returned DB and must Close it.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Service, *store.DB) {
	if logger == nil {
		logger = slog.Default()
	}
	db := store.New(cfg.Database.Path,
		store.WithLogger(logger.With("component", "store")),
		store.WithRetryPolicy(store.RetryPolicy{
			Attempts: cfg.Retry.Attempts,
			Delay:    cfg.Retry.Delay,
		}))
	legacyStore := legacy.Open(cfg.Legacy.Path, logger)
	return New(db, legacyStore, logger), db
}

// NewWithTiers builds a service over an explicit tier list, first tier
// preferred. Initialize cannot run migrations on a service built this
// way.
func NewWithTiers(logger *slog.Logger, tiers ...Tier) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		logger: logger.With("component", "storage"),
		tiers:  tiers,
		state:  make(map[string]*tierState),
	}
	for _, t := range tiers {
		s.state[t.Name()] = &tierState{healthy: true}
	}
	return s
}

// execute runs fn against the first healthy tier, degrading on failure.
// Failed tiers stay unhealthy for the rest of the session: the cost of
// probing a dead backend is paid once, not on every call. Entity-level
// errors (ErrNotFound, constraint violations) and caller cancellation
// pass through without counting against the tier.
func (s *Service) execute(ctx context.Context, op string, fn func(t Tier) error) error {
	var lastErr error
	for _, t := range s.tiers {
		if !s.isHealthy(t.Name()) {
			continue
		}
		err := fn(t)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrNotFound) ||
			errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) ||
			store.IsConstraintViolation(err) {
			return err
		}
		lastErr = err
		s.markUnhealthy(t.Name(), err)
		s.logger.Warn("storage tier failed, degrading",
			"tier", t.Name(),
			"op", op,
			"error", err)
	}

	if lastErr == nil {
		lastErr = errors.New("no storage tier available")
	}
	return fmt.Errorf("%w: %s: %w", ErrAllTiersExhausted, op, lastErr)
}

// run is execute for operations that return a value.
func run[T any](s *Service, ctx context.Context, op string, fn func(t Tier) (T, error)) (T, error) {
	var out T
	err := s.execute(ctx, op, func(t Tier) error {
		v, err := fn(t)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (s *Service) isHealthy(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[name]
	return ok && st.healthy
}

func (s *Service) markUnhealthy(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.state[name]; ok {
		st.healthy = false
		st.lastErr = err
		st.failedAt = time.Now()
	}
}

func (s *Service) markHealthy(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.state[name]; ok {
		st.healthy = true
		st.lastErr = nil
	}
}

// GetAllChatRooms returns room metadata, most recently active first.
func (s *Service) GetAllChatRooms(ctx context.Context) ([]*store.ChatRoom, error) {
	return run(s, ctx, "get all chat rooms", func(t Tier) ([]*store.ChatRoom, error) {
		return t.GetAllChatRooms(ctx)
	})
}

// GetChatRoom returns a room with its messages sorted by timestamp.
func (s *Service) GetChatRoom(ctx context.Context, id string) (*store.ChatRoom, error) {
	return run(s, ctx, "get chat room", func(t Tier) (*store.ChatRoom, error) {
		return t.GetChatRoom(ctx, id)
	})
}

// GetActiveChatRoom returns the room currently flagged active.
func (s *Service) GetActiveChatRoom(ctx context.Context) (*store.ChatRoom, error) {
	return run(s, ctx, "get active chat room", func(t Tier) (*store.ChatRoom, error) {
		return t.GetActiveChatRoom(ctx)
	})
}

// SaveChatRoom upserts a room and its owned messages as one unit.
func (s *Service) SaveChatRoom(ctx context.Context, room *store.ChatRoom) error {
	return s.execute(ctx, "save chat room", func(t Tier) error {
		return t.SaveChatRoom(ctx, room)
	})
}

// SetActiveChatRoom flags one room active and clears the rest.
func (s *Service) SetActiveChatRoom(ctx context.Context, id string) error {
	return s.execute(ctx, "set active chat room", func(t Tier) error {
		return t.SetActiveChatRoom(ctx, id)
	})
}

// DeleteChatRoom removes a room, cascading to its messages.
func (s *Service) DeleteChatRoom(ctx context.Context, id string) error {
	return s.execute(ctx, "delete chat room", func(t Tier) error {
		return t.DeleteChatRoom(ctx, id)
	})
}

// AddMessage appends a message to a room.
func (s *Service) AddMessage(ctx context.Context, chatRoomID string, msg *store.Message) error {
	return s.execute(ctx, "add message", func(t Tier) error {
		return t.AddMessage(ctx, chatRoomID, msg)
	})
}

// UpdateMessage rewrites a streaming message in place.
func (s *Service) UpdateMessage(ctx context.Context, chatRoomID string, msg *store.Message) error {
	return s.execute(ctx, "update message", func(t Tier) error {
		return t.UpdateMessage(ctx, chatRoomID, msg)
	})
}

// GetMessages returns a room's messages sorted by timestamp, windowed
// by limit/offset. limit <= 0 means no limit.
func (s *Service) GetMessages(ctx context.Context, chatRoomID string, limit, offset int) ([]*store.Message, error) {
	return run(s, ctx, "get messages", func(t Tier) ([]*store.Message, error) {
		return t.GetMessages(ctx, chatRoomID, limit, offset)
	})
}

// DeleteMessage removes a single message.
func (s *Service) DeleteMessage(ctx context.Context, messageID string) error {
	return s.execute(ctx, "delete message", func(t Tier) error {
		return t.DeleteMessage(ctx, messageID)
	})
}

// GetSetting retrieves a setting by key. Returns store.ErrNotFound if
// the key is absent.
func (s *Service) GetSetting(ctx context.Context, key string) (*store.Setting, error) {
	return run(s, ctx, "get setting", func(t Tier) (*store.Setting, error) {
		return t.GetSetting(ctx, key)
	})
}

// GetSettingOrDefault retrieves a setting's value, returning def when
// the key is absent.
func (s *Service) GetSettingOrDefault(ctx context.Context, key string, def store.SettingValue) (store.SettingValue, error) {
	setting, err := s.GetSetting(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return def, nil
	}
	if err != nil {
		return store.SettingValue{}, err
	}
	return setting.Value, nil
}

// SetSetting stores a value under key, overwriting any previous value.
func (s *Service) SetSetting(ctx context.Context, key string, value store.SettingValue) error {
	if key == "" {
		return fmt.Errorf("setting key is required")
	}
	return s.execute(ctx, "set setting", func(t Tier) error {
		return t.SetSetting(ctx, &store.Setting{Key: key, Value: value})
	})
}

// DeleteSetting removes a setting by key.
func (s *Service) DeleteSetting(ctx context.Context, key string) error {
	return s.execute(ctx, "delete setting", func(t Tier) error {
		return t.DeleteSetting(ctx, key)
	})
}

// GetAllSettings returns every setting, ordered by key.
func (s *Service) GetAllSettings(ctx context.Context) ([]*store.Setting, error) {
	return run(s, ctx, "get all settings", func(t Tier) ([]*store.Setting, error) {
		return t.GetAllSettings(ctx)
	})
}

// SaveTranscription upserts a transcription entry.
func (s *Service) SaveTranscription(ctx context.Context, entry *store.Transcription) error {
	return s.execute(ctx, "save transcription", func(t Tier) error {
		return t.SaveTranscription(ctx, entry)
	})
}

// GetTranscriptions returns a room's transcriptions sorted by timestamp.
func (s *Service) GetTranscriptions(ctx context.Context, chatRoomID string) ([]*store.Transcription, error) {
	return run(s, ctx, "get transcriptions", func(t Tier) ([]*store.Transcription, error) {
		return t.GetTranscriptions(ctx, chatRoomID)
	})
}

// DeleteTranscriptions removes every transcription for a room.
func (s *Service) DeleteTranscriptions(ctx context.Context, chatRoomID string) error {
	return s.execute(ctx, "delete transcriptions", func(t Tier) error {
		return t.DeleteTranscriptions(ctx, chatRoomID)
	})
}

// ClearAllData removes every entity from the active tier. Admin-only.
func (s *Service) ClearAllData(ctx context.Context) error {
	rooms, err := s.GetAllChatRooms(ctx)
	if err != nil {
		return err
	}
	for _, r := range rooms {
		if err := s.DeleteTranscriptions(ctx, r.ID); err != nil {
			return err
		}
		if err := s.DeleteChatRoom(ctx, r.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}

	settings, err := s.GetAllSettings(ctx)
	if err != nil {
		return err
	}
	for _, setting := range settings {
		if err := s.DeleteSetting(ctx, setting.Key); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
	}
	return nil
}
