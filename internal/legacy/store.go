// ABOUTME: Flat JSON key/value store, the legacy persistence format
// ABOUTME: Lazy-loaded single file with atomic rewrite on every mutation

package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Recognized legacy keys. The migrator only understands these; anything
// else in the file is preserved untouched.
const (
	KeyChatRooms      = "chat_rooms"
	KeyTranscriptions = "transcriptions"
	SettingKeyPrefix  = "setting:"
)

// Store is the flat key/value store. All access is serialized by one
// mutex; the file is read lazily on first use and rewritten atomically
// on every mutation.
type Store struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	loaded bool
	data   map[string]json.RawMessage
}

// Open creates a handle on the legacy file at path. The file is not
// read until first use and is created on the first write.
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		path:   path,
		logger: logger.With("component", "legacy"),
	}
}

// Name identifies this tier in health records and logs.
func (s *Store) Name() string { return "legacy" }

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Ping verifies the file is readable (or absent, which is an empty
// store) and its directory usable.
func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Keys returns every key currently present, sorted.
func (s *Store) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// GetRaw returns the raw JSON stored under key.
func (s *Store) GetRaw(key string) (json.RawMessage, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, false, err
	}
	raw, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append(json.RawMessage(nil), raw...), true, nil
}

// SetRaw stores raw JSON under key and flushes the file.
func (s *Store) SetRaw(key string, raw json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	s.data[key] = append(json.RawMessage(nil), raw...)
	return s.flushLocked()
}

// Update applies fn to the value under key while holding the store
// lock across the whole read-modify-write, so overlapping mutations of
// the same key cannot drop each other's changes. fn receives the
// current value (ok is false when the key is absent) and returns the
// replacement; an error from fn leaves the store untouched.
func (s *Store) Update(key string, fn func(raw json.RawMessage, ok bool) (json.RawMessage, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	cur, ok := s.data[key]
	if ok {
		cur = append(json.RawMessage(nil), cur...)
	}
	next, err := fn(cur, ok)
	if err != nil {
		return err
	}
	s.data[key] = append(json.RawMessage(nil), next...)
	return s.flushLocked()
}

// DeleteKeys removes the given keys and flushes. Missing keys are
// ignored so a selective post-migration clear is idempotent.
func (s *Store) DeleteKeys(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := s.data[k]; ok {
			delete(s.data, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.flushLocked()
}

// Snapshot returns a copy of the whole store, for migration backups.
func (s *Store) Snapshot() (map[string]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(s.data))
	for k, v := range s.data {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out, nil
}

// loadLocked reads the file once. A missing file is an empty store.
// Must be called with mu held.
func (s *Store) loadLocked() error {
	if s.loaded {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.data = make(map[string]json.RawMessage)
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading legacy store: %w", err)
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parsing legacy store: %w", err)
	}
	if parsed == nil {
		parsed = make(map[string]json.RawMessage)
	}
	s.data = parsed
	s.loaded = true
	return nil
}

// flushLocked rewrites the whole file via temp-file rename.
// Must be called with mu held.
func (s *Store) flushLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating legacy store directory: %w", err)
	}

	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding legacy store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing legacy store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing legacy store: %w", err)
	}
	return nil
}
