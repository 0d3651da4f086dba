// ABOUTME: One-shot migrator from the legacy flat store into the structured store
// ABOUTME: Idempotent, skip-if-present, with best-effort backup and selective legacy clear

package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/power7414/chatstore/internal/legacy"
	"github.com/power7414/chatstore/internal/store"
)

// BackupKeyPrefix prefixes the metadata key holding the pre-migration
// snapshot of the legacy store.
const BackupKeyPrefix = "legacy_backup_"

// Options tunes migration behavior.
type Options struct {
	// SkipExistingData skips a whole sub-migration when the structured
	// store already holds data for that entity type.
	SkipExistingData bool
	// Backup snapshots the entire legacy store into a timestamped
	// metadata record before anything is written. Best effort.
	Backup bool
	// ClearLegacy removes the migrated keys from the legacy store after
	// an error-free migration. Keys the migrator did not understand are
	// never touched.
	ClearLegacy bool
}

// DefaultOptions returns the standard migration tuning.
func DefaultOptions() Options {
	return Options{SkipExistingData: true, Backup: true}
}

// Result aggregates the outcome of a full migration run.
type Result struct {
	MigratedItems int      `json:"migratedItems"`
	SkippedItems  int      `json:"skippedItems"`
	Errors        []string `json:"errors,omitempty"`
	BackupKey     string   `json:"backupKey,omitempty"`
	LegacyCleared bool     `json:"legacyCleared"`
}

// OK reports whether the run completed without per-item errors.
func (r *Result) OK() bool { return len(r.Errors) == 0 }

// Migrator transfers legacy flat-store data into the structured store.
type Migrator struct {
	legacy *legacy.Store
	db     *store.DB
	opts   Options
	logger *slog.Logger
}

// New creates a migrator. Pass DefaultOptions() unless a caller needs
// to override the skip or clear behavior.
func New(legacyStore *legacy.Store, db *store.DB, opts Options, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{
		legacy: legacyStore,
		db:     db,
		opts:   opts,
		logger: logger.With("component", "migrate"),
	}
}

// IsMigrationNeeded reports whether any recognizable legacy data exists
// for an entity type the structured store is still empty for.
func (m *Migrator) IsMigrationNeeded(ctx context.Context) (bool, error) {
	keys, err := m.legacy.Keys()
	if err != nil {
		return false, fmt.Errorf("listing legacy keys: %w", err)
	}

	var hasRooms, hasSettings, hasTranscriptions bool
	for _, k := range keys {
		switch {
		case k == legacy.KeyChatRooms:
			hasRooms = true
		case k == legacy.KeyTranscriptions:
			hasTranscriptions = true
		case strings.HasPrefix(k, legacy.SettingKeyPrefix):
			hasSettings = true
		}
	}
	if !hasRooms && !hasSettings && !hasTranscriptions {
		return false, nil
	}

	counts, err := m.db.Counts(ctx)
	if err != nil {
		return false, fmt.Errorf("counting structured store: %w", err)
	}

	if hasRooms && counts.ChatRooms == 0 {
		return true, nil
	}
	if hasSettings && counts.Settings == 0 {
		return true, nil
	}
	if hasTranscriptions && counts.Transcriptions == 0 {
		return true, nil
	}
	return false, nil
}

// MigrateAll runs the chat-room, settings, and transcription
// sub-migrations in order. A failure in one sub-migration never aborts
// the others; per-item failures are collected in the result. The
// returned error covers only an unreadable legacy store.
func (m *Migrator) MigrateAll(ctx context.Context) (*Result, error) {
	res := &Result{}

	if m.opts.Backup {
		m.backup(ctx, res)
	}

	counts, err := m.db.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting structured store: %w", err)
	}

	var migratedKeys []string

	keys, err := m.migrateChatRooms(ctx, res, counts.ChatRooms)
	if err != nil {
		return nil, err
	}
	migratedKeys = append(migratedKeys, keys...)

	keys, err = m.migrateSettings(ctx, res, counts.Settings)
	if err != nil {
		return nil, err
	}
	migratedKeys = append(migratedKeys, keys...)

	keys, err = m.migrateTranscriptions(ctx, res, counts.Transcriptions)
	if err != nil {
		return nil, err
	}
	migratedKeys = append(migratedKeys, keys...)

	if m.opts.ClearLegacy && res.OK() && len(migratedKeys) > 0 {
		if err := m.legacy.DeleteKeys(migratedKeys...); err != nil {
			m.logger.Warn("failed to clear migrated legacy keys", "error", err)
		} else {
			res.LegacyCleared = true
			m.logger.Info("cleared migrated legacy keys", "keys", len(migratedKeys))
		}
	}

	m.logger.Info("migration finished",
		"migrated", res.MigratedItems,
		"skipped", res.SkippedItems,
		"errors", len(res.Errors))
	return res, nil
}

// backup writes the whole legacy payload into a timestamped metadata
// record. Failures are logged and migration proceeds regardless.
func (m *Migrator) backup(ctx context.Context, res *Result) {
	snapshot, err := m.legacy.Snapshot()
	if err != nil {
		m.logger.Warn("legacy backup failed", "error", err)
		return
	}
	if len(snapshot) == 0 {
		return
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		m.logger.Warn("legacy backup failed", "error", err)
		return
	}

	key := BackupKeyPrefix + time.Now().UTC().Format("20060102T150405Z")
	if err := m.db.PutMetadata(ctx, key, string(data)); err != nil {
		m.logger.Warn("legacy backup failed", "error", err)
		return
	}
	res.BackupKey = key
	m.logger.Info("backed up legacy store", "key", key, "bytes", len(data))
}

// migrateChatRooms transfers the embedded-message room array. Each room
// saves atomically with its messages; a failed room counts one error.
func (m *Migrator) migrateChatRooms(ctx context.Context, res *Result, existing int) ([]string, error) {
	raw, ok, err := m.legacy.GetRaw(legacy.KeyChatRooms)
	if err != nil {
		return nil, fmt.Errorf("reading legacy chat rooms: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var rooms []*store.ChatRoom
	if err := json.Unmarshal(raw, &rooms); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("chat rooms: undecodable payload: %v", err))
		return nil, nil
	}

	if m.opts.SkipExistingData && existing > 0 {
		res.SkippedItems += len(rooms)
		m.logger.Info("skipping chat room migration, structured store has rooms", "skipped", len(rooms))
		return nil, nil
	}

	failed := false
	for _, room := range rooms {
		if err := m.db.SaveChatRoom(ctx, room); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("chat room %s: %v", room.ID, err))
			failed = true
			continue
		}
		res.MigratedItems++
	}
	if failed {
		return nil, nil
	}
	return []string{legacy.KeyChatRooms}, nil
}

// migrateSettings transfers every setting:* key. Keys are cleared
// individually, so one bad setting only protects itself.
func (m *Migrator) migrateSettings(ctx context.Context, res *Result, existing int) ([]string, error) {
	keys, err := m.legacy.Keys()
	if err != nil {
		return nil, fmt.Errorf("listing legacy keys: %w", err)
	}

	var settingKeys []string
	for _, k := range keys {
		if strings.HasPrefix(k, legacy.SettingKeyPrefix) {
			settingKeys = append(settingKeys, k)
		}
	}
	if len(settingKeys) == 0 {
		return nil, nil
	}

	if m.opts.SkipExistingData && existing > 0 {
		res.SkippedItems += len(settingKeys)
		m.logger.Info("skipping settings migration, structured store has settings", "skipped", len(settingKeys))
		return nil, nil
	}

	var migrated []string
	for _, k := range settingKeys {
		raw, ok, err := m.legacy.GetRaw(k)
		if err != nil {
			return nil, fmt.Errorf("reading legacy setting %q: %w", k, err)
		}
		if !ok {
			continue
		}
		var setting store.Setting
		if err := json.Unmarshal(raw, &setting); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("setting %s: undecodable: %v", k, err))
			continue
		}
		if setting.Key == "" {
			setting.Key = strings.TrimPrefix(k, legacy.SettingKeyPrefix)
		}
		if err := m.db.SetSetting(ctx, &setting); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("setting %s: %v", setting.Key, err))
			continue
		}
		res.MigratedItems++
		migrated = append(migrated, k)
	}
	return migrated, nil
}

// migrateTranscriptions transfers the transcription array.
func (m *Migrator) migrateTranscriptions(ctx context.Context, res *Result, existing int) ([]string, error) {
	raw, ok, err := m.legacy.GetRaw(legacy.KeyTranscriptions)
	if err != nil {
		return nil, fmt.Errorf("reading legacy transcriptions: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var entries []*store.Transcription
	if err := json.Unmarshal(raw, &entries); err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("transcriptions: undecodable payload: %v", err))
		return nil, nil
	}

	if m.opts.SkipExistingData && existing > 0 {
		res.SkippedItems += len(entries)
		m.logger.Info("skipping transcription migration, structured store has transcriptions", "skipped", len(entries))
		return nil, nil
	}

	failed := false
	for _, entry := range entries {
		if err := m.db.SaveTranscription(ctx, entry); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("transcription %s: %v", entry.ID, err))
			failed = true
			continue
		}
		res.MigratedItems++
	}
	if failed {
		return nil, nil
	}
	return []string{legacy.KeyTranscriptions}, nil
}
