// ABOUTME: ExportData builds one serializable snapshot of everything stored
// ABOUTME: Best-effort read across whichever tier is currently active

package service

import (
	"context"
	"time"

	"github.com/power7414/chatstore/internal/store"
)

// Snapshot is the single serializable export of all persisted state.
type Snapshot struct {
	ExportedAt     time.Time              `json:"exportedAt"`
	ChatRooms      []*store.ChatRoom      `json:"chatRooms"`
	Settings       []*store.Setting       `json:"settings"`
	Transcriptions []*store.Transcription `json:"transcriptions"`
}

// ExportData collects every chat room (with messages), setting, and
// transcription into one snapshot for backup or download. Rooms whose
// detail read fails mid-export are included without messages rather
// than failing the whole export.
func (s *Service) ExportData(ctx context.Context) (*Snapshot, error) {
	rooms, err := s.GetAllChatRooms(ctx)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		ExportedAt: time.Now().UTC(),
		ChatRooms:  make([]*store.ChatRoom, 0, len(rooms)),
	}

	for _, r := range rooms {
		full, err := s.GetChatRoom(ctx, r.ID)
		if err != nil {
			s.logger.Warn("export: room detail read failed", "id", r.ID, "error", err)
			snap.ChatRooms = append(snap.ChatRooms, r)
			continue
		}
		snap.ChatRooms = append(snap.ChatRooms, full)

		entries, err := s.GetTranscriptions(ctx, r.ID)
		if err != nil {
			s.logger.Warn("export: transcription read failed", "id", r.ID, "error", err)
			continue
		}
		snap.Transcriptions = append(snap.Transcriptions, entries...)
	}

	settings, err := s.GetAllSettings(ctx)
	if err != nil {
		s.logger.Warn("export: settings read failed", "error", err)
	} else {
		snap.Settings = settings
	}

	return snap, nil
}
