// ABOUTME: Tests for entity operations over the legacy flat layout
// ABOUTME: Covers rooms with embedded messages, prefixed settings, and transcriptions

package legacy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/power7414/chatstore/internal/store"
)

func TestSaveAndGetChatRoom(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	room := &store.ChatRoom{
		ID:        "room-1",
		Name:      "flat room",
		CreatedAt: base,
		Messages: []*store.Message{
			{ID: "m2", Type: store.MessageTypeAssistant, Content: "later", Timestamp: base.Add(2 * time.Second)},
			{ID: "m1", Type: store.MessageTypeUser, Content: "earlier", Timestamp: base.Add(time.Second)},
		},
	}
	if err := s.SaveChatRoom(ctx, room); err != nil {
		t.Fatalf("SaveChatRoom failed: %v", err)
	}

	got, err := s.GetChatRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetChatRoom failed: %v", err)
	}
	if got.Name != "flat room" {
		t.Errorf("Name mismatch: got %q", got.Name)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].ID != "m1" || got.Messages[1].ID != "m2" {
		t.Errorf("messages not sorted: [%s, %s]", got.Messages[0].ID, got.Messages[1].ID)
	}
}

func TestGetChatRoom_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetChatRoom(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAddMessage_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveChatRoom(ctx, &store.ChatRoom{ID: "room-1", Name: "r"}); err != nil {
		t.Fatalf("SaveChatRoom failed: %v", err)
	}

	ts := time.Now().UTC().Truncate(time.Millisecond)
	msg := &store.Message{ID: "m1", Type: store.MessageTypeUser, Content: "hi", Timestamp: ts}
	if err := s.AddMessage(ctx, "room-1", msg); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	room, err := s.GetChatRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetChatRoom failed: %v", err)
	}
	if len(room.Messages) != 1 || room.Messages[0].Content != "hi" {
		t.Errorf("message not embedded in room: %+v", room.Messages)
	}
	if !room.LastMessageAt.Equal(ts) {
		t.Errorf("LastMessageAt not bumped: got %v, want %v", room.LastMessageAt, ts)
	}
}

func TestAddMessage_RoomNotFound(t *testing.T) {
	s := newTestStore(t)

	err := s.AddMessage(context.Background(), "ghost", &store.Message{Content: "orphan"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAddMessage_ConcurrentWritersAllSurvive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveChatRoom(ctx, &store.ChatRoom{ID: "room-1", Name: "busy"}); err != nil {
		t.Fatalf("SaveChatRoom failed: %v", err)
	}

	const writers = 50
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- s.AddMessage(ctx, "room-1", &store.Message{Content: fmt.Sprintf("msg %d", n)})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("AddMessage failed: %v", err)
		}
	}

	msgs, err := s.GetMessages(ctx, "room-1", 0, 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != writers {
		t.Errorf("expected %d messages, got %d", writers, len(msgs))
	}
}

func TestSaveTranscription_ConcurrentWritersAllSurvive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- s.SaveTranscription(ctx, &store.Transcription{
				ID:         fmt.Sprintf("t%d", n),
				ChatRoomID: "room-1",
				Content:    fmt.Sprintf("chunk %d", n),
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("SaveTranscription failed: %v", err)
		}
	}

	got, err := s.GetTranscriptions(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetTranscriptions failed: %v", err)
	}
	if len(got) != writers {
		t.Errorf("expected %d transcriptions, got %d", writers, len(got))
	}
}

func TestGetMessages_Pagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveChatRoom(ctx, &store.ChatRoom{ID: "room-1", Name: "r"}); err != nil {
		t.Fatalf("SaveChatRoom failed: %v", err)
	}
	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 4; i++ {
		msg := &store.Message{
			ID:        fmt.Sprintf("m%d", i),
			Content:   fmt.Sprintf("msg %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.AddMessage(ctx, "room-1", msg); err != nil {
			t.Fatalf("AddMessage(%d) failed: %v", i, err)
		}
	}

	page, err := s.GetMessages(ctx, "room-1", 2, 1)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(page) != 2 || page[0].ID != "m1" || page[1].ID != "m2" {
		t.Errorf("page wrong: %+v", page)
	}
}

func TestSettings_PrefixedKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SetSetting(ctx, &store.Setting{Key: "theme", Value: store.StringValue("dark")}); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}

	// Settings live under their own key prefix in the flat layout.
	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	found := false
	for _, k := range keys {
		if k == SettingKeyPrefix+"theme" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected key %q, got %v", SettingKeyPrefix+"theme", keys)
	}

	got, err := s.GetSetting(ctx, "theme")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if got.Value.Str != "dark" {
		t.Errorf("value mismatch: %+v", got.Value)
	}

	if err := s.DeleteSetting(ctx, "theme"); err != nil {
		t.Fatalf("DeleteSetting failed: %v", err)
	}
	if _, err := s.GetSetting(ctx, "theme"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGetAllSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"b", "a"} {
		if err := s.SetSetting(ctx, &store.Setting{Key: k, Value: store.StringValue(k)}); err != nil {
			t.Fatalf("SetSetting(%s) failed: %v", k, err)
		}
	}

	settings, err := s.GetAllSettings(ctx)
	if err != nil {
		t.Fatalf("GetAllSettings failed: %v", err)
	}
	if len(settings) != 2 {
		t.Fatalf("expected 2 settings, got %d", len(settings))
	}
	if settings[0].Key != "a" || settings[1].Key != "b" {
		t.Errorf("settings not sorted by key: [%s, %s]", settings[0].Key, settings[1].Key)
	}
}

func TestTranscriptions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, id := range []string{"t2", "t1"} {
		e := &store.Transcription{
			ID:         id,
			ChatRoomID: "room-1",
			Content:    id,
			Timestamp:  base.Add(time.Duration(2-i) * time.Second),
		}
		if err := s.SaveTranscription(ctx, e); err != nil {
			t.Fatalf("SaveTranscription(%s) failed: %v", id, err)
		}
	}

	got, err := s.GetTranscriptions(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetTranscriptions failed: %v", err)
	}
	if len(got) != 2 || got[0].ID != "t1" || got[1].ID != "t2" {
		t.Errorf("transcriptions wrong: %+v", got)
	}

	if err := s.DeleteTranscriptions(ctx, "room-1"); err != nil {
		t.Fatalf("DeleteTranscriptions failed: %v", err)
	}
	got, err = s.GetTranscriptions(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetTranscriptions after delete failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no transcriptions, got %d", len(got))
	}
}

func TestCounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	room := &store.ChatRoom{
		ID:   "room-1",
		Name: "r",
		Messages: []*store.Message{
			{ID: "m1", Content: "one", Timestamp: time.Now().UTC()},
			{ID: "m2", Content: "two", Timestamp: time.Now().UTC()},
		},
	}
	if err := s.SaveChatRoom(ctx, room); err != nil {
		t.Fatalf("SaveChatRoom failed: %v", err)
	}
	if err := s.SetSetting(ctx, &store.Setting{Key: "k", Value: store.BoolValue(true)}); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := s.SaveTranscription(ctx, &store.Transcription{ID: "t1", ChatRoomID: "room-1", Content: "x"}); err != nil {
		t.Fatalf("SaveTranscription failed: %v", err)
	}

	counts, err := s.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts failed: %v", err)
	}
	want := store.Counts{ChatRooms: 1, Messages: 2, Settings: 1, Transcriptions: 1}
	if counts != want {
		t.Errorf("counts mismatch: got %+v, want %+v", counts, want)
	}
}
