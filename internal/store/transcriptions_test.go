// ABOUTME: Tests for transcription persistence
// ABOUTME: Covers upsert by id, per-room ordering, and bulk delete

package store

import (
	"context"
	"testing"
	"time"
)

func TestSaveAndGetTranscriptions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	entries := []*Transcription{
		{ID: "t2", ChatRoomID: "room-1", Content: "second", Final: true, Timestamp: base.Add(2 * time.Second)},
		{ID: "t1", ChatRoomID: "room-1", Content: "first", Active: true, Timestamp: base.Add(1 * time.Second)},
		{ID: "t3", ChatRoomID: "room-2", Content: "other room", Timestamp: base},
	}
	for _, e := range entries {
		if err := db.SaveTranscription(ctx, e); err != nil {
			t.Fatalf("SaveTranscription(%s) failed: %v", e.ID, err)
		}
	}

	got, err := db.GetTranscriptions(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetTranscriptions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	if got[0].ID != "t1" || got[1].ID != "t2" {
		t.Errorf("order wrong: got [%s, %s], want [t1, t2]", got[0].ID, got[1].ID)
	}
	if !got[0].Active {
		t.Error("Active flag lost")
	}
	if !got[1].Final {
		t.Error("Final flag lost")
	}
}

func TestSaveTranscription_UpsertsInPlace(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	entry := &Transcription{ID: "t1", ChatRoomID: "room-1", Content: "interim", Active: true, Timestamp: time.Now().UTC()}
	if err := db.SaveTranscription(ctx, entry); err != nil {
		t.Fatalf("SaveTranscription failed: %v", err)
	}

	entry.Content = "final text"
	entry.Active = false
	entry.Final = true
	if err := db.SaveTranscription(ctx, entry); err != nil {
		t.Fatalf("second SaveTranscription failed: %v", err)
	}

	got, err := db.GetTranscriptions(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetTranscriptions failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry after upsert, got %d", len(got))
	}
	if got[0].Content != "final text" || !got[0].Final {
		t.Errorf("upsert mismatch: %+v", got[0])
	}
}

func TestDeleteTranscriptions(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i, id := range []string{"t1", "t2"} {
		e := &Transcription{ID: id, ChatRoomID: "room-1", Content: id, Timestamp: time.Now().UTC().Add(time.Duration(i) * time.Second)}
		if err := db.SaveTranscription(ctx, e); err != nil {
			t.Fatalf("SaveTranscription(%s) failed: %v", id, err)
		}
	}

	if err := db.DeleteTranscriptions(ctx, "room-1"); err != nil {
		t.Fatalf("DeleteTranscriptions failed: %v", err)
	}

	got, err := db.GetTranscriptions(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetTranscriptions failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no entries, got %d", len(got))
	}

	// Deleting a room with no transcriptions is not an error.
	if err := db.DeleteTranscriptions(ctx, "room-1"); err != nil {
		t.Errorf("second DeleteTranscriptions failed: %v", err)
	}
}
