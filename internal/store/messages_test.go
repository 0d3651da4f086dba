// ABOUTME: Tests for message persistence within chat rooms
// ABOUTME: Covers add/update/delete, ordering, pagination, and activity bumping

package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func seedRoom(t *testing.T, db *DB, id string) {
	t.Helper()
	if err := db.SaveChatRoom(context.Background(), &ChatRoom{ID: id, Name: id}); err != nil {
		t.Fatalf("SaveChatRoom(%s) failed: %v", id, err)
	}
}

func TestAddMessage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedRoom(t, db, "room-1")

	msg := &Message{
		ID:        "m1",
		Type:      MessageTypeUser,
		Content:   "hello",
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
	if err := db.AddMessage(ctx, "room-1", msg); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	msgs, err := db.GetMessages(ctx, "room-1", 0, 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Content != "hello" || msgs[0].ChatRoomID != "room-1" {
		t.Errorf("message mismatch: %+v", msgs[0])
	}
}

func TestAddMessage_RoomNotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.AddMessage(context.Background(), "missing", &Message{Content: "orphan"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAddMessage_BumpsLastMessageAt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedRoom(t, db, "room-1")

	ts := time.Now().UTC().Truncate(time.Millisecond)
	msg := &Message{ID: "m1", Type: MessageTypeUser, Content: "ping", Timestamp: ts}
	if err := db.AddMessage(ctx, "room-1", msg); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	room, err := db.GetChatRoom(ctx, "room-1")
	if err != nil {
		t.Fatalf("GetChatRoom failed: %v", err)
	}
	if !room.LastMessageAt.Equal(ts) {
		t.Errorf("LastMessageAt: got %v, want %v", room.LastMessageAt, ts)
	}
}

func TestAddMessage_GeneratesIDAndTimestamp(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedRoom(t, db, "room-1")

	msg := &Message{Type: MessageTypeAssistant, Content: "defaults"}
	if err := db.AddMessage(ctx, "room-1", msg); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}
	if msg.ID == "" {
		t.Error("expected generated message ID")
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected generated timestamp")
	}
}

func TestUpdateMessage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedRoom(t, db, "room-1")

	transcript := "partial"
	msg := &Message{ID: "m1", Type: MessageTypeAssistant, Content: "draft", Timestamp: time.Now().UTC(), Transcript: &transcript}
	if err := db.AddMessage(ctx, "room-1", msg); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	final := "final transcript"
	msg.Content = "final"
	msg.Transcript = &final
	if err := db.UpdateMessage(ctx, "room-1", msg); err != nil {
		t.Fatalf("UpdateMessage failed: %v", err)
	}

	msgs, err := db.GetMessages(ctx, "room-1", 0, 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if msgs[0].Content != "final" {
		t.Errorf("Content not updated: got %q", msgs[0].Content)
	}
	if msgs[0].Transcript == nil || *msgs[0].Transcript != "final transcript" {
		t.Errorf("Transcript not updated: got %v", msgs[0].Transcript)
	}
}

func TestUpdateMessage_NotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedRoom(t, db, "room-1")

	err := db.UpdateMessage(ctx, "room-1", &Message{ID: "ghost", Content: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetMessages_OrderAndPagination(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedRoom(t, db, "room-1")

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i := 0; i < 5; i++ {
		msg := &Message{
			ID:        fmt.Sprintf("m%d", i),
			Type:      MessageTypeUser,
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}
		if err := db.AddMessage(ctx, "room-1", msg); err != nil {
			t.Fatalf("AddMessage(%d) failed: %v", i, err)
		}
	}

	all, err := db.GetMessages(ctx, "room-1", 0, 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(all))
	}
	for i, m := range all {
		if m.ID != fmt.Sprintf("m%d", i) {
			t.Errorf("position %d: got %s, want m%d", i, m.ID, i)
		}
	}

	page, err := db.GetMessages(ctx, "room-1", 2, 1)
	if err != nil {
		t.Fatalf("GetMessages with pagination failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(page))
	}
	if page[0].ID != "m1" || page[1].ID != "m2" {
		t.Errorf("page wrong: got [%s, %s], want [m1, m2]", page[0].ID, page[1].ID)
	}
}

func TestGetMessages_EmptyRoom(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedRoom(t, db, "room-1")

	msgs, err := db.GetMessages(ctx, "room-1", 0, 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages, got %d", len(msgs))
	}
}

func TestDeleteMessage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	seedRoom(t, db, "room-1")

	msg := &Message{ID: "m1", Type: MessageTypeUser, Content: "bye", Timestamp: time.Now().UTC()}
	if err := db.AddMessage(ctx, "room-1", msg); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	if err := db.DeleteMessage(ctx, "m1"); err != nil {
		t.Fatalf("DeleteMessage failed: %v", err)
	}

	msgs, err := db.GetMessages(ctx, "room-1", 0, 0)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("message not deleted, %d remain", len(msgs))
	}
}

func TestRoomLifecycle_MessagesOrderedThenGoneWithRoom(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	if err := db.SaveChatRoom(ctx, &ChatRoom{ID: "r1", Name: "r1", CreatedAt: base}); err != nil {
		t.Fatalf("SaveChatRoom failed: %v", err)
	}
	if err := db.AddMessage(ctx, "r1", &Message{ID: "m1", Type: MessageTypeUser, Content: "first", Timestamp: base}); err != nil {
		t.Fatalf("AddMessage(m1) failed: %v", err)
	}
	if err := db.AddMessage(ctx, "r1", &Message{ID: "m2", Type: MessageTypeAssistant, Content: "second", Timestamp: base.Add(time.Second)}); err != nil {
		t.Fatalf("AddMessage(m2) failed: %v", err)
	}

	room, err := db.GetChatRoom(ctx, "r1")
	if err != nil {
		t.Fatalf("GetChatRoom failed: %v", err)
	}
	if len(room.Messages) != 2 || room.Messages[0].ID != "m1" || room.Messages[1].ID != "m2" {
		t.Fatalf("expected [m1, m2], got %+v", room.Messages)
	}

	if err := db.DeleteChatRoom(ctx, "r1"); err != nil {
		t.Fatalf("DeleteChatRoom failed: %v", err)
	}
	msgs, err := db.GetMessages(ctx, "r1", 0, 0)
	if err != nil {
		t.Fatalf("GetMessages after delete failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected no messages after room deletion, got %d", len(msgs))
	}
}

func TestDeleteMessage_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.DeleteMessage(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
