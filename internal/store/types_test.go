// ABOUTME: Tests for session resumability window and setting value semantics
// ABOUTME: Covers the 15-minute expiry boundary and typed setting equality

package store

import (
	"encoding/json"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func TestSessionCanResume_WithinWindow(t *testing.T) {
	now := time.Now()
	session := Session{
		Handle:        strPtr("handle-abc"),
		LastConnected: timePtr(now.Add(-14 * time.Minute)),
		Resumable:     true,
	}

	if !session.CanResume(now) {
		t.Error("session disconnected 14 minutes ago should be resumable")
	}
}

func TestSessionCanResume_Expired(t *testing.T) {
	now := time.Now()
	session := Session{
		Handle:        strPtr("handle-abc"),
		LastConnected: timePtr(now.Add(-16 * time.Minute)),
		Resumable:     true,
	}

	if session.CanResume(now) {
		t.Error("session disconnected 16 minutes ago should not be resumable")
	}
}

func TestSessionCanResume_NotMarkedResumable(t *testing.T) {
	now := time.Now()
	session := Session{
		Handle:        strPtr("handle-abc"),
		LastConnected: timePtr(now.Add(-1 * time.Minute)),
		Resumable:     false,
	}

	if session.CanResume(now) {
		t.Error("session without resumable flag should not resume")
	}
}

func TestSessionCanResume_MissingHandle(t *testing.T) {
	now := time.Now()
	session := Session{
		LastConnected: timePtr(now.Add(-1 * time.Minute)),
		Resumable:     true,
	}

	if session.CanResume(now) {
		t.Error("session without a handle should not resume")
	}
}

func TestSettingValue_RoundTrip(t *testing.T) {
	values := []SettingValue{
		StringValue("dark"),
		BoolValue(true),
		NumberValue(42.5),
		JSONValue(json.RawMessage(`{"nested":[1,2,3]}`)),
	}

	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %v failed: %v", v.Kind, err)
		}
		var got SettingValue
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %v failed: %v", v.Kind, err)
		}
		if !got.Equal(v) {
			t.Errorf("%v round trip mismatch: got %+v, want %+v", v.Kind, got, v)
		}
	}
}

func TestSettingValue_KindMismatchNotEqual(t *testing.T) {
	if StringValue("true").Equal(BoolValue(true)) {
		t.Error("string and bool values should not compare equal")
	}
}

func TestChatRoomClone_Independent(t *testing.T) {
	room := &ChatRoom{
		ID:   "room-1",
		Name: "original",
		Config: &RoomConfig{
			Model: "gemini-2.0-flash-live-001",
		},
		Messages: []*Message{
			{ID: "m1", Content: "hello"},
		},
	}

	clone := room.Clone()
	clone.Name = "changed"
	clone.Config.Model = "other"
	clone.Messages[0].Content = "mutated"

	if room.Name != "original" {
		t.Error("clone shares Name with original")
	}
	if room.Config.Model != "gemini-2.0-flash-live-001" {
		t.Error("clone shares Config with original")
	}
	if room.Messages[0].Content != "hello" {
		t.Error("clone shares Messages with original")
	}
}
