// ABOUTME: Entity types shared by every storage tier
// ABOUTME: Defines ChatRoom, Message, Setting, Transcription and the Session sub-record

package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionResumableWindow is how long a stored session handle stays
// valid after the last successful connection. Validity is computed at
// read time; nothing sweeps expired handles.
const SessionResumableWindow = 15 * time.Minute

// Session is the resumption sub-record of a chat room. Handle and
// LastConnected are nil when no resumable session is stored.
type Session struct {
	Handle        *string    `json:"sessionHandle"`
	LastConnected *time.Time `json:"lastConnected"`
	Resumable     bool       `json:"isResumable"`
}

// CanResume reports whether the stored handle is still inside the
// resumable window at the given instant.
func (s Session) CanResume(now time.Time) bool {
	if !s.Resumable || s.Handle == nil || s.LastConnected == nil {
		return false
	}
	return now.Sub(*s.LastConnected) <= SessionResumableWindow
}

// RoomConfig holds per-room conversation options. Stored as a JSON
// blob; absent for rooms created before configuration existed.
type RoomConfig struct {
	Model        string `json:"model,omitempty"`
	Voice        string `json:"voice,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
	Language     string `json:"language,omitempty"`
}

// ChatRoom is a conversation and its owned messages. Messages are
// referenced by foreign key in the structured store but carried inline
// on the struct so a room round-trips as one unit.
type ChatRoom struct {
	ID            string      `json:"id"`
	Name          string      `json:"name"`
	CreatedAt     time.Time   `json:"createdAt"`
	LastMessageAt time.Time   `json:"lastMessageAt"`
	Active        bool        `json:"isActive"`
	Config        *RoomConfig `json:"config,omitempty"`
	Session       Session     `json:"session"`
	Messages      []*Message  `json:"messages,omitempty"`
}

// Clone returns a deep copy of the room.
func (r *ChatRoom) Clone() *ChatRoom {
	if r == nil {
		return nil
	}
	out := *r
	if r.Config != nil {
		cfg := *r.Config
		out.Config = &cfg
	}
	if r.Session.Handle != nil {
		h := *r.Session.Handle
		out.Session.Handle = &h
	}
	if r.Session.LastConnected != nil {
		t := *r.Session.LastConnected
		out.Session.LastConnected = &t
	}
	if r.Messages != nil {
		out.Messages = make([]*Message, len(r.Messages))
		for i, m := range r.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	return &out
}

// MessageType constants for message types
const (
	MessageTypeUser      = "user"
	MessageTypeAssistant = "assistant"
)

// Message is a single turn within a chat room. It may be mutated in
// place while a response streams and is immutable once the turn
// completes.
type Message struct {
	ID         string    `json:"id"`
	ChatRoomID string    `json:"chatRoomId"`
	Type       string    `json:"type"` // "user" or "assistant"
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	AudioRef   *string   `json:"audioRef,omitempty"`
	Transcript *string   `json:"transcript,omitempty"`
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.AudioRef != nil {
		a := *m.AudioRef
		out.AudioRef = &a
	}
	if m.Transcript != nil {
		t := *m.Transcript
		out.Transcript = &t
	}
	return &out
}

// SettingKind tags the concrete type of a setting value.
type SettingKind string

const (
	SettingString SettingKind = "string"
	SettingBool   SettingKind = "bool"
	SettingNumber SettingKind = "number"
	SettingJSON   SettingKind = "json"
)

// SettingValue is the tagged union stored for every setting. Exactly
// one of the value fields is meaningful, selected by Kind.
type SettingValue struct {
	Kind SettingKind
	Str  string
	Bool bool
	Num  float64
	JSON json.RawMessage
}

// StringValue wraps s as a setting value.
func StringValue(s string) SettingValue { return SettingValue{Kind: SettingString, Str: s} }

// BoolValue wraps b as a setting value.
func BoolValue(b bool) SettingValue { return SettingValue{Kind: SettingBool, Bool: b} }

// NumberValue wraps n as a setting value.
func NumberValue(n float64) SettingValue { return SettingValue{Kind: SettingNumber, Num: n} }

// JSONValue wraps raw JSON as a setting value.
func JSONValue(raw json.RawMessage) SettingValue { return SettingValue{Kind: SettingJSON, JSON: raw} }

// MarshalJSON encodes the value as {"kind": ..., "value": ...}.
func (v SettingValue) MarshalJSON() ([]byte, error) {
	var val any
	switch v.Kind {
	case SettingString:
		val = v.Str
	case SettingBool:
		val = v.Bool
	case SettingNumber:
		val = v.Num
	case SettingJSON:
		val = v.JSON
	default:
		return nil, fmt.Errorf("unknown setting kind %q", v.Kind)
	}
	return json.Marshal(struct {
		Kind  SettingKind `json:"kind"`
		Value any         `json:"value"`
	}{v.Kind, val})
}

// UnmarshalJSON decodes the {"kind": ..., "value": ...} envelope.
func (v *SettingValue) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind  SettingKind     `json:"kind"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = SettingValue{Kind: raw.Kind}
	switch raw.Kind {
	case SettingString:
		return json.Unmarshal(raw.Value, &v.Str)
	case SettingBool:
		return json.Unmarshal(raw.Value, &v.Bool)
	case SettingNumber:
		return json.Unmarshal(raw.Value, &v.Num)
	case SettingJSON:
		v.JSON = append(json.RawMessage(nil), raw.Value...)
		return nil
	default:
		return fmt.Errorf("unknown setting kind %q", raw.Kind)
	}
}

// Equal reports whether two setting values are the same kind and value.
func (v SettingValue) Equal(other SettingValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case SettingString:
		return v.Str == other.Str
	case SettingBool:
		return v.Bool == other.Bool
	case SettingNumber:
		return v.Num == other.Num
	case SettingJSON:
		return string(v.JSON) == string(other.JSON)
	}
	return false
}

// Setting is a single configuration entry keyed by name.
type Setting struct {
	Key       string       `json:"key"`
	Value     SettingValue `json:"value"`
	UpdatedAt time.Time    `json:"timestamp"`
	Version   int          `json:"version,omitempty"`
}

// Clone returns a deep copy of the setting.
func (s *Setting) Clone() *Setting {
	if s == nil {
		return nil
	}
	out := *s
	if s.Value.JSON != nil {
		out.Value.JSON = append(json.RawMessage(nil), s.Value.JSON...)
	}
	return &out
}

// Transcription is a transient speech-to-text entry for a room. Rooms
// can accumulate many; cleanup is application-driven.
type Transcription struct {
	ID         string    `json:"id"`
	ChatRoomID string    `json:"chatRoomId"`
	Content    string    `json:"content"`
	Active     bool      `json:"isActive"`
	Final      bool      `json:"isFinal"`
	Timestamp  time.Time `json:"timestamp"`
}

// Clone returns a copy of the transcription.
func (t *Transcription) Clone() *Transcription {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}

// Counts summarizes how many entities a tier holds.
type Counts struct {
	ChatRooms      int `json:"chatRooms"`
	Messages       int `json:"messages"`
	Settings       int `json:"settings"`
	Transcriptions int `json:"transcriptions"`
}
