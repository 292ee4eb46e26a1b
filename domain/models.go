// Package domain defines the core domain models for chatd.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the sender of a message. It is a closed two-variant
// tag: every code path produces either RoleUser or RoleAssistant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session represents one persisted conversation thread.
type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title,omitempty"` // empty means untitled
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages,omitempty"` // loaded lazily
}

// Message represents a single turn within a session.
//
// DisplayedAt is a clock string fixed when the message is created (user
// turns) or sealed (assistant turns); it is empty while an assistant
// placeholder is still accumulating. Sources is assistant-only and set
// once at seal time.
type Message struct {
	MessageID   string   `json:"message_id"`
	SessionID   string   `json:"session_id"`
	Role        Role     `json:"role"`
	Content     string   `json:"content"`
	DisplayedAt string   `json:"displayed_at,omitempty"`
	Sources     []string `json:"sources,omitempty"`

	sealed bool
}

// Sealed reports whether the message content and timestamp are final.
func (m *Message) Sealed() bool { return m.sealed }

// MarkSealed fixes the message. After sealing, the conversation state
// machine never touches it again.
func (m *Message) MarkSealed() { m.sealed = true }

// DisplayClock formats an instant the way messages display it.
func DisplayClock(t time.Time) string {
	return t.Format("15:04")
}

// NewSessionID returns a server-assigned session identifier.
func NewSessionID() string {
	return "sess_" + uuid.New().String()[:8]
}

// NewMessageID returns a server-assigned message identifier.
func NewMessageID() string {
	return "msg_" + uuid.New().String()[:8]
}

// NewLocalMessageID returns a time-based identifier for an optimistic
// message that has not been persisted yet. The store replaces it with a
// server identifier on append.
func NewLocalMessageID(now time.Time) string {
	return fmt.Sprintf("local-%d", now.UnixNano())
}

// IsLocalMessageID reports whether id is an optimistic client identifier.
func IsLocalMessageID(id string) bool {
	return len(id) > 6 && id[:6] == "local-"
}
