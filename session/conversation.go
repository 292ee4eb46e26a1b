// Package session implements the chat session core: the per-session
// conversation state machine, the controller that drives one exchange
// end to end, the title heuristics, and the registry of open sessions.
package session

import (
	"time"

	"github.com/harborchat/chatd/domain"
)

type convState int

const (
	stateIdle convState = iota
	stateStreaming
)

// Conversation owns the in-memory ordered message list for one session
// and applies streaming events to it. The list only ever grows; the
// single mutation allowed is the in-place content replacement of the
// active assistant placeholder, and a sealed message is never touched
// again. At most one exchange is in flight at a time.
//
// Conversation is not safe for concurrent use; the owning Controller
// serializes all access, including view snapshots.
type Conversation struct {
	sessionID string
	state     convState
	messages  []domain.Message
}

// NewConversation creates the state machine for a session, seeded with
// its already-persisted history.
func NewConversation(sessionID string, history []domain.Message) *Conversation {
	msgs := make([]domain.Message, len(history))
	copy(msgs, history)
	return &Conversation{
		sessionID: sessionID,
		state:     stateIdle,
		messages:  msgs,
	}
}

// SetSessionID adopts the server-assigned identifier once the session
// exists. Only valid before any message has been persisted under it.
func (c *Conversation) SetSessionID(id string) { c.sessionID = id }

// SessionID returns the owning session identifier.
func (c *Conversation) SessionID() string { return c.sessionID }

// InFlight reports whether an assistant reply is still streaming.
func (c *Conversation) InFlight() bool { return c.state == stateStreaming }

// Len returns the number of messages in the list.
func (c *Conversation) Len() int { return len(c.messages) }

// Messages returns a snapshot copy of the ordered message list.
func (c *Conversation) Messages() []domain.Message {
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// AppendUserMessage appends a sealed user message with an optimistic
// time-based identifier. Requires no exchange in flight.
func (c *Conversation) AppendUserMessage(text string, now time.Time) (*domain.Message, error) {
	if c.state != stateIdle {
		return nil, domain.ErrExchangeInFlight
	}

	msg := domain.Message{
		MessageID:   domain.NewLocalMessageID(now),
		SessionID:   c.sessionID,
		Role:        domain.RoleUser,
		Content:     text,
		DisplayedAt: domain.DisplayClock(now),
	}
	msg.MarkSealed()
	c.messages = append(c.messages, msg)
	return &c.messages[len(c.messages)-1], nil
}

// AdoptMessageID replaces the optimistic identifier of the message at
// idx with the server-assigned one. Adoption is by position, not "the
// most recent message": the list may have grown by the time a
// best-effort persist finishes, and the ID must land on the message
// that was actually persisted.
func (c *Conversation) AdoptMessageID(idx int, serverID string) {
	if idx < 0 || idx >= len(c.messages) {
		return
	}
	msg := &c.messages[idx]
	if domain.IsLocalMessageID(msg.MessageID) {
		msg.MessageID = serverID
	}
}

// BeginAssistantPlaceholder appends an empty assistant message and
// enters the streaming state. A second call without an intervening
// Seal or Fail is rejected and leaves the message list unchanged.
func (c *Conversation) BeginAssistantPlaceholder(now time.Time) error {
	if c.state == stateStreaming {
		return domain.ErrExchangeInFlight
	}

	c.messages = append(c.messages, domain.Message{
		MessageID: domain.NewLocalMessageID(now),
		SessionID: c.sessionID,
		Role:      domain.RoleAssistant,
	})
	c.state = stateStreaming
	return nil
}

// ApplyChunk replaces the placeholder's content with the accumulated
// text so far. Last writer wins; replaying identical chunk events is
// idempotent because the value replaces rather than concatenates.
func (c *Conversation) ApplyChunk(accumulated string) error {
	if c.state != stateStreaming {
		return domain.ErrExchangeInFlight
	}
	c.messages[len(c.messages)-1].Content = accumulated
	return nil
}

// Seal fixes the placeholder's final content, sources and display
// timestamp and returns the session to idle. The sealed message is
// immutable from here on.
func (c *Conversation) Seal(finalText string, sources []string, now time.Time) (*domain.Message, error) {
	if c.state != stateStreaming {
		return nil, domain.ErrExchangeInFlight
	}

	last := &c.messages[len(c.messages)-1]
	last.Content = finalText
	last.Sources = sources
	last.DisplayedAt = domain.DisplayClock(now)
	last.MarkSealed()
	c.state = stateIdle
	return last, nil
}

// Fail seals the placeholder with an error message instead of model
// content so the session never shows a permanently empty assistant
// turn, and returns to idle.
func (c *Conversation) Fail(errorText string, now time.Time) (*domain.Message, error) {
	return c.Seal(errorText, nil, now)
}
