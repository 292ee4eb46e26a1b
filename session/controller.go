package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/harborchat/chatd/backend"
	"github.com/harborchat/chatd/domain"
	"github.com/harborchat/chatd/policy"
	"github.com/harborchat/chatd/store"
)

// assistantErrorText is the inline message shown when an exchange fails
// after the user's message is already visible.
const assistantErrorText = "Something went wrong while answering. Please try again."

// persistTimeout bounds best-effort persistence after the request
// context is already gone.
const persistTimeout = 5 * time.Second

// TurnObserver receives each stream event of a turn together with the
// reconciled view of the message list after applying it.
type TurnObserver func(event domain.StreamEvent, view []domain.Message)

// Deps bundles the collaborators a controller needs. One Deps value is
// shared by every controller the Registry opens.
type Deps struct {
	Store   store.Store
	Channel backend.Channel
	Policy  *policy.Engine
	Logger  *zap.Logger

	// MinSendInterval is the double-submit gate between sends.
	MinSendInterval time.Duration

	// HistoryLimit caps how many prior messages accompany an exchange
	// to the backend. Zero means no cap.
	HistoryLimit int
}

// Controller drives full exchanges for one session: it validates a
// send, persists the user message, opens the streaming channel, feeds
// events through the conversation state machine, persists the sealed
// assistant message and keeps the session title fresh.
//
// A controller is constructed when a session is opened and torn down
// when it closes; the Registry is the only shared index.
type Controller struct {
	userID  string
	deps    Deps
	store   store.Store
	titles  TitleAdvisor
	limiter *rate.Limiter
	logger  *zap.Logger

	mu    sync.Mutex
	conv  *Conversation
	title string
}

// NewController creates a controller for an existing session (sess with
// its messages loaded) or, with sess == nil, for a conversation that
// has no session yet; the session is then created on first send.
func NewController(userID string, sess *domain.Session, deps Deps) *Controller {
	c := &Controller{
		userID:  userID,
		deps:    deps,
		store:   deps.Store,
		limiter: rate.NewLimiter(rate.Every(deps.MinSendInterval), 1),
		logger:  deps.Logger,
	}
	if sess != nil {
		c.conv = NewConversation(sess.SessionID, sess.Messages)
		c.title = sess.Title
	} else {
		c.conv = NewConversation("", nil)
	}
	return c
}

// SessionID returns the session identifier, or "" before first send.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.SessionID()
}

// Messages returns a snapshot of the current message list.
func (c *Controller) Messages() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.Messages()
}

// InFlight reports whether an exchange is currently streaming.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv.InFlight()
}

// ensureSessionLocked creates the session if it does not exist yet,
// deriving a synchronous first-exchange title from the opening message
// so the session list never shows a blank entry.
func (c *Controller) ensureSessionLocked(ctx context.Context, openingText string) (string, error) {
	if id := c.conv.SessionID(); id != "" {
		return id, nil
	}

	title := SimpleTitle(openingText)
	sess, err := c.store.CreateSession(ctx, c.userID, title)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	c.conv.SetSessionID(sess.SessionID)
	c.title = title
	c.logger.Info("session created",
		zap.String("session_id", sess.SessionID),
		zap.String("user_id", c.userID))
	return sess.SessionID, nil
}

// Send runs one full turn. Validation failures are returned before any
// state changes; once the user message is visible, failures degrade to
// an inline assistant error turn and Send returns nil. observe may be
// nil.
func (c *Controller) Send(ctx context.Context, text string, observe TurnObserver) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrEmptyMessage
	}

	history, err := c.beginTurn(ctx, text)
	if err != nil {
		return err
	}

	events, err := c.deps.Channel.Open(ctx, text, c.userID, history)
	if err != nil {
		c.logger.Warn("failed to open stream", zap.Error(err),
			zap.String("session_id", c.SessionID()))
		c.failTurn(observe)
		return nil
	}

	for event := range events {
		switch event.Type {
		case domain.EventStart:
			c.notify(observe, event)

		case domain.EventChunk:
			c.mu.Lock()
			if err := c.conv.ApplyChunk(event.Accumulated); err != nil {
				c.mu.Unlock()
				c.logger.Warn("chunk after terminal event dropped",
					zap.String("session_id", c.conv.SessionID()))
				continue
			}
			c.mu.Unlock()
			c.notify(observe, event)

		case domain.EventComplete:
			c.completeTurn(event, observe)

		case domain.EventError:
			c.logger.Warn("exchange failed", zap.String("reason", event.Content),
				zap.String("session_id", c.SessionID()))
			c.failTurn(observe)
		}
	}

	// Abandoned or truncated stream: never leave the session wedged in
	// the streaming state or the placeholder permanently empty.
	if c.InFlight() {
		c.logger.Warn("stream ended without terminal event",
			zap.String("session_id", c.SessionID()))
		c.failTurn(observe)
	}
	return nil
}

// beginTurn performs the synchronous phase of a send: gates, session
// creation, user-message persistence and the placeholder append. It
// returns the history to hand to the backend (the conversation before
// this turn).
func (c *Controller) beginTurn(ctx context.Context, text string) ([]domain.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conv.InFlight() {
		return nil, domain.ErrExchangeInFlight
	}

	decision, err := c.deps.Policy.Evaluate(ctx, policy.SendInput{
		UserID:  c.userID,
		Content: text,
		Length:  len(text),
	})
	if err != nil {
		// Policy trouble must not take the conversation down.
		c.logger.Error("send policy evaluation failed", zap.Error(err))
	} else if decision == "block" {
		return nil, domain.ErrPolicyBlocked
	}

	// The double-submit gate comes last of the gates and is returned on
	// abort: a rejected or failed turn must not burn the send budget,
	// or a legitimate retry inside the interval gets ErrSendTooSoon.
	reservation := c.limiter.Reserve()
	if !reservation.OK() || reservation.Delay() > 0 {
		reservation.Cancel()
		return nil, domain.ErrSendTooSoon
	}

	if _, err := c.ensureSessionLocked(ctx, text); err != nil {
		reservation.Cancel()
		return nil, err
	}

	history := c.conv.Messages()
	if limit := c.deps.HistoryLimit; limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}

	// Persist before making the message visible: a failure here aborts
	// the turn with nothing to roll back.
	now := time.Now()
	userMsg := &domain.Message{
		MessageID:   domain.NewLocalMessageID(now),
		SessionID:   c.conv.SessionID(),
		Role:        domain.RoleUser,
		Content:     text,
		DisplayedAt: domain.DisplayClock(now),
	}
	if err := c.store.AppendMessage(ctx, userMsg); err != nil {
		reservation.Cancel()
		return nil, fmt.Errorf("failed to persist user message: %w", err)
	}

	if _, err := c.conv.AppendUserMessage(text, now); err != nil {
		reservation.Cancel()
		return nil, err
	}
	c.conv.AdoptMessageID(c.conv.Len()-1, userMsg.MessageID)

	if err := c.conv.BeginAssistantPlaceholder(now); err != nil {
		reservation.Cancel()
		return nil, err
	}
	return history, nil
}

// completeTurn seals the placeholder with the final content, persists
// the assistant message and retitles the session if advised. Everything
// past the seal is best-effort.
func (c *Controller) completeTurn(event domain.StreamEvent, observe TurnObserver) {
	c.mu.Lock()
	sealed, err := c.conv.Seal(event.Content, event.Sources, time.Now())
	if err != nil {
		c.mu.Unlock()
		c.logger.Warn("duplicate terminal event dropped",
			zap.String("session_id", c.conv.SessionID()))
		return
	}
	persistCopy := *sealed
	messageCount := c.conv.Len()
	sealedIdx := messageCount - 1
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	// The conversation is idle again, so another turn may append while
	// this persist runs; the server ID must land on the sealed message,
	// not whatever is last by then.
	if err := c.store.AppendMessage(ctx, &persistCopy); err != nil {
		c.logger.Error("failed to persist assistant message", zap.Error(err),
			zap.String("session_id", persistCopy.SessionID))
	} else {
		c.mu.Lock()
		c.conv.AdoptMessageID(sealedIdx, persistCopy.MessageID)
		c.mu.Unlock()
	}

	c.maybeRetitle(ctx, messageCount)
	c.notify(observe, event)
}

// failTurn seals the placeholder with the localized error text and
// still tries to persist that error turn so history reflects it.
func (c *Controller) failTurn(observe TurnObserver) {
	c.mu.Lock()
	sealed, err := c.conv.Fail(assistantErrorText, time.Now())
	if err != nil {
		c.mu.Unlock()
		return
	}
	persistCopy := *sealed
	sealedIdx := c.conv.Len() - 1
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.store.AppendMessage(ctx, &persistCopy); err != nil {
		c.logger.Warn("failed to persist error turn", zap.Error(err),
			zap.String("session_id", persistCopy.SessionID))
	} else {
		c.mu.Lock()
		c.conv.AdoptMessageID(sealedIdx, persistCopy.MessageID)
		c.mu.Unlock()
	}

	c.notify(observe, domain.StreamEvent{
		Type:    domain.EventError,
		Content: assistantErrorText,
	})
}

// maybeRetitle proposes a higher-quality title from the full exchange
// and applies it when the advisor permits. Failures are logged and
// swallowed; titling never blocks the turn.
func (c *Controller) maybeRetitle(ctx context.Context, messageCount int) {
	c.mu.Lock()
	current := c.title
	messages := c.conv.Messages()
	sessionID := c.conv.SessionID()
	c.mu.Unlock()

	if !c.titles.ShouldUpdate(current, messageCount) {
		return
	}

	proposal := c.titles.ProposeTitle(messages)
	if proposal == "" || proposal == current {
		return
	}

	ok, err := c.store.UpdateTitle(ctx, sessionID, proposal)
	if err != nil || !ok {
		c.logger.Warn("title update failed", zap.Error(err),
			zap.String("session_id", sessionID))
		return
	}

	c.mu.Lock()
	c.title = proposal
	c.mu.Unlock()
}

// notify hands the observer the event plus a consistent view snapshot.
func (c *Controller) notify(observe TurnObserver, event domain.StreamEvent) {
	if observe == nil {
		return
	}
	observe(event, c.Messages())
}
