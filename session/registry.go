package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/harborchat/chatd/domain"
)

// Registry is the single shared index of open sessions, mapping
// session id to its controller. Each controller owns its session's
// state independently, so an exchange keeps streaming in the
// background while other sessions are worked on.
type Registry struct {
	deps Deps

	mu          sync.Mutex
	controllers map[string]*Controller
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:        deps,
		controllers: make(map[string]*Controller),
	}
}

// Open returns the controller for an existing session, constructing it
// from persisted history on first use. Returns ErrSessionNotFound for
// an unknown session id.
func (r *Registry) Open(ctx context.Context, sessionID string) (*Controller, error) {
	r.mu.Lock()
	if ctrl, ok := r.controllers[sessionID]; ok {
		r.mu.Unlock()
		return ctrl, nil
	}
	r.mu.Unlock()

	// Load outside the lock; session history can be large.
	sess, err := r.deps.Store.GetSessionWithMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if sess == nil {
		return nil, domain.ErrSessionNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ctrl, ok := r.controllers[sessionID]; ok {
		// Lost the race to another opener; theirs wins.
		return ctrl, nil
	}
	ctrl := NewController(sess.UserID, sess, r.deps)
	r.controllers[sessionID] = ctrl
	return ctrl, nil
}

// OpenNew constructs a controller with no session yet. Call Bind once
// the session exists so later opens find it.
func (r *Registry) OpenNew(userID string) *Controller {
	return NewController(userID, nil, r.deps)
}

// Bind indexes a controller under its session id.
func (r *Registry) Bind(ctrl *Controller) {
	id := ctrl.SessionID()
	if id == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers[id] = ctrl
}

// Close tears down a session's controller, if open.
func (r *Registry) Close(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.controllers, sessionID)
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}
