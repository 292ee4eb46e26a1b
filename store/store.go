// Package store defines the session persistence interface and its
// SQLite implementation.
package store

import (
	"context"

	"github.com/harborchat/chatd/domain"
)

// Store persists sessions and messages. Lookups that miss return
// (nil, nil); callers translate that into their own not-found handling.
type Store interface {
	// Session operations
	CreateSession(ctx context.Context, userID, title string) (*domain.Session, error)
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetSessionWithMessages(ctx context.Context, sessionID string) (*domain.Session, error)
	ListSessions(ctx context.Context, userID string) ([]domain.Session, error)
	UpdateTitle(ctx context.Context, sessionID, title string) (bool, error)
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
	SearchSessions(ctx context.Context, userID, term string) ([]domain.Session, error)

	// Message operations. AppendMessage assigns a server identifier
	// (replacing any optimistic local one) and bumps the owning
	// session's updated_at.
	AppendMessage(ctx context.Context, message *domain.Message) error

	// Lifecycle
	Close() error
}
