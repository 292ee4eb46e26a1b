package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harborchat/chatd/domain"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys so session deletes cascade to messages
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, updated_at)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			displayed_at TEXT,
			sources TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (session_id) REFERENCES sessions(session_id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession creates a new session with a server-assigned identifier.
func (s *SQLiteStore) CreateSession(ctx context.Context, userID, title string) (*domain.Session, error) {
	now := time.Now().UTC()
	session := &domain.Session{
		SessionID: domain.NewSessionID(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var titleVal sql.NullString
	if title != "" {
		titleVal = sql.NullString{String: title, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, user_id, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		session.SessionID, session.UserID, titleVal, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession retrieves a session by ID without its messages.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	var title sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT session_id, user_id, title, created_at, updated_at FROM sessions WHERE session_id = ?`,
		sessionID).Scan(&session.SessionID, &session.UserID, &title, &session.CreatedAt, &session.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if title.Valid {
		session.Title = title.String
	}
	return &session, nil
}

// GetSessionWithMessages retrieves a session and its messages in
// conversation order.
func (s *SQLiteStore) GetSessionWithMessages(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil || session == nil {
		return session, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, session_id, role, content, displayed_at, sources
		 FROM messages WHERE session_id = ? ORDER BY created_at ASC, message_id ASC`,
		sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var msg domain.Message
		var displayedAt, sources sql.NullString
		if err := rows.Scan(&msg.MessageID, &msg.SessionID, &msg.Role, &msg.Content, &displayedAt, &sources); err != nil {
			return nil, err
		}
		if displayedAt.Valid {
			msg.DisplayedAt = displayedAt.String
		}
		if sources.Valid && sources.String != "" {
			if err := json.Unmarshal([]byte(sources.String), &msg.Sources); err != nil {
				return nil, fmt.Errorf("decode sources for %s: %w", msg.MessageID, err)
			}
		}
		msg.MarkSealed()
		session.Messages = append(session.Messages, msg)
	}
	return session, rows.Err()
}

// ListSessions lists a user's sessions, most recently updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, user_id, title, created_at, updated_at FROM sessions
		 WHERE user_id = ? ORDER BY updated_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSessions(rows)
}

// AppendMessage persists a message and bumps the session's updated_at.
// An optimistic local identifier is replaced by a server one; the
// updated_at bump uses MAX so the timestamp never moves backwards.
func (s *SQLiteStore) AppendMessage(ctx context.Context, message *domain.Message) error {
	if message.MessageID == "" || domain.IsLocalMessageID(message.MessageID) {
		message.MessageID = domain.NewMessageID()
	}

	var sources sql.NullString
	if len(message.Sources) > 0 {
		data, err := json.Marshal(message.Sources)
		if err != nil {
			return fmt.Errorf("encode sources: %w", err)
		}
		sources = sql.NullString{String: string(data), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = MAX(updated_at, ?) WHERE session_id = ?`,
		now, message.SessionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrSessionNotFound
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, role, content, displayed_at, sources, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		message.MessageID, message.SessionID, message.Role, message.Content,
		message.DisplayedAt, sources, now)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// UpdateTitle sets a session's title. Returns false when the session
// does not exist.
func (s *SQLiteStore) UpdateTitle(ctx context.Context, sessionID, title string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ? WHERE session_id = ?`,
		title, sessionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteSession removes a session and, via the foreign key, its
// messages. Returns false when the session does not exist.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SearchSessions finds a user's sessions whose title or message content
// matches the term, most recently updated first.
func (s *SQLiteStore) SearchSessions(ctx context.Context, userID, term string) ([]domain.Session, error) {
	pattern := "%" + term + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT s.session_id, s.user_id, s.title, s.created_at, s.updated_at
		 FROM sessions s
		 LEFT JOIN messages m ON m.session_id = s.session_id
		 WHERE s.user_id = ? AND (s.title LIKE ? OR m.content LIKE ?)
		 ORDER BY s.updated_at DESC`,
		userID, pattern, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]domain.Session, error) {
	var sessions []domain.Session
	for rows.Next() {
		var session domain.Session
		var title sql.NullString
		if err := rows.Scan(&session.SessionID, &session.UserID, &title, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, err
		}
		if title.Valid {
			session.Title = title.String
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}
