package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// SessionCreateRequest is the request to create a session.
type SessionCreateRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title,omitempty"`
}

// CreateSession creates a new session.
// POST /v1/sessions
func (h *Handler) CreateSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req SessionCreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}

	sess, err := h.store.CreateSession(ctx, req.UserID, req.Title)
	if err != nil {
		h.logger.Error("failed to create session", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to create session"})
	}

	return c.JSON(http.StatusCreated, sess)
}

// ListSessions lists sessions for a user, most recently updated first.
// GET /v1/sessions?user_id=
func (h *Handler) ListSessions(c echo.Context) error {
	ctx := c.Request().Context()

	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}

	sessions, err := h.store.ListSessions(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list sessions", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to list sessions"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}

// GetSession returns a session with its messages.
// GET /v1/sessions/:session_id
func (h *Handler) GetSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	sess, err := h.store.GetSessionWithMessages(ctx, sessionID)
	if err != nil {
		h.logger.Error("failed to get session", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to get session"})
	}
	if sess == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	return c.JSON(http.StatusOK, sess)
}

// DeleteSession deletes a session and its messages.
// DELETE /v1/sessions/:session_id
func (h *Handler) DeleteSession(c echo.Context) error {
	ctx := c.Request().Context()
	sessionID := c.Param("session_id")

	deleted, err := h.store.DeleteSession(ctx, sessionID)
	if err != nil {
		h.logger.Error("failed to delete session", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to delete session"})
	}
	if !deleted {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
	}

	h.registry.Close(sessionID)
	return c.NoContent(http.StatusNoContent)
}

// SearchSessions searches a user's sessions by title and message content.
// GET /v1/sessions/search?user_id=&q=
func (h *Handler) SearchSessions(c echo.Context) error {
	ctx := c.Request().Context()

	userID := c.QueryParam("user_id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}
	term := c.QueryParam("q")
	if term == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "q is required"})
	}

	sessions, err := h.store.SearchSessions(ctx, userID, term)
	if err != nil {
		h.logger.Error("failed to search sessions", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to search sessions"})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"sessions": sessions,
	})
}
