package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/harborchat/chatd/domain"
	"github.com/harborchat/chatd/session"
)

// ChatRequest is the request to send a message on a session.
type ChatRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id,omitempty"`
	Content   string `json:"content"`
}

// Chat sends a user message and streams the assistant turn back as SSE.
// Omitting session_id starts a new session; its id is returned in the
// X-Session-ID response header.
// POST /v1/chat
func (h *Handler) Chat(c echo.Context) error {
	ctx := c.Request().Context()

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}
	if strings.TrimSpace(req.Content) == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "content is required"})
	}

	var ctrl *session.Controller
	if req.SessionID != "" {
		var err error
		ctrl, err = h.registry.Open(ctx, req.SessionID)
		if errors.Is(err, domain.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "session not found"})
		}
		if err != nil {
			h.logger.Error("failed to open session", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to open session"})
		}
	} else {
		ctrl = h.registry.OpenNew(req.UserID)
	}

	// Headers are written lazily on the first event: by then the send
	// has passed every gate and the session exists, so a rejected send
	// maps to a JSON error status and creates no session at all.
	var started sync.Once
	var flusher http.Flusher
	observe := func(ev domain.StreamEvent, _ []domain.Message) {
		started.Do(func() {
			header := c.Response().Header()
			header.Set("Content-Type", "text/event-stream")
			header.Set("Cache-Control", "no-cache")
			header.Set("Connection", "keep-alive")
			header.Set("X-Session-ID", ctrl.SessionID())
			c.Response().WriteHeader(http.StatusOK)
			flusher, _ = c.Response().Writer.(http.Flusher)
		})

		data, err := json.Marshal(ev)
		if err != nil {
			h.logger.Warn("failed to marshal stream event", zap.Error(err))
			return
		}
		if _, err := fmt.Fprintf(c.Response().Writer, "data: %s\n\n", data); err != nil {
			h.logger.Warn("client write failed", zap.Error(err))
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	err := ctrl.Send(ctx, req.Content, observe)
	h.registry.Bind(ctrl)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrExchangeInFlight):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrSendTooSoon),
		errors.Is(err, domain.ErrPolicyBlocked):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		h.logger.Error("chat turn failed", zap.String("session_id", ctrl.SessionID()), zap.Error(err))
		if c.Response().Committed {
			return nil
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "chat turn failed"})
	}
}
