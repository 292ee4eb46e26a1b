// Package api provides HTTP handlers for the chat service.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/harborchat/chatd/session"
	"github.com/harborchat/chatd/store"
)

// Handler handles HTTP requests.
type Handler struct {
	store    store.Store
	registry *session.Registry
	logger   *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(store store.Store, registry *session.Registry, logger *zap.Logger) *Handler {
	return &Handler{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Session API
	e.POST("/v1/sessions", h.CreateSession)
	e.POST("/v1/sessions/import", h.ImportSession)
	e.GET("/v1/sessions", h.ListSessions)
	e.GET("/v1/sessions/search", h.SearchSessions)
	e.GET("/v1/sessions/:session_id", h.GetSession)
	e.DELETE("/v1/sessions/:session_id", h.DeleteSession)

	// Chat API
	e.POST("/v1/chat", h.Chat)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
