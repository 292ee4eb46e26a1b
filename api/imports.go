package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/harborchat/chatd/classify"
	"github.com/harborchat/chatd/domain"
	"github.com/harborchat/chatd/session"
)

// ImportRecord is one raw historical record. Role metadata in exported
// transcripts is unreliable; is_bot may arrive as a bool or a number.
type ImportRecord struct {
	Role    string      `json:"role"`
	IsBot   interface{} `json:"is_bot,omitempty"`
	Content string      `json:"content"`
}

// ImportRequest is the request to import a legacy transcript.
type ImportRequest struct {
	UserID  string         `json:"user_id"`
	Title   string         `json:"title,omitempty"`
	Records []ImportRecord `json:"records"`
}

// ImportSession imports a legacy transcript as a new session, assigning
// each record a role through the classifier heuristics.
// POST /v1/sessions/import
func (h *Handler) ImportSession(c echo.Context) error {
	ctx := c.Request().Context()

	var req ImportRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.UserID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_id is required"})
	}
	if len(req.Records) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "records is required"})
	}

	title := req.Title
	if title == "" {
		title = session.SimpleTitle(req.Records[0].Content)
	}

	sess, err := h.store.CreateSession(ctx, req.UserID, title)
	if err != nil {
		h.logger.Error("failed to create session for import", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to import session"})
	}

	for i, rec := range req.Records {
		role := classify.Classify(classify.Record{
			Role:    rec.Role,
			IsBot:   rec.IsBot,
			Content: rec.Content,
		}, i)

		msg := &domain.Message{
			SessionID: sess.SessionID,
			Role:      role,
			Content:   rec.Content,
		}
		if err := h.store.AppendMessage(ctx, msg); err != nil {
			h.logger.Error("failed to import record",
				zap.String("session_id", sess.SessionID),
				zap.Int("position", i),
				zap.Error(err))
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to import session"})
		}
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"session_id": sess.SessionID,
		"title":      title,
		"imported":   len(req.Records),
	})
}
