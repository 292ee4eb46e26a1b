// Package backend provides the HTTP client for the model backend's
// streaming chat protocol.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harborchat/chatd/domain"
)

// Channel opens one streaming exchange with the model backend. The
// returned channel is a lazy, finite, non-restartable sequence of
// events: start, zero or more chunks, then exactly one terminal event,
// after which the channel is closed. Cancelling ctx abandons the
// exchange; events already consumed stay applied.
type Channel interface {
	Open(ctx context.Context, userText, userID string, history []domain.Message) (<-chan domain.StreamEvent, error)
}

// Client is the HTTP implementation of Channel.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a backend client. The timeout bounds the whole
// exchange, including streaming.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// exchangeRequest is the request body for one exchange. History gives
// the backend conversation context.
type exchangeRequest struct {
	UserID  string           `json:"user_id"`
	Content string           `json:"content"`
	History []historyMessage `json:"history,omitempty"`
}

type historyMessage struct {
	Role    domain.Role `json:"role"`
	Content string      `json:"content"`
}

// transportErrorText is the message carried by a synthetic error event
// when the transport fails mid-stream.
const transportErrorText = "connection to the assistant was lost"

// Open starts an exchange. Setup failures (dial, non-200) are returned
// synchronously; once the stream is established every failure surfaces
// as a single terminal error event instead.
func (c *Client) Open(ctx context.Context, userText, userID string, history []domain.Message) (<-chan domain.StreamEvent, error) {
	reqBody := exchangeRequest{
		UserID:  userID,
		Content: userText,
		History: make([]historyMessage, 0, len(history)),
	}
	for _, m := range history {
		reqBody.History = append(reqBody.History, historyMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(respBody))
	}

	events := make(chan domain.StreamEvent)
	go c.readStream(ctx, resp.Body, events)
	return events, nil
}

// readStream parses `data: {json}` frames until the first terminal
// frame. Malformed frames are logged and skipped; a stream that ends
// without a terminal frame produces a synthetic error event so the
// consumer always sees exactly one terminal event.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, events chan<- domain.StreamEvent) {
	defer close(events)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var event domain.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			c.logger.Warn("skipping malformed stream frame", zap.Error(err))
			continue
		}
		switch event.Type {
		case domain.EventStart, domain.EventChunk, domain.EventComplete, domain.EventError:
		default:
			c.logger.Warn("skipping frame with unknown type", zap.String("type", string(event.Type)))
			continue
		}

		if !c.emit(ctx, events, event) {
			return
		}
		if event.Terminal() {
			return
		}
	}

	// Abrupt close or read error without a terminal frame.
	if err := scanner.Err(); err != nil {
		c.logger.Warn("stream read failed", zap.Error(err))
	} else {
		c.logger.Warn("stream ended without terminal frame")
	}
	c.emit(ctx, events, domain.StreamEvent{
		Type:    domain.EventError,
		Content: transportErrorText,
	})
}

// emit delivers an event unless the caller has abandoned the exchange.
func (c *Client) emit(ctx context.Context, events chan<- domain.StreamEvent, event domain.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
