package domain

// StreamEventType tags one frame of the incremental response protocol.
type StreamEventType string

const (
	EventStart    StreamEventType = "start"
	EventChunk    StreamEventType = "chunk"
	EventComplete StreamEventType = "complete"
	EventError    StreamEventType = "error"
)

// StreamEvent is one frame of the streaming protocol. For an exchange
// the backend emits start, zero or more chunks, then exactly one
// terminal frame (complete or error). Accumulated in each chunk is the
// full text so far; Content carries the chunk delta, the complete full
// text, or the error message depending on Type.
type StreamEvent struct {
	Type        StreamEventType `json:"type"`
	Content     string          `json:"content,omitempty"`
	Accumulated string          `json:"accumulated,omitempty"`
	Sources     []string        `json:"sources,omitempty"`
	Chunks      int             `json:"chunks,omitempty"`
}

// Terminal reports whether the event ends its exchange.
func (e StreamEvent) Terminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}
