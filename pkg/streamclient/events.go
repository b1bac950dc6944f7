// Package streamclient consumes a docchat SSE stream and folds it into an
// incrementally updating conversation state. It is self-contained so it can
// back any Go consumer of the chat endpoint.
package streamclient

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var log = zerolog.New(os.Stderr).With().Timestamp().Str("component", "streamclient").Logger()

// Wire event names. Everything else is treated as unknown and ignored.
const (
	EventPartial    = "messages/partial"
	EventUpdates    = "updates"
	EventConnection = "connection"
	EventCompletion = "completion"
	EventError      = "error"
)

// StreamEvent is one decoded wire frame. Data stays raw until the reducer
// interprets it per event kind.
type StreamEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// SourceDocument is one citation attached to an assistant message.
type SourceDocument struct {
	FileName   string `json:"fileName"`
	Page       *int   `json:"page,omitempty"`
	TotalPages *int   `json:"totalPages,omitempty"`
	Author     string `json:"author,omitempty"`
	Date       string `json:"date,omitempty"`
	DocType    string `json:"docType,omitempty"`
	Language   string `json:"language,omitempty"`
	Excerpt    string `json:"excerpt"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the visible conversation.
type Message struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Sources   []SourceDocument `json:"sources,omitempty"`
	Timestamp time.Time        `json:"timestamp,omitempty"`
}

// State is the visible conversation state. Messages is append-only except
// for the trailing assistant message, which is replaced in place while a
// stream is active.
type State struct {
	Messages []Message
	// PendingSources is the latest retrieval snapshot; it attaches to the
	// next partial update, not to any message directly.
	PendingSources []SourceDocument
	Connected      bool
	Done           bool
	Failed         bool
}
