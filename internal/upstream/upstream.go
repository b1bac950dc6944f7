// Package upstream abstracts the reasoning service as an ordered event
// stream. The relay consumes Stream without knowing what produces it.
package upstream

import (
	"context"
	"errors"
)

// Event names understood by the downstream client. Lifecycle frames are not
// listed here; those are synthesized by the relay, never by the upstream.
const (
	EventPartial = "messages/partial"
	EventUpdates = "updates"
)

// Event is one upstream event, already in the shape it will take on the
// wire: a name and an arbitrary JSON-encodable payload.
type Event struct {
	Name string
	Data any
}

// ChatMessage is one element of a messages/partial payload. The last element
// of type "ai" carries the full assistant text so far; each partial replaces
// the previous one rather than extending it.
type ChatMessage struct {
	Type    string `json:"type"`
	Content any    `json:"content"`
}

// Document is one retrieved source attached to an updates event.
type Document struct {
	FileName   string `json:"fileName"`
	Page       *int   `json:"page,omitempty"`
	TotalPages *int   `json:"totalPages,omitempty"`
	Author     string `json:"author,omitempty"`
	Date       string `json:"date,omitempty"`
	DocType    string `json:"docType,omitempty"`
	Language   string `json:"language,omitempty"`
	Excerpt    string `json:"excerpt"`
}

// UpdatesPayload is the payload of an updates event.
type UpdatesPayload struct {
	RetrieveDocuments *RetrievePayload `json:"retrieveDocuments,omitempty"`
}

// RetrievePayload carries the documents list of a retrieval update.
type RetrievePayload struct {
	Documents []Document `json:"documents"`
}

// Request describes one chat turn to open a stream for.
type Request struct {
	ThreadID string
	Message  string
}

// Stream yields events in arrival order. Recv returns io.EOF when the
// upstream is exhausted. Close releases the underlying connection and is
// safe to call more than once.
type Stream interface {
	Recv(ctx context.Context) (Event, error)
	Close() error
}

// Opener opens exactly one stream per chat request.
type Opener interface {
	Open(ctx context.Context, req Request) (Stream, error)
}

// Retriever resolves the documents relevant to a query within a thread. It
// is a view onto the external retrieval engine; failures are advisory.
type Retriever interface {
	Retrieve(ctx context.Context, threadID, query string) ([]Document, error)
}

// Open-failure sentinels. The HTTP layer maps these onto status codes.
var (
	// ErrNotConfigured means the assistant/model identifier is absent.
	// This is fatal configuration, not a transient condition.
	ErrNotConfigured = errors.New("upstream model not configured")
	// ErrNotFound means the upstream rejected the session.
	ErrNotFound = errors.New("upstream session not found")
	// ErrRateLimited means the upstream rejected for rate or quota.
	ErrRateLimited = errors.New("upstream rate limited")
)
