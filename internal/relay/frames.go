package relay

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Synthetic lifecycle event names. Everything else on the wire is proxied
// from the upstream verbatim.
const (
	EventConnection = "connection"
	EventCompletion = "completion"
	EventError      = "error"
)

// Frame is one wire frame: `data: <JSON>\n\n` where the JSON is this struct.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// LifecyclePayload is the data of a connection or completion frame.
type LifecyclePayload struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	EventCount *int   `json:"eventCount,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// ErrorPayload is the data of an error frame.
type ErrorPayload struct {
	Type      string `json:"type"`
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
}

func connectionFrame(now time.Time) Frame {
	return Frame{Event: EventConnection, Data: LifecyclePayload{
		Type:      EventConnection,
		Message:   "Stream connected",
		Timestamp: now.UTC().Format(time.RFC3339),
	}}
}

func completionFrame(now time.Time, count int) Frame {
	return Frame{Event: EventCompletion, Data: LifecyclePayload{
		Type:       EventCompletion,
		Message:    "Stream completed",
		EventCount: &count,
		Timestamp:  now.UTC().Format(time.RFC3339),
	}}
}

func errorFrame(now time.Time, details string) Frame {
	return Frame{Event: EventError, Data: ErrorPayload{
		Type:      EventError,
		Error:     "Stream processing failed",
		Details:   details,
		Timestamp: now.UTC().Format(time.RFC3339),
	}}
}

// writeFrame serializes one frame onto the wire and flushes it out.
func writeFrame(w io.Writer, flush func(), f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
		return err
	}
	if flush != nil {
		flush()
	}
	return nil
}
