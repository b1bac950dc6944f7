// Package relay bridges one upstream event stream to one downstream SSE
// response. It owns the forwarding loop, the synthetic lifecycle frames and
// the event ceiling; it holds no state between calls.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"docchat/internal/logger"
	"docchat/internal/upstream"
)

// DefaultMaxEvents is the hard ceiling on forwarded frames per request.
const DefaultMaxEvents = 1000

// Recorder receives the final assistant text once a stream completes
// normally. Implementations must not block.
type Recorder interface {
	RecordAssistant(threadID, text string)
}

// Relay forwards upstream events as wire frames. A zero value is usable;
// MaxEvents falls back to DefaultMaxEvents.
type Relay struct {
	MaxEvents int
	DevMode   bool
	Recorder  Recorder
}

// Run forwards s onto w until exhaustion, the event ceiling, an error or
// cancellation. The stream is always closed before Run returns, whichever
// exit path is taken. The returned error reports the exit path; downstream
// already saw it as a lifecycle frame where one could still be written.
func (r *Relay) Run(ctx context.Context, w io.Writer, flush func(), s upstream.Stream, threadID string) error {
	defer func() {
		if err := s.Close(); err != nil {
			logger.L.Warn().Err(err).Str("thread_id", threadID).Msg("upstream stream close failed")
		}
	}()

	maxEvents := r.MaxEvents
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	if err := writeFrame(w, flush, connectionFrame(time.Now())); err != nil {
		logger.L.Warn().Err(err).Str("thread_id", threadID).Msg("downstream write failed before first event")
		return err
	}

	count := 0
	lastText := ""
	for {
		if count >= maxEvents {
			logger.L.Warn().Str("thread_id", threadID).Int("max_events", maxEvents).Msg("event ceiling hit, stopping forwarding")
			break
		}

		ev, err := s.Recv(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, context.Canceled) {
			// Downstream is gone or the request was superseded; nobody
			// is left to read a lifecycle frame.
			logger.L.Debug().Str("thread_id", threadID).Msg("relay cancelled")
			return context.Canceled
		}
		if err != nil {
			details := ""
			if r.DevMode {
				details = err.Error()
			}
			logger.L.Error().Err(err).Str("thread_id", threadID).Msg("upstream stream failed mid-flight")
			if werr := writeFrame(w, flush, errorFrame(time.Now(), details)); werr != nil {
				logger.L.Warn().Err(werr).Str("thread_id", threadID).Msg("failed to write error frame")
			}
			return err
		}

		if msgs, ok := ev.Data.([]upstream.ChatMessage); ok && len(msgs) > 0 {
			if last := msgs[len(msgs)-1]; last.Type == "ai" {
				if text, ok := last.Content.(string); ok {
					lastText = text
				}
			}
		}

		if err := writeFrame(w, flush, Frame{Event: ev.Name, Data: ev.Data}); err != nil {
			if isMarshalError(err) {
				logger.L.Warn().Err(err).Str("thread_id", threadID).Str("event", ev.Name).Msg("skipping unserializable event")
				continue
			}
			logger.L.Warn().Err(err).Str("thread_id", threadID).Msg("downstream write failed")
			return err
		}
		count++
	}

	if r.Recorder != nil && lastText != "" {
		r.Recorder.RecordAssistant(threadID, lastText)
	}
	if err := writeFrame(w, flush, completionFrame(time.Now(), count)); err != nil {
		logger.L.Warn().Err(err).Str("thread_id", threadID).Msg("failed to write completion frame")
	}
	logger.L.Info().Str("thread_id", threadID).Int("events", count).Msg("stream completed")
	return nil
}

func isMarshalError(err error) bool {
	var marshalerErr *json.MarshalerError
	var unsupportedType *json.UnsupportedTypeError
	var unsupportedValue *json.UnsupportedValueError
	return errors.As(err, &marshalerErr) || errors.As(err, &unsupportedType) || errors.As(err, &unsupportedValue)
}
