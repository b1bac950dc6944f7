package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"docchat/internal/apperr"
	"docchat/internal/logger"
	"docchat/internal/upstream"
	"docchat/internal/validate"
)

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"threadId"`
}

// handleChat validates the submission, supersedes any stream still running
// for the thread and relays the upstream event stream as SSE. Once the 200
// and the first frame are out, failures can only surface as error frames.
func (s *Server) handleChat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return s.respondError(c, apperr.Validation("request body must be JSON with message and threadId"))
	}
	if err := validate.Message(req.Message); err != nil {
		return s.respondError(c, err.(*apperr.Error))
	}
	if err := validate.ThreadID(req.ThreadID); err != nil {
		return s.respondError(c, err.(*apperr.Error))
	}

	attempt := s.registry.Ensure(req.ThreadID).BeginStream(c.Request().Context())
	streamCtx := attempt.Context()

	stream, err := s.opener.Open(streamCtx, upstream.Request{ThreadID: req.ThreadID, Message: req.Message})
	if err != nil {
		attempt.Fail()
		return s.respondError(c, openError(err))
	}

	s.store.SaveMessage(req.ThreadID, "user", req.Message)

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set(echo.HeaderCacheControl, "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	flush := func() {}
	if flusher, ok := resp.Writer.(http.Flusher); ok {
		flush = flusher.Flush
	} else {
		logger.L.Warn().Msg("response writer does not support flushing; frames may be buffered")
	}

	switch err := s.relay.Run(streamCtx, resp, flush, stream, req.ThreadID); {
	case err == nil:
		attempt.Complete()
	case errors.Is(err, context.Canceled):
		attempt.Cancel()
	default:
		attempt.Fail()
	}
	return nil
}

// openError classifies an upstream open failure for the HTTP surface.
func openError(err error) *apperr.Error {
	switch {
	case errors.Is(err, upstream.ErrNotConfigured):
		return apperr.Service(http.StatusServiceUnavailable, "chat service is not configured", err)
	case errors.Is(err, upstream.ErrNotFound):
		return apperr.Service(http.StatusNotFound, "conversation not found", err)
	case errors.Is(err, upstream.ErrRateLimited):
		return apperr.Service(http.StatusTooManyRequests, "too many requests, try again shortly", err)
	default:
		return apperr.Service(http.StatusServiceUnavailable, "unable to start chat stream", err)
	}
}
