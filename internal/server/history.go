package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"docchat/internal/apperr"
	"docchat/internal/store"
	"docchat/internal/validate"
)

// handleHistory returns the recorded transcript of a thread.
func (s *Server) handleHistory(c echo.Context) error {
	threadID := c.Param("threadId")
	if err := validate.ThreadID(threadID); err != nil {
		return s.respondError(c, err.(*apperr.Error))
	}

	msgs := s.store.Messages(threadID)
	if msgs == nil {
		msgs = []store.Message{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"threadId": threadID,
		"messages": msgs,
	})
}
