package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"docchat/internal/apperr"
)

// handleIngest accepts a multipart submission of PDFs, forwards it to the
// ingestion pipeline and answers with the thread the documents landed in.
// An absent threadId starts a fresh conversation.
func (s *Server) handleIngest(c echo.Context) error {
	start := time.Now()

	form, err := c.MultipartForm()
	if err != nil {
		return s.respondError(c, apperr.Validation("request must be multipart form data with files"))
	}
	files := form.File["files"]

	threadID := c.FormValue("threadId")
	if threadID == "" {
		threadID = s.registry.NewThreadID()
	}

	res, err := s.ingest.Ingest(c.Request().Context(), threadID, files)
	if err != nil {
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return s.respondError(c, appErr)
		}
		return s.respondUnexpected(c, err)
	}

	s.registry.Ensure(threadID)
	for _, f := range files {
		s.store.SaveUpload(threadID, f.Filename, f.Size)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":   true,
		"threadId":  res.ThreadID,
		"files":     res.Files,
		"documents": res.Documents,
		"elapsedMs": nowMillis(start),
		"warnings":  res.Warnings,
	})
}
