// Package ingest validates document submissions and hands them to the
// external ingestion pipeline. Parsing, chunking and indexing happen on the
// other side of the Pipeline interface.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"docchat/internal/apperr"
)

// ErrNoContent is returned by a pipeline when no text could be extracted
// from any submitted file.
var ErrNoContent = errors.New("no content extracted from any file")

// Result is the outcome of a successful ingestion.
type Result struct {
	ThreadID  string   `json:"threadId"`
	Files     []string `json:"files"`
	Documents int      `json:"documents"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Pipeline is the external document-processing service.
type Pipeline interface {
	Process(ctx context.Context, threadID string, files []*multipart.FileHeader) (Result, error)
}

// Service validates submissions and enforces the processing ceiling.
type Service struct {
	Pipeline     Pipeline
	MaxFileBytes int64
	MaxFiles     int
	Timeout      time.Duration
}

// Ingest checks the submitted files and runs the pipeline under the
// configured timeout. All failures come back as classified errors.
func (s *Service) Ingest(ctx context.Context, threadID string, files []*multipart.FileHeader) (Result, error) {
	if err := s.validate(files); err != nil {
		return Result{}, err
	}
	if s.Pipeline == nil {
		return Result{}, apperr.Service(http.StatusServiceUnavailable, "document processing is not configured", nil)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := s.Pipeline.Process(ctx, threadID, files)
	switch {
	case err == nil:
		return res, nil
	case errors.Is(err, ErrNoContent):
		return Result{}, apperr.Processing(http.StatusUnprocessableEntity, "no content could be extracted from the submitted files", err)
	case errors.Is(err, context.DeadlineExceeded):
		return Result{}, apperr.Processing(http.StatusRequestTimeout, "document processing timed out", err)
	default:
		return Result{}, apperr.Service(http.StatusServiceUnavailable, "document processing is currently unavailable", err)
	}
}

func (s *Service) validate(files []*multipart.FileHeader) error {
	if len(files) == 0 {
		return apperr.Validation("no files submitted")
	}
	if len(files) > s.MaxFiles {
		return apperr.Validation(fmt.Sprintf("too many files: maximum is %d", s.MaxFiles))
	}

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		name := f.Filename
		if strings.ToLower(filepath.Ext(name)) != ".pdf" {
			return apperr.Validation(fmt.Sprintf("%s: only PDF files are accepted", name))
		}
		if f.Size > s.MaxFileBytes {
			return apperr.Validation(fmt.Sprintf("%s exceeds the maximum file size of %dMB", name, s.MaxFileBytes/(1024*1024)))
		}
		if seen[name] {
			return apperr.Validation(fmt.Sprintf("duplicate file name: %s", name))
		}
		seen[name] = true
	}
	return nil
}
