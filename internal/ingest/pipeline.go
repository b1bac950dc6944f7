package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"docchat/internal/logger"
)

// HTTPPipeline forwards submissions to the ingestion service over HTTP.
type HTTPPipeline struct {
	BaseURL string
	Client  *http.Client
}

type pipelineResponse struct {
	Documents int      `json:"documents"`
	Warnings  []string `json:"warnings"`
}

// Process streams the files to the remote pipeline as a multipart request
// and relays its document count and warnings.
func (p *HTTPPipeline) Process(ctx context.Context, threadID string, files []*multipart.FileHeader) (Result, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("threadId", threadID); err != nil {
		return Result{}, fmt.Errorf("write threadId field: %w", err)
	}
	names := make([]string, 0, len(files))
	for _, fh := range files {
		part, err := mw.CreateFormFile("files", fh.Filename)
		if err != nil {
			return Result{}, fmt.Errorf("create form file: %w", err)
		}
		src, err := fh.Open()
		if err != nil {
			return Result{}, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		_, err = io.Copy(part, src)
		src.Close()
		if err != nil {
			return Result{}, fmt.Errorf("copy %s: %w", fh.Filename, err)
		}
		names = append(names, fh.Filename)
	}
	if err := mw.Close(); err != nil {
		return Result{}, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+"/ingest", &body)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		// context errors surface unwrapped so the service can map them
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return Result{}, ErrNoContent
	case resp.StatusCode != http.StatusOK:
		return Result{}, fmt.Errorf("pipeline returned status %d", resp.StatusCode)
	}

	var pr pipelineResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		return Result{}, fmt.Errorf("decode pipeline response: %w", err)
	}
	logger.L.Info().Str("thread_id", threadID).Int("documents", pr.Documents).Msg("pipeline processed submission")
	return Result{ThreadID: threadID, Files: names, Documents: pr.Documents, Warnings: pr.Warnings}, nil
}
