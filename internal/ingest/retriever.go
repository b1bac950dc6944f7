package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"docchat/internal/upstream"
)

// HTTPRetriever queries the pipeline service's retrieval endpoint for the
// documents relevant to a chat turn.
type HTTPRetriever struct {
	BaseURL string
	Client  *http.Client
}

type retrieveRequest struct {
	ThreadID string `json:"threadId"`
	Query    string `json:"query"`
}

type retrieveResponse struct {
	Documents []upstream.Document `json:"documents"`
}

// Retrieve asks the pipeline for sources matching query within the thread's
// indexed documents.
func (r *HTTPRetriever) Retrieve(ctx context.Context, threadID, query string) ([]upstream.Document, error) {
	body, err := json.Marshal(retrieveRequest{ThreadID: threadID, Query: query})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/retrieve", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retrieval returned status %d", resp.StatusCode)
	}

	var rr retrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("decode retrieval response: %w", err)
	}
	return rr.Documents, nil
}
