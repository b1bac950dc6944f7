package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/upstream"
)

func TestHTTPRetriever(t *testing.T) {
	page := 3
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/retrieve", r.URL.Path)
		var req retrieveRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "t1", req.ThreadID)
		assert.Equal(t, "what is X?", req.Query)

		json.NewEncoder(w).Encode(retrieveResponse{Documents: []upstream.Document{
			{FileName: "x.pdf", Page: &page, Excerpt: "X is a concept."},
		}})
	}))
	defer srv.Close()

	r := &HTTPRetriever{BaseURL: srv.URL}
	docs, err := r.Retrieve(context.Background(), "t1", "what is X?")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "x.pdf", docs[0].FileName)
	require.NotNil(t, docs[0].Page)
	assert.Equal(t, 3, *docs[0].Page)
}

func TestHTTPRetrieverBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	r := &HTTPRetriever{BaseURL: srv.URL}
	_, err := r.Retrieve(context.Background(), "t1", "query")
	if err == nil {
		t.Fatal("expected an error for non-200 response")
	}
}
