package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/config"
	"docchat/internal/ingest"
	"docchat/internal/relay"
	"docchat/internal/session"
	"docchat/internal/store"
	"docchat/internal/upstream"
)

type mockStream struct {
	events []upstream.Event
	final  error
	pos    int
	closed bool
}

func (m *mockStream) Recv(ctx context.Context) (upstream.Event, error) {
	if err := ctx.Err(); err != nil {
		return upstream.Event{}, err
	}
	if m.pos >= len(m.events) {
		if m.final != nil {
			return upstream.Event{}, m.final
		}
		return upstream.Event{}, io.EOF
	}
	ev := m.events[m.pos]
	m.pos++
	return ev, nil
}

func (m *mockStream) Close() error {
	m.closed = true
	return nil
}

type mockOpener struct {
	openFn func(ctx context.Context, req upstream.Request) (upstream.Stream, error)
}

func (m *mockOpener) Open(ctx context.Context, req upstream.Request) (upstream.Stream, error) {
	return m.openFn(ctx, req)
}

type mockPipeline struct {
	processFn func(ctx context.Context, threadID string, files []*multipart.FileHeader) (ingest.Result, error)
}

func (m *mockPipeline) Process(ctx context.Context, threadID string, files []*multipart.FileHeader) (ingest.Result, error) {
	return m.processFn(ctx, threadID, files)
}

func newTestServer(t *testing.T, opener upstream.Opener, pipeline ingest.Pipeline) (*Server, *store.Store) {
	t.Helper()
	st := store.Open(filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { st.Close() })

	if pipeline == nil {
		pipeline = &mockPipeline{processFn: func(ctx context.Context, threadID string, files []*multipart.FileHeader) (ingest.Result, error) {
			names := make([]string, 0, len(files))
			for _, f := range files {
				names = append(names, f.Filename)
			}
			return ingest.Result{ThreadID: threadID, Files: names, Documents: len(files)}, nil
		}}
	}

	srv := New(
		config.ServerConfig{AllowedOrigin: "*"},
		session.NewRegistry(),
		opener,
		&relay.Relay{Recorder: st},
		&ingest.Service{Pipeline: pipeline, MaxFileBytes: 1024, MaxFiles: 3, Timeout: time.Second},
		st,
	)
	return srv, st
}

func postChat(srv *Server, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

// decodeFrames splits an SSE body into its JSON frames.
func decodeFrames(t *testing.T, body string) []relay.Frame {
	t.Helper()
	var frames []relay.Frame
	for _, chunk := range strings.Split(body, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		payload, ok := strings.CutPrefix(chunk, "data: ")
		if !ok {
			t.Fatalf("frame without data prefix: %q", chunk)
		}
		var f relay.Frame
		require.NoError(t, json.Unmarshal([]byte(payload), &f))
		frames = append(frames, f)
	}
	return frames
}

func TestChatRejectsInvalidInput(t *testing.T) {
	srv, _ := newTestServer(t, &mockOpener{openFn: func(ctx context.Context, req upstream.Request) (upstream.Stream, error) {
		t.Fatal("opener must not be called for invalid input")
		return nil, nil
	}}, nil)

	cases := []struct {
		name string
		body string
	}{
		{"empty message", `{"message":"  ","threadId":"t1"}`},
		{"missing thread", `{"message":"hello"}`},
		{"oversized message", fmt.Sprintf(`{"message":%q,"threadId":"t1"}`, strings.Repeat("a", 10001))},
		{"not json", `message=hello`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postChat(srv, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var envelope map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
			assert.Equal(t, false, envelope["success"])
			assert.Equal(t, "validation_error", envelope["type"])
			assert.NotEmpty(t, envelope["error"])
		})
	}
}

func TestChatOpenFailureStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not configured", upstream.ErrNotConfigured, http.StatusServiceUnavailable},
		{"not found", upstream.ErrNotFound, http.StatusNotFound},
		{"rate limited", upstream.ErrRateLimited, http.StatusTooManyRequests},
		{"other", errors.New("connect refused"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, st := newTestServer(t, &mockOpener{openFn: func(ctx context.Context, req upstream.Request) (upstream.Stream, error) {
				return nil, tc.err
			}}, nil)

			rec := postChat(srv, `{"message":"hello","threadId":"t1"}`)
			assert.Equal(t, tc.status, rec.Code)

			var envelope map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
			assert.Equal(t, "chat_error", envelope["type"])

			// Nothing reached the upstream, so nothing was recorded.
			assert.Empty(t, st.Messages("t1"))
		})
	}
}

func TestChatRelaysStream(t *testing.T) {
	stream := &mockStream{events: []upstream.Event{
		{Name: upstream.EventUpdates, Data: upstream.UpdatesPayload{RetrieveDocuments: &upstream.RetrievePayload{
			Documents: []upstream.Document{{FileName: "report.pdf", Excerpt: "…"}},
		}}},
		{Name: upstream.EventPartial, Data: []upstream.ChatMessage{{Type: "human", Content: "what is X?"}, {Type: "ai", Content: "X is"}}},
		{Name: upstream.EventPartial, Data: []upstream.ChatMessage{{Type: "human", Content: "what is X?"}, {Type: "ai", Content: "X is a concept."}}},
	}}
	var gotReq upstream.Request
	srv, st := newTestServer(t, &mockOpener{openFn: func(ctx context.Context, req upstream.Request) (upstream.Stream, error) {
		gotReq = req
		return stream, nil
	}}, nil)

	rec := postChat(srv, `{"message":"what is X?","threadId":"t1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, upstream.Request{ThreadID: "t1", Message: "what is X?"}, gotReq)

	frames := decodeFrames(t, rec.Body.String())
	require.Len(t, frames, 5)
	assert.Equal(t, relay.EventConnection, frames[0].Event)
	assert.Equal(t, upstream.EventUpdates, frames[1].Event)
	assert.Equal(t, upstream.EventPartial, frames[2].Event)
	assert.Equal(t, upstream.EventPartial, frames[3].Event)
	assert.Equal(t, relay.EventCompletion, frames[4].Event)

	completion := frames[4].Data.(map[string]any)
	assert.Equal(t, float64(3), completion["eventCount"])

	if !stream.closed {
		t.Fatal("upstream stream was not closed")
	}

	msgs := st.Messages("t1")
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, "what is X?", msgs[0].Content)
	assert.Equal(t, "assistant", msgs[1].Role)
	assert.Equal(t, "X is a concept.", msgs[1].Content)

	sess, ok := srv.registry.Get("t1")
	require.True(t, ok)
	assert.Equal(t, session.StateCompleted, sess.State())
}

func TestChatStreamFailureEmitsErrorFrame(t *testing.T) {
	stream := &mockStream{
		events: []upstream.Event{
			{Name: upstream.EventPartial, Data: []upstream.ChatMessage{{Type: "ai", Content: "partial"}}},
		},
		final: errors.New("upstream reset"),
	}
	srv, _ := newTestServer(t, &mockOpener{openFn: func(ctx context.Context, req upstream.Request) (upstream.Stream, error) {
		return stream, nil
	}}, nil)

	rec := postChat(srv, `{"message":"hello","threadId":"t1"}`)
	// Headers were already out when the failure hit.
	require.Equal(t, http.StatusOK, rec.Code)

	frames := decodeFrames(t, rec.Body.String())
	require.Len(t, frames, 3)
	assert.Equal(t, relay.EventError, frames[2].Event)

	errData := frames[2].Data.(map[string]any)
	assert.Equal(t, "Stream processing failed", errData["error"])
	assert.NotContains(t, errData, "details")

	sess, ok := srv.registry.Get("t1")
	require.True(t, ok)
	assert.Equal(t, session.StateFailed, sess.State())
}

func TestChatPreflight(t *testing.T) {
	srv, _ := newTestServer(t, &mockOpener{openFn: func(ctx context.Context, req upstream.Request) (upstream.Stream, error) {
		return nil, errors.New("unused")
	}}, nil)

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func multipartBody(t *testing.T, threadID string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if threadID != "" {
		require.NoError(t, w.WriteField("threadId", threadID))
	}
	for name, content := range files {
		fw, err := w.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func postIngest(srv *Server, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/ingest", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

func TestIngestSuccess(t *testing.T) {
	srv, st := newTestServer(t, &mockOpener{openFn: func(ctx context.Context, req upstream.Request) (upstream.Stream, error) {
		return nil, errors.New("unused")
	}}, nil)

	body, contentType := multipartBody(t, "t1", map[string][]byte{"report.pdf": []byte("%PDF-1.4")})
	rec := postIngest(srv, body, contentType)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "t1", resp["threadId"])
	assert.Equal(t, float64(1), resp["documents"])

	uploads := st.Uploads("t1")
	require.Len(t, uploads, 1)
	assert.Equal(t, "report.pdf", uploads[0].Filename)
}

func TestIngestMintsThreadID(t *testing.T) {
	srv, _ := newTestServer(t, &mockOpener{openFn: func(ctx context.Context, req upstream.Request) (upstream.Stream, error) {
		return nil, errors.New("unused")
	}}, nil)

	body, contentType := multipartBody(t, "", map[string][]byte{"report.pdf": []byte("%PDF-1.4")})
	rec := postIngest(srv, body, contentType)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	threadID, _ := resp["threadId"].(string)
	assert.NotEmpty(t, threadID)

	_, ok := srv.registry.Get(threadID)
	assert.True(t, ok)
}

func TestIngestRejectsOversizedFileByName(t *testing.T) {
	srv, _ := newTestServer(t, &mockOpener{openFn: func(ctx context.Context, req upstream.Request) (upstream.Stream, error) {
		return nil, errors.New("unused")
	}}, nil)

	body, contentType := multipartBody(t, "t1", map[string][]byte{"big.pdf": bytes.Repeat([]byte("x"), 2048)})
	rec := postIngest(srv, body, contentType)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "validation_error", envelope["type"])
	assert.Contains(t, envelope["error"], "big.pdf")
}

func TestIngestPipelineUnavailable(t *testing.T) {
	pipeline := &mockPipeline{processFn: func(ctx context.Context, threadID string, files []*multipart.FileHeader) (ingest.Result, error) {
		return ingest.Result{}, errors.New("pipeline down")
	}}
	srv, _ := newTestServer(t, &mockOpener{openFn: func(ctx context.Context, req upstream.Request) (upstream.Stream, error) {
		return nil, errors.New("unused")
	}}, pipeline)

	body, contentType := multipartBody(t, "t1", map[string][]byte{"report.pdf": []byte("%PDF-1.4")})
	rec := postIngest(srv, body, contentType)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var envelope map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "chat_error", envelope["type"])
}

func TestHistory(t *testing.T) {
	srv, st := newTestServer(t, &mockOpener{openFn: func(ctx context.Context, req upstream.Request) (upstream.Stream, error) {
		return nil, errors.New("unused")
	}}, nil)
	st.SaveMessage("t1", "user", "hello")
	st.SaveMessage("t1", "assistant", "hi there")
	st.SaveMessage("other", "user", "unrelated")

	req := httptest.NewRequest(http.MethodGet, "/chat/t1/history", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success  bool            `json:"success"`
		ThreadID string          `json:"threadId"`
		Messages []store.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "t1", resp.ThreadID)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "hello", resp.Messages[0].Content)
	assert.Equal(t, "hi there", resp.Messages[1].Content)
}

func TestHistoryEmptyThread(t *testing.T) {
	srv, _ := newTestServer(t, &mockOpener{openFn: func(ctx context.Context, req upstream.Request) (upstream.Stream, error) {
		return nil, errors.New("unused")
	}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/chat/nothing-here/history", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"messages":[]`)
}
