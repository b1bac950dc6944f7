package upstream

import (
	"context"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"docchat/internal/config"
	"docchat/internal/logger"
)

// Client adapts a go-openai streaming chat completion into an Event stream.
type Client struct {
	api       *openai.Client
	model     string
	retriever Retriever
}

// NewClient creates an upstream client. retriever may be nil, in which case
// no updates events are emitted.
func NewClient(cfg config.UpstreamConfig, retriever Retriever) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		api:       openai.NewClientWithConfig(apiCfg),
		model:     cfg.Model,
		retriever: retriever,
	}
}

// Open starts one upstream stream for the request. Retrieval runs first so
// the stream can front-load an updates event; a retrieval failure is logged
// and the chat proceeds without citations.
func (c *Client) Open(ctx context.Context, req Request) (Stream, error) {
	if c.model == "" {
		return nil, ErrNotConfigured
	}

	var docs []Document
	if c.retriever != nil {
		var err error
		docs, err = c.retriever.Retrieve(ctx, req.ThreadID, req.Message)
		if err != nil {
			logger.L.Warn().Err(err).Str("thread_id", req.ThreadID).Msg("retrieval failed, continuing without documents")
			docs = nil
		}
	}

	s, err := c.api.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		User:  req.ThreadID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Message},
		},
		Stream: true,
	})
	if err != nil {
		return nil, classify(err)
	}

	return &chatStream{inner: s, userText: req.Message, docs: docs}, nil
}

// classify maps go-openai errors onto the package sentinels.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusTooManyRequests:
			return ErrRateLimited
		}
		return err
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.HTTPStatusCode {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusTooManyRequests:
			return ErrRateLimited
		}
	}
	return err
}

// chatStream accumulates completion deltas so every partial event carries
// the full assistant text so far.
type chatStream struct {
	inner    *openai.ChatCompletionStream
	userText string
	docs     []Document
	acc      string
	sentDocs bool
}

func (s *chatStream) Recv(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	if !s.sentDocs {
		s.sentDocs = true
		if len(s.docs) > 0 {
			return Event{
				Name: EventUpdates,
				Data: UpdatesPayload{RetrieveDocuments: &RetrievePayload{Documents: s.docs}},
			}, nil
		}
	}

	for {
		resp, err := s.inner.Recv()
		if err != nil {
			return Event{}, err
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		s.acc += resp.Choices[0].Delta.Content
		return Event{
			Name: EventPartial,
			Data: []ChatMessage{
				{Type: "human", Content: s.userText},
				{Type: "ai", Content: s.acc},
			},
		}, nil
	}
}

func (s *chatStream) Close() error {
	return s.inner.Close()
}
