package streamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Client drives chat requests against a docchat server and maintains the
// conversation state. At most one stream is in flight at a time: a new Send
// cancels the previous one before issuing its request.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	gen    int
}

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"threadId"`
}

type errorEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Type    string `json:"type"`
}

// State returns a snapshot of the conversation state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	st.Messages = append([]Message(nil), c.state.Messages...)
	return st
}

// Cancel stops the in-flight stream, if any. No further state updates from
// that request will be applied. Cancelling when nothing is in flight is a
// no-op.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

func (c *Client) cancelLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.gen++
}

// Send submits one message and consumes the resulting stream until it ends,
// folding every frame into the conversation state. It blocks for the
// lifetime of the stream; a concurrent Send or Cancel terminates it early.
func (c *Client) Send(ctx context.Context, threadID, message string) error {
	c.mu.Lock()
	c.cancelLocked()
	reqCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	gen := c.gen
	c.state.Messages = append(c.state.Messages, Message{Role: RoleUser, Content: message, Timestamp: time.Now()})
	c.state.PendingSources = nil
	c.state.Connected = false
	c.state.Done = false
	c.state.Failed = false
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if gen == c.gen && c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		c.mu.Unlock()
	}()

	body, err := json.Marshal(chatRequest{Message: message, ThreadID: threadID})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.BaseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var envelope errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error != "" {
			return fmt.Errorf("%s: %s", envelope.Type, envelope.Error)
		}
		return fmt.Errorf("chat request failed with status %d", resp.StatusCode)
	}

	scanner := NewScanner(resp.Body)
	for {
		ev, err := scanner.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if reqCtx.Err() != nil {
				// cancelled, not an error surfaced to the caller
				return nil
			}
			return err
		}
		if !c.apply(gen, ev) {
			// superseded or cancelled; stop reading
			return nil
		}
		if ev.Event == EventError {
			// the stream is dead; the reducer froze the message
			return nil
		}
	}
}

// apply folds the event in unless the request has been superseded.
func (c *Client) apply(gen int, ev StreamEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.state = Apply(c.state, ev)
	return true
}
