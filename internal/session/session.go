// Package session holds the process-wide registry of active conversations
// and enforces the one-stream-per-conversation rule.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"

	"docchat/internal/logger"
)

// Session is one active conversation. It is created lazily, never mutated
// besides its stream lifecycle, and lives until the process exits.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu     sync.Mutex
	fsm    *stateless.StateMachine
	cancel context.CancelFunc
	gen    uint64
}

// Stream is a handle on one stream attempt. Its outcome methods act only
// while the attempt is current; once a newer BeginStream supersedes it they
// become no-ops, so a stale handler cannot disturb the stream that replaced
// its own.
type Stream struct {
	ctx context.Context
	s   *Session
	gen uint64
}

// Context is cancelled when the attempt is superseded, cancelled or the
// parent request ends.
func (h *Stream) Context() context.Context { return h.ctx }

// Complete marks the attempt finished.
func (h *Stream) Complete() { h.s.end(h.gen, triggerComplete) }

// Fail marks the attempt failed.
func (h *Stream) Fail() { h.s.end(h.gen, triggerFail) }

// Cancel terminates the attempt.
func (h *Stream) Cancel() { h.s.end(h.gen, triggerCancel) }

// BeginStream starts a new stream attempt for the session, cancelling any
// attempt still in flight.
func (s *Session) BeginStream(ctx context.Context) *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		logger.L.Info().Str("thread_id", s.ID).Msg("superseding in-flight stream")
		s.cancel()
		s.cancel = nil
		s.fireLocked(triggerCancel)
	}

	s.fireLocked(triggerBegin)
	streamCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.gen++
	return &Stream{ctx: streamCtx, s: s, gen: s.gen}
}

// Cancel terminates the current in-flight attempt, if any. Cancelling a
// completed or already-cancelled stream is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.end(gen, triggerCancel)
}

// State reports the current lifecycle state.
func (s *Session) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, _ := s.fsm.State(context.Background())
	return st.(string)
}

func (s *Session) end(gen uint64, trigger string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		// superseded; a newer attempt owns the session now
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.fireLocked(trigger)
}

func (s *Session) fireLocked(trigger string) {
	if err := s.fsm.Fire(trigger); err != nil {
		// Unhandled trigger means the stream already reached another
		// terminal state, e.g. complete racing a cancel.
		logger.L.Debug().Str("thread_id", s.ID).Str("trigger", trigger).Err(err).Msg("lifecycle trigger ignored")
	}
}

// Registry maps thread identifiers to sessions. One handle per active
// conversation, created on first use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Ensure returns the session for id, creating it if absent.
func (r *Registry) Ensure(id string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s := &Session{ID: id, CreatedAt: time.Now(), fsm: newLifecycle()}
	r.sessions[id] = s
	logger.L.Debug().Str("thread_id", id).Msg("session created")
	return s
}

// Get returns the session for id without creating it.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// NewThreadID mints an identifier for a fresh conversation.
func (r *Registry) NewThreadID() string {
	return uuid.NewString()
}

// Remove tears a session down, cancelling any in-flight stream.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Cancel()
	}
}
