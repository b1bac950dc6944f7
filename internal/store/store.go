// Package store persists per-thread transcripts and upload manifests in
// SQLite. If the database cannot be opened it degrades to in-memory storage
// rather than failing the request path.
package store

import (
	"database/sql"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"

	"docchat/internal/logger"
)

// Message is one transcript row.
type Message struct {
	ID        int64     `json:"id"`
	ThreadID  string    `json:"threadId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Upload is one ingested-file manifest row.
type Upload struct {
	ID        int64     `json:"id"`
	ThreadID  string    `json:"threadId"`
	Filename  string    `json:"filename"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store wraps the database handle plus the in-memory fallback.
type Store struct {
	mu       sync.Mutex
	db       *sql.DB
	messages []Message
	uploads  []Upload
}

// Open opens the SQLite database at path and creates the tables. It never
// returns an error: on failure the store works from memory only.
func Open(path string) *Store {
	s := &Store{}
	db, err := sql.Open("sqlite", "file:"+path+"?_busy_timeout=10000&_fk=1")
	if err != nil {
		logger.L.Warn().Err(err).Str("path", path).Msg("sqlite open failed; using in-memory store")
		return s
	}
	schema := []string{
		`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		thread_id TEXT,
		role TEXT,
		content TEXT,
		created_at DATETIME
	);`,
		`CREATE TABLE IF NOT EXISTS uploads (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		thread_id TEXT,
		filename TEXT,
		size_bytes INTEGER,
		created_at DATETIME
	);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			logger.L.Warn().Err(err).Str("path", path).Msg("sqlite table creation failed; using in-memory store")
			_ = db.Close()
			return s
		}
	}
	s.db = db
	logger.L.Info().Str("path", path).Msg("sqlite store initialized")
	return s
}

// SaveMessage appends one transcript row. Persistence errors are logged; the
// in-memory copy is always kept.
func (s *Store) SaveMessage(threadID, role, content string) {
	msg := Message{ThreadID: threadID, Role: role, Content: content, CreatedAt: time.Now().UTC()}
	if s.db != nil {
		if _, err := s.db.Exec(`INSERT INTO messages (thread_id, role, content, created_at) VALUES (?,?,?,?);`,
			msg.ThreadID, msg.Role, msg.Content, msg.CreatedAt); err != nil {
			logger.L.Error().Err(err).Msg("failed to store message in sqlite; falling back to memory")
		}
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

// RecordAssistant satisfies the relay's Recorder.
func (s *Store) RecordAssistant(threadID, text string) {
	s.SaveMessage(threadID, "assistant", text)
}

// SaveUpload appends one upload manifest row.
func (s *Store) SaveUpload(threadID, filename string, sizeBytes int64) {
	up := Upload{ThreadID: threadID, Filename: filename, SizeBytes: sizeBytes, CreatedAt: time.Now().UTC()}
	if s.db != nil {
		if _, err := s.db.Exec(`INSERT INTO uploads (thread_id, filename, size_bytes, created_at) VALUES (?,?,?,?);`,
			up.ThreadID, up.Filename, up.SizeBytes, up.CreatedAt); err != nil {
			logger.L.Error().Err(err).Msg("failed to store upload in sqlite; falling back to memory")
		}
	}
	s.mu.Lock()
	s.uploads = append(s.uploads, up)
	s.mu.Unlock()
}

// Messages returns all transcript rows of a thread in chronological order.
func (s *Store) Messages(threadID string) []Message {
	if s.db != nil {
		rows, err := s.db.Query(`SELECT id, thread_id, role, content, created_at FROM messages WHERE thread_id = ? ORDER BY id ASC;`, threadID)
		if err == nil {
			defer rows.Close()
			var out []Message
			for rows.Next() {
				var m Message
				if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &m.CreatedAt); err == nil {
					out = append(out, m)
				}
			}
			return out
		}
		logger.L.Warn().Err(err).Msg("sqlite query failed; reading from memory")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.ThreadID == threadID {
			out = append(out, m)
		}
	}
	return out
}

// Uploads returns the upload manifest of a thread.
func (s *Store) Uploads(threadID string) []Upload {
	if s.db != nil {
		rows, err := s.db.Query(`SELECT id, thread_id, filename, size_bytes, created_at FROM uploads WHERE thread_id = ? ORDER BY id ASC;`, threadID)
		if err == nil {
			defer rows.Close()
			var out []Upload
			for rows.Next() {
				var u Upload
				if err := rows.Scan(&u.ID, &u.ThreadID, &u.Filename, &u.SizeBytes, &u.CreatedAt); err == nil {
					out = append(out, u)
				}
			}
			return out
		}
		logger.L.Warn().Err(err).Msg("sqlite query failed; reading from memory")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Upload
	for _, u := range s.uploads {
		if u.ThreadID == threadID {
			out = append(out, u)
		}
	}
	return out
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
