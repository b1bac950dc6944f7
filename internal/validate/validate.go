// Package validate checks chat input against syntactic bounds before any
// upstream resource is touched.
package validate

import (
	"strings"

	"docchat/internal/apperr"
)

const (
	// MaxMessageLen bounds a single chat message.
	MaxMessageLen = 10000
	// MaxThreadIDLen bounds a session identifier.
	MaxThreadIDLen = 100
)

// Message checks a candidate chat message. It returns nil on pass and a
// validation error with a human-readable reason on fail.
func Message(msg string) error {
	if strings.TrimSpace(msg) == "" {
		return apperr.Validation("message must be a non-empty string")
	}
	if len(msg) > MaxMessageLen {
		return apperr.Validation("message exceeds maximum length of 10000 characters")
	}
	return nil
}

// ThreadID checks a candidate session identifier.
func ThreadID(id string) error {
	if id == "" {
		return apperr.Validation("threadId must be a non-empty string")
	}
	if len(id) > MaxThreadIDLen {
		return apperr.Validation("threadId exceeds maximum length of 100 characters")
	}
	return nil
}
