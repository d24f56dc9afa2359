// Package session stores per-conversation dialogue state.
//
// A Session is keyed by an opaque id. Two backends are provided: an
// in-process MemoryStore with TTL and LRU eviction, and a RedisStore that
// delegates eviction to key expiry. Stores hold copies, so callers may
// mutate a Session freely between Get and Save.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/healthqa/internal/conversation"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no live session exists for an id.
	ErrNotFound = errors.New("session not found")

	// ErrInvalidID is returned for empty or oversized session ids.
	ErrInvalidID = errors.New("invalid session id")

	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("session store unavailable")
)

// MaxIDLength bounds caller-supplied session ids.
const MaxIDLength = 128

// Session is the server-side state of one conversation.
type Session struct {
	ID      string               `json:"session_id"`
	History conversation.History `json:"history"`
	// PendingClarification is true iff the last assistant turn was a
	// clarification question.
	PendingClarification bool `json:"pending_clarification"`
	// PendingQuery is the ambiguous message awaiting its clarification answer.
	PendingQuery string    `json:"pending_query,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// New returns an empty session. An empty id gets a fresh UUID.
func New(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()
	return &Session{ID: id, CreatedAt: now, UpdatedAt: now}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.History = s.History.Clone()
	return &c
}

// ValidateID checks a caller-supplied id.
func ValidateID(id string) error {
	if id == "" || len(id) > MaxIDLength {
		return ErrInvalidID
	}
	return nil
}

// Store persists sessions.
type Store interface {
	// Get returns a copy of the session or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Save stores a copy of s and refreshes its expiry.
	Save(ctx context.Context, s *Session) error
	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
	Close() error
}
