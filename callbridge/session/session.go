// Package session keeps per-conversation state behind pluggable backends.
package session

import (
	"context"
	"errors"
	"time"

	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionOwnership = errors.New("session belongs to another user")
)

// Session is the persisted form of a conversation.
type Session struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	History   *Ring[ports.Turn] `json:"history"`
	Summary   Summary           `json:"summary"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// New creates an empty session with room for maxTurns turns.
func New(id, userID string, maxTurns int, now time.Time) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		History:   NewRing[ports.Turn](maxTurns),
		Summary:   Summary{Tools: map[string]*Tally{}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Conversation returns the read-only view handed to the pipeline.
func (s *Session) Conversation() ports.Conversation {
	return ports.Conversation{
		ID:      s.ID,
		UserID:  s.UserID,
		Turns:   s.History.Items(),
		Summary: s.Summary.Render(),
	}
}

// Backend persists sessions. Load returns ErrSessionNotFound for
// unknown ids.
type Backend interface {
	Name() string
	Load(ctx context.Context, id string) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Sweeper is implemented by backends that need explicit expiry.
type Sweeper interface {
	// Sweep removes sessions last updated before cutoff.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// UnlockFunc releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// Locker serializes a session id across processes.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}
