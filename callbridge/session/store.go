package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
	"github.com/rs/zerolog"
)

// Options bound the size and lifetime of sessions.
type Options struct {
	MaxTurns     int           // history ring capacity
	TTL          time.Duration // idle expiry, 0 disables
	SummaryItems int           // recent requests kept in the summary
	LockTTL      time.Duration // distributed lock lease
}

// Store implements ports.SessionStore on top of a Backend. Turns of one
// session are serialized by a per-id lock; different ids run in parallel.
type Store struct {
	backend Backend
	locks   *lockMap
	locker  Locker
	opts    Options
	logger  zerolog.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLocker adds a cross-process lock taken after the local one.
func WithLocker(l Locker) Option {
	return func(s *Store) { s.locker = l }
}

// NewStore creates a store over backend.
func NewStore(backend Backend, opts Options, logger zerolog.Logger, options ...Option) *Store {
	opts.MaxTurns = max(opts.MaxTurns, 1)
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	s := &Store{
		backend: backend,
		locks:   newLockMap(),
		opts:    opts,
		logger:  logger.With().Str("component", "session").Str("backend", backend.Name()).Logger(),
		now:     time.Now,
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// Backend returns the backend name.
func (s *Store) Backend() string { return s.backend.Name() }

// WithLock runs fn while holding the lock for sessionID. Waiting honours
// ctx; fn receives the same ctx.
func (s *Store) WithLock(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error {
	unlock, err := s.locks.lock(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("waiting for session %s: %w", sessionID, err)
	}
	defer unlock()

	if s.locker != nil {
		release, err := s.locker.Lock(ctx, sessionID, s.opts.LockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to release distributed lock, it will expire via TTL")
			}
		}()
	}
	return fn(ctx)
}

// GetOrCreate returns the conversation for sessionID, creating it for
// userID when absent or expired.
func (s *Store) GetOrCreate(ctx context.Context, sessionID, userID string) (ports.Conversation, error) {
	sess, err := s.load(ctx, sessionID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		sess = New(sessionID, userID, s.opts.MaxTurns, s.now().UTC())
		if err := s.backend.Save(ctx, sess); err != nil {
			return ports.Conversation{}, fmt.Errorf("failed to create session: %w", err)
		}
		s.logger.Debug().Str("session_id", sessionID).Msg("session created")
	case err != nil:
		return ports.Conversation{}, err
	case sess.UserID != userID:
		return ports.Conversation{}, fmt.Errorf("%w: %s", ErrSessionOwnership, sessionID)
	}
	return sess.Conversation(), nil
}

// Get returns a live session without creating one.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	return s.load(ctx, sessionID)
}

// Append pushes a turn, folding the evicted one into the summary.
func (s *Store) Append(ctx context.Context, sessionID string, turn ports.Turn) error {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if evicted, ok := sess.History.Push(turn); ok {
		sess.Summary.Fold(evicted, s.opts.SummaryItems)
	}
	sess.UpdatedAt = s.now().UTC()
	if err := s.backend.Save(ctx, sess); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sessionID, err)
	}
	return nil
}

// Clear removes the session.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.backend.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to clear session %s: %w", sessionID, err)
	}
	return nil
}

// Sweep removes expired sessions from backends without native expiry.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	sw, ok := s.backend.(Sweeper)
	if !ok || s.opts.TTL <= 0 {
		return 0, nil
	}
	return sw.Sweep(ctx, s.now().Add(-s.opts.TTL))
}

// Run sweeps every interval until ctx ends.
func (s *Store) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Warn().Err(err).Msg("session sweep failed")
			} else if n > 0 {
				s.logger.Info().Int("removed", n).Msg("expired sessions swept")
			}
		}
	}
}

// Close releases backend resources.
func (s *Store) Close() error { return s.backend.Close() }

// load fetches a session, treating an idle-expired one as absent.
func (s *Store) load(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.backend.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.opts.TTL > 0 && s.now().Sub(sess.UpdatedAt) > s.opts.TTL {
		if err := s.backend.Delete(ctx, sessionID); err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID).Msg("failed to delete expired session")
		}
		return nil, fmt.Errorf("%w: %s expired", ErrSessionNotFound, sessionID)
	}

	if sess.History == nil {
		sess.History = NewRing[ports.Turn](s.opts.MaxTurns)
	} else if sess.History.Cap() != s.opts.MaxTurns {
		for _, t := range sess.History.Resize(s.opts.MaxTurns) {
			sess.Summary.Fold(t, s.opts.SummaryItems)
		}
	}
	return sess, nil
}

var _ ports.SessionStore = (*Store)(nil)
