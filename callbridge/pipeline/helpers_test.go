package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ZanzyTHEbar/callbridge/callbridge/inference"
	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
)

// funcBackend resolves binding paths from a plain map.
type funcBackend map[string]ports.BackendFunc

func (b funcBackend) Resolve(path string) (ports.BackendFunc, bool) {
	fn, ok := b[path]
	return fn, ok
}

func echo(_ context.Context, args map[string]any) (any, error) { return args, nil }

// stubInferer replays canned model output.
type stubInferer struct {
	mu       sync.Mutex
	replies  []string
	attempts int
	err      error
	prompts  []ports.Prompt
	calls    int

	active atomic.Int32
	peak   atomic.Int32
	block  chan struct{}
}

func (s *stubInferer) Infer(ctx context.Context, p ports.Prompt) (inference.Inference, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		cur := s.peak.Load()
		if n <= cur || s.peak.CompareAndSwap(cur, n) {
			break
		}
	}
	if s.block != nil {
		<-s.block
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, p)
	attempts := max(s.attempts, 1)
	if s.err != nil {
		return inference.Inference{Attempts: attempts}, s.err
	}
	text := ""
	if len(s.replies) > 0 {
		text = s.replies[min(s.calls, len(s.replies)-1)]
	}
	s.calls++
	return inference.Inference{Text: text, Attempts: attempts}, nil
}

func (s *stubInferer) lastPrompt() ports.Prompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prompts[len(s.prompts)-1]
}

// memStore is a minimal in-process SessionStore.
type memStore struct {
	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	convs     map[string]*ports.Conversation
	appendErr error
}

func newMemStore() *memStore {
	return &memStore{locks: map[string]*sync.Mutex{}, convs: map[string]*ports.Conversation{}}
}

func (m *memStore) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	m.mu.Lock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	m.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}

func (m *memStore) GetOrCreate(_ context.Context, id, userID string) (ports.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		c = &ports.Conversation{ID: id, UserID: userID}
		m.convs[id] = c
	}
	out := *c
	out.Turns = append([]ports.Turn(nil), c.Turns...)
	return out, nil
}

func (m *memStore) Append(_ context.Context, id string, t ports.Turn) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[id].Turns = append(m.convs[id].Turns, t)
	return nil
}

func (m *memStore) Clear(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.convs, id)
	return nil
}

func (m *memStore) turns(id string) []ports.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.convs[id]; ok {
		return append([]ports.Turn(nil), c.Turns...)
	}
	return nil
}

var _ ports.SessionStore = (*memStore)(nil)
