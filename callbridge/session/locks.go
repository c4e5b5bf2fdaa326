package session

import (
	"context"
	"sync"
)

// lockEntry is a context-aware mutex shared by every waiter on one id.
type lockEntry struct {
	ch   chan struct{}
	refs int
}

// lockMap hands out per-id locks and drops an entry once nobody holds
// or waits on it.
type lockMap struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newLockMap() *lockMap {
	return &lockMap{locks: make(map[string]*lockEntry)}
}

func (m *lockMap) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[id]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		m.locks[id] = e
	}
	e.refs++
	return e
}

func (m *lockMap) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.locks[id]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(m.locks, id)
	}
}

// lock blocks until id is free or ctx ends.
func (m *lockMap) lock(ctx context.Context, id string) (func(), error) {
	e := m.acquire(id)
	select {
	case e.ch <- struct{}{}:
		return func() {
			<-e.ch
			m.release(id)
		}, nil
	case <-ctx.Done():
		m.release(id)
		return nil, ctx.Err()
	}
}

func (m *lockMap) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}
