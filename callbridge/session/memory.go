package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MemoryBackend keeps sessions in process as an LRU list of encoded
// sessions. The least recently used session is evicted beyond capacity.
type MemoryBackend struct {
	mu       sync.Mutex
	capacity int // 0 means unbounded
	items    map[string]*memItem
	head     *memItem
	tail     *memItem
}

type memItem struct {
	key     string
	value   []byte
	updated time.Time
	prev    *memItem
	next    *memItem
}

// NewMemoryBackend creates an LRU backend.
func NewMemoryBackend(capacity int) *MemoryBackend {
	return &MemoryBackend{
		capacity: max(capacity, 0),
		items:    make(map[string]*memItem),
	}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Load(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	item, ok := m.items[id]
	if ok {
		m.moveToFront(item)
	}
	m.mu.Unlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	var s Session
	if err := json.Unmarshal(item.value, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return &s, nil
}

func (m *MemoryBackend) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", s.ID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if item, ok := m.items[s.ID]; ok {
		item.value = data
		item.updated = s.UpdatedAt
		m.moveToFront(item)
		return nil
	}
	item := &memItem{key: s.ID, value: data, updated: s.UpdatedAt}
	m.addToFront(item)
	m.items[s.ID] = item

	if m.capacity > 0 && len(m.items) > m.capacity {
		m.evict(m.tail)
	}
	return nil
}

func (m *MemoryBackend) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		m.evict(item)
	}
	return nil
}

// Sweep removes sessions last updated before cutoff.
func (m *MemoryBackend) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for item := m.tail; item != nil; {
		prev := item.prev
		if item.updated.Before(cutoff) {
			m.evict(item)
			n++
		}
		item = prev
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemoryBackend) Close() error { return nil }

func (m *MemoryBackend) moveToFront(item *memItem) {
	if item == m.head {
		return
	}
	m.unlink(item)
	m.addToFront(item)
}

func (m *MemoryBackend) addToFront(item *memItem) {
	item.next = m.head
	item.prev = nil
	if m.head != nil {
		m.head.prev = item
	}
	m.head = item
	if m.tail == nil {
		m.tail = item
	}
}

func (m *MemoryBackend) unlink(item *memItem) {
	if item.prev != nil {
		item.prev.next = item.next
	} else {
		m.head = item.next
	}
	if item.next != nil {
		item.next.prev = item.prev
	} else {
		m.tail = item.prev
	}
	item.prev = nil
	item.next = nil
}

func (m *MemoryBackend) evict(item *memItem) {
	if item == nil {
		return
	}
	m.unlink(item)
	delete(m.items, item.key)
}

var (
	_ Backend = (*MemoryBackend)(nil)
	_ Sweeper = (*MemoryBackend)(nil)
)
