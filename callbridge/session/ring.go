package session

import "encoding/json"

// Ring is a fixed-capacity FIFO that evicts its oldest element on overflow.
type Ring[T any] struct {
	buf   []T
	start int
	n     int
}

// NewRing creates a ring holding at most capacity elements (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{buf: make([]T, max(capacity, 1))}
}

func (r *Ring[T]) Len() int { return r.n }
func (r *Ring[T]) Cap() int { return len(r.buf) }

// Push appends v and returns the evicted element, if any.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = v
		r.n++
		return evicted, false
	}
	evicted = r.buf[r.start]
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
	return evicted, true
}

// Items returns a copy of the elements, oldest first.
func (r *Ring[T]) Items() []T {
	out := make([]T, r.n)
	for i := range r.n {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

// Resize changes the capacity, returning the elements that no longer fit.
func (r *Ring[T]) Resize(capacity int) []T {
	items := r.Items()
	capacity = max(capacity, 1)
	var dropped []T
	if len(items) > capacity {
		dropped = items[:len(items)-capacity]
		items = items[len(items)-capacity:]
	}
	r.buf = make([]T, capacity)
	r.start = 0
	r.n = copy(r.buf, items)
	return dropped
}

type ringJSON[T any] struct {
	Capacity int `json:"capacity"`
	Items    []T `json:"items"`
}

func (r *Ring[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(ringJSON[T]{Capacity: len(r.buf), Items: r.Items()})
}

func (r *Ring[T]) UnmarshalJSON(data []byte) error {
	var raw ringJSON[T]
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.buf = make([]T, max(raw.Capacity, len(raw.Items), 1))
	r.start = 0
	r.n = copy(r.buf, raw.Items)
	return nil
}
