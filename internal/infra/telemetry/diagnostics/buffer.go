// Package diagnostics holds bounded in-memory buffers for page activity
// captured between tool calls.
package diagnostics

import "sync"

// RingBuffer stores the most recent values in a fixed-size ring.
type RingBuffer[T any] struct {
	mu    sync.Mutex
	items []T
	size  int
	next  int
}

// NewRingBuffer constructs a ring buffer with the provided capacity.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{
		items: make([]T, capacity),
	}
}

// Add inserts a value, evicting the oldest one when full.
func (b *RingBuffer[T]) Add(value T) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.items[b.next] = value
	b.next = (b.next + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	}
	b.mu.Unlock()
}

// Update applies fn to buffered values from newest to oldest and stops at
// the first one for which fn returns true.
func (b *RingBuffer[T]) Update(fn func(*T) bool) bool {
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < b.size; i++ {
		idx := (b.next - 1 - i + len(b.items)) % len(b.items)
		if fn(&b.items[idx]) {
			return true
		}
	}
	return false
}

// Len reports the number of buffered values.
func (b *RingBuffer[T]) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Snapshot returns the buffered values in insertion order.
func (b *RingBuffer[T]) Snapshot() []T {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Drain returns the buffered values in insertion order and empties the ring.
func (b *RingBuffer[T]) Drain() []T {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.snapshotLocked()
	var zero T
	for i := range b.items {
		b.items[i] = zero
	}
	b.size = 0
	b.next = 0
	return out
}

func (b *RingBuffer[T]) snapshotLocked() []T {
	if b.size == 0 {
		return nil
	}
	out := make([]T, 0, b.size)
	if b.size < len(b.items) {
		out = append(out, b.items[:b.size]...)
		return out
	}
	out = append(out, b.items[b.next:]...)
	out = append(out, b.items[:b.next]...)
	return out
}
