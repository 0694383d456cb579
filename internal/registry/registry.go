// Package registry is a fixed-capacity event-to-subscriber table.
//
// Registration is append-only. Publish runs every matching subscriber in
// registration order on the caller's goroutine, so a slow subscriber delays
// the publisher.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrRegistryFull = errors.New("callback registry full")
	ErrNilCallback  = errors.New("callback is nil")
)

// DefaultCapacity matches the firmware's callback table size.
const DefaultCapacity = 5

type entry[E comparable, A any] struct {
	event E
	fn    func(A)
}

type Registry[E comparable, A any] struct {
	mu      sync.RWMutex
	cap     int
	entries []entry[E, A]
}

func New[E comparable, A any](capacity int) *Registry[E, A] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry[E, A]{cap: capacity, entries: make([]entry[E, A], 0, capacity)}
}

// Register appends fn for event. Past capacity the table is left unchanged.
func (r *Registry[E, A]) Register(event E, fn func(A)) error {
	if fn == nil {
		return ErrNilCallback
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) >= r.cap {
		return fmt.Errorf("%w: capacity %d", ErrRegistryFull, r.cap)
	}
	r.entries = append(r.entries, entry[E, A]{event: event, fn: fn})
	return nil
}

// Publish invokes the subscribers of event and returns how many ran.
// The table is snapshotted first, so a subscriber may Register without deadlock.
func (r *Registry[E, A]) Publish(event E, arg A) int {
	r.mu.RLock()
	matched := make([]func(A), 0, len(r.entries))
	for _, e := range r.entries {
		if e.event == event {
			matched = append(matched, e.fn)
		}
	}
	r.mu.RUnlock()

	for _, fn := range matched {
		fn(arg)
	}
	return len(matched)
}

func (r *Registry[E, A]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func (r *Registry[E, A]) Cap() int { return r.cap }
