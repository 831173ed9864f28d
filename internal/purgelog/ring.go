// Package purgelog keeps a bounded record of recently purged hosts.
package purgelog

import (
	"context"
	"sync"

	"github.com/runnerr0/bounceguard/internal/model"
)

// DefaultCapacity bounds a partition's log.
const DefaultCapacity = 100

// Log is an append-only, capped purge log for one partition.
type Log interface {
	Append(ctx context.Context, entry model.PurgeLogEntry) error
	// Entries returns the retained entries, oldest first.
	Entries(ctx context.Context) ([]model.PurgeLogEntry, error)
	Clear(ctx context.Context) error
}

// Ring is an in-memory Log that evicts the oldest entry when full.
type Ring struct {
	mu    sync.Mutex
	buf   []model.PurgeLogEntry
	start int
	size  int
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]model.PurgeLogEntry, capacity)}
}

func (r *Ring) Append(_ context.Context, entry model.PurgeLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = entry
		r.size++
		return nil
	}
	r.buf[r.start] = entry
	r.start = (r.start + 1) % len(r.buf)
	return nil
}

func (r *Ring) Entries(_ context.Context) ([]model.PurgeLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.PurgeLogEntry, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out, nil
}

func (r *Ring) Clear(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.buf)
	r.start = 0
	r.size = 0
	return nil
}

// Len returns the number of retained entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
