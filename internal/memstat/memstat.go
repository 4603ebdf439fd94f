// Package memstat tracks memory in use and its high-water mark for a backend.
package memstat

import (
	"sync"

	"github.com/born-ml/mathengine/native"
)

// Tracker records allocations against an optional limit.
// The zero value is ready to use and unlimited.
type Tracker struct {
	mu     sync.RWMutex
	limit  uint64 // 0 = unlimited
	inUse  uint64
	peak   uint64
	allocs uint64
	active int64
}

// New creates a tracker with the given limit in bytes. 0 means unlimited.
func New(limit uint64) *Tracker {
	return &Tracker{limit: limit}
}

// Reserve accounts size bytes. It fails with native.ErrOutOfMemory when the
// reservation would exceed the limit.
func (t *Tracker) Reserve(size uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.limit > 0 && (size > t.limit || t.inUse > t.limit-size) {
		return native.ErrOutOfMemory
	}

	t.inUse += size
	t.allocs++
	t.active++

	if t.inUse > t.peak {
		t.peak = t.inUse
	}
	return nil
}

// Release gives back size bytes.
func (t *Tracker) Release(size uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.inUse >= size {
		t.inUse -= size
	} else {
		t.inUse = 0
	}
	t.active--
}

// Peak returns the high-water mark.
func (t *Tracker) Peak() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.peak
}

// InUse returns the bytes currently reserved.
func (t *Tracker) InUse() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.inUse
}

// Limit returns the configured limit, 0 when unlimited.
func (t *Tracker) Limit() uint64 {
	return t.limit
}

// Stats is a snapshot of a Tracker.
type Stats struct {
	InUse         uint64
	Peak          uint64
	Limit         uint64
	Allocations   uint64
	ActiveBuffers int64
}

// Stats returns a consistent snapshot.
func (t *Tracker) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Stats{
		InUse:         t.inUse,
		Peak:          t.peak,
		Limit:         t.limit,
		Allocations:   t.allocs,
		ActiveBuffers: t.active,
	}
}
