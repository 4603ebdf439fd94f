// Package scratch keeps one temporary buffer pool per thread.
//
// Buffers handed out by Acquire stay owned by the pool of the requesting
// thread until Release drops the whole pool. Recycled buffers are kept in
// size buckets and reused by later Acquire calls on the same thread.
package scratch

import (
	"sync"

	"github.com/born-ml/mathengine/native"
)

// BufferSize represents different buffer size categories for pooling.
type BufferSize int

const (
	// SmallBuffer for buffers < 4KB.
	SmallBuffer BufferSize = iota
	// MediumBuffer for buffers 4KB-1MB.
	MediumBuffer
	// LargeBuffer for buffers > 1MB.
	LargeBuffer

	numCategories
)

const (
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB
	maxPoolSize     = 100         // Max free buffers per category and thread
)

// Allocator creates and destroys backend buffers. Buffers must be comparable
// (pointer types).
type Allocator interface {
	Alloc(size uint64) (native.Buffer, error)
	Free(buf native.Buffer)
}

type threadPool struct {
	owned map[native.Buffer]struct{}
	free  [numCategories][]native.Buffer
}

// Pools manages the temporary pools of every thread of one backend.
type Pools struct {
	alloc Allocator

	mu      sync.Mutex
	threads map[native.ThreadID]*threadPool

	// Statistics
	hits   uint64
	misses uint64
}

// New creates an empty set of pools allocating through alloc.
func New(alloc Allocator) *Pools {
	return &Pools{
		alloc:   alloc,
		threads: make(map[native.ThreadID]*threadPool),
	}
}

// Acquire returns a buffer of at least size bytes owned by thread.
func (p *Pools) Acquire(thread native.ThreadID, size uint64) (native.Buffer, error) {
	p.mu.Lock()
	tp := p.threadLocked(thread)
	// A recycled buffer lives in the bucket of its own size, which may be
	// larger than the bucket of the request.
	for category := categorize(size); category < numCategories; category++ {
		for i, buf := range tp.free[category] {
			if buf.Size() >= size {
				tp.free[category] = append(tp.free[category][:i], tp.free[category][i+1:]...)
				p.hits++
				p.mu.Unlock()
				return buf, nil
			}
		}
	}
	p.misses++
	p.mu.Unlock()

	buf, err := p.alloc.Alloc(size)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.threadLocked(thread).owned[buf] = struct{}{}
	p.mu.Unlock()
	return buf, nil
}

// Recycle puts buf back on the free list of thread. It reports false when
// buf is not owned by thread.
func (p *Pools) Recycle(thread native.ThreadID, buf native.Buffer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	tp, ok := p.threads[thread]
	if !ok {
		return false
	}
	if _, owned := tp.owned[buf]; !owned {
		return false
	}

	category := categorize(buf.Size())
	for _, f := range tp.free[category] {
		if f == buf {
			return true
		}
	}
	if len(tp.free[category]) >= maxPoolSize {
		delete(tp.owned, buf)
		p.alloc.Free(buf)
		return true
	}
	tp.free[category] = append(tp.free[category], buf)
	return true
}

// Release frees every buffer owned by thread and forgets the pool.
// It returns the number of buffers freed.
func (p *Pools) Release(thread native.ThreadID) int {
	p.mu.Lock()
	tp, ok := p.threads[thread]
	delete(p.threads, thread)
	p.mu.Unlock()

	if !ok {
		return 0
	}
	for buf := range tp.owned {
		p.alloc.Free(buf)
	}
	return len(tp.owned)
}

// Drain releases the pools of all threads.
func (p *Pools) Drain() int {
	p.mu.Lock()
	threads := p.threads
	p.threads = make(map[native.ThreadID]*threadPool)
	p.mu.Unlock()

	n := 0
	for _, tp := range threads {
		for buf := range tp.owned {
			p.alloc.Free(buf)
			n++
		}
	}
	return n
}

// Stats describes pool usage.
type Stats struct {
	Threads int
	Owned   int
	Pooled  int
	Hits    uint64
	Misses  uint64
}

// Stats returns statistics about pool usage.
func (p *Pools) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{Threads: len(p.threads), Hits: p.hits, Misses: p.misses}
	for _, tp := range p.threads {
		s.Owned += len(tp.owned)
		for _, free := range tp.free {
			s.Pooled += len(free)
		}
	}
	return s
}

// Owned returns the number of buffers owned by thread.
func (p *Pools) Owned(thread native.ThreadID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if tp, ok := p.threads[thread]; ok {
		return len(tp.owned)
	}
	return 0
}

func (p *Pools) threadLocked(thread native.ThreadID) *threadPool {
	tp, ok := p.threads[thread]
	if !ok {
		tp = &threadPool{owned: make(map[native.Buffer]struct{})}
		p.threads[thread] = tp
	}
	return tp
}

// categorize determines the size category for a buffer.
func categorize(size uint64) BufferSize {
	if size < smallThreshold {
		return SmallBuffer
	}
	if size < mediumThreshold {
		return MediumBuffer
	}
	return LargeBuffer
}
