// Package pool provides object pooling and the Record type that flows
// between nebula-sql connectors.
//
// Records are taken from a shared pool and should be released by the last
// consumer that touches them:
//
//	record := pool.GetRecord()
//	defer record.Release()
//
//	record.Set("id", 1)
//	record.Set("name", "John")
package pool

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// Pool is a typed wrapper around sync.Pool that keeps usage statistics.
// It is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		gets      int64
	}
}

// New creates a pool. newFn builds a fresh object when the pool is empty;
// reset, if not nil, runs on every object handed back through Put.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	atomic.AddInt64(&p.stats.gets, 1)
	return p.pool.Get().(T)
}

// Put resets obj and returns it to the pool.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats is a snapshot of pool usage.
type Stats struct {
	// Allocated is the number of objects the pool had to create
	Allocated int64
	// InUse is the number of objects checked out and not yet returned
	InUse int64
	// Gets is the total number of Get calls
	Gets int64
}

// Stats returns the current pool statistics.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Allocated: atomic.LoadInt64(&p.stats.allocated),
		InUse:     atomic.LoadInt64(&p.stats.inUse),
		Gets:      atomic.LoadInt64(&p.stats.gets),
	}
}

var idCounter uint64

// GenerateID returns a process-unique id of the form "prefix-N".
func GenerateID(prefix string) string {
	n := atomic.AddUint64(&idCounter, 1)
	return prefix + "-" + strconv.FormatUint(n, 10)
}

// BatchSlicePool pools record slices used as flush batches.
var BatchSlicePool = New(
	func() []*Record {
		return make([]*Record, 0, 1000)
	},
	func(s []*Record) {
		// drop references so released records can be collected
		for i := range s[:cap(s)] {
			s[:cap(s)][i] = nil
		}
	},
)

// GetBatchSlice returns an empty slice with at least the given capacity.
func GetBatchSlice(capacity int) []*Record {
	s := BatchSlicePool.Get()
	if cap(s) < capacity {
		// too small; the bigger replacement goes back in its place
		return make([]*Record, 0, capacity)
	}
	return s[:0]
}

// PutBatchSlice returns a batch slice to the pool. The records themselves are
// not released.
func PutBatchSlice(batch []*Record) {
	if batch == nil {
		return
	}
	BatchSlicePool.Put(batch[:0])
}

// GetGlobalStats returns statistics for the shared pools.
func GetGlobalStats() map[string]Stats {
	return map[string]Stats{
		"record": RecordPool.Stats(),
		"batch":  BatchSlicePool.Stats(),
	}
}
