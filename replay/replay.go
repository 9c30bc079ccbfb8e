// Package replay drives a cache model with an ordered access sequence
// and accumulates summary statistics.
package replay

import (
	"io"

	"github.com/sarchlab/cachesim/cache"
	"github.com/sarchlab/cachesim/trace"
)

// Stats accumulates the outcome counters for one replayed trace.
// DirtyBytes is the number of bytes currently held dirty across the
// whole cache; DirtyEvictions is the cumulative number of bytes evicted
// while dirty.
type Stats struct {
	Hits           uint64
	Misses         uint64
	Evictions      uint64
	DirtyBytes     uint64
	DirtyEvictions uint64
}

// An AccessSource supplies trace records in replay order. Next returns
// io.EOF when the sequence is exhausted.
type AccessSource interface {
	Next() (trace.Access, error)
}

// A Listener is notified after each replayed access with the access's
// sequence number and outcome.
type Listener interface {
	NotifyAccess(seq uint64, acc trace.Access, res cache.Result)
}

// A Replayer feeds accesses to a cache in sequence order and folds each
// outcome into the running statistics. Each access's 0-based sequence
// position doubles as the cache's logical clock, so records must not be
// reordered or replayed concurrently.
type Replayer struct {
	cache     *cache.Cache
	stats     Stats
	nextSeq   uint64
	listeners []Listener
}

// NewReplayer returns a replayer that drives c.
func NewReplayer(c *cache.Cache) *Replayer {
	return &Replayer{cache: c}
}

// AddListener registers l to observe every subsequent access.
func (r *Replayer) AddListener(l Listener) {
	r.listeners = append(r.listeners, l)
}

// Step replays a single access and returns its outcome.
func (r *Replayer) Step(acc trace.Access) cache.Result {
	seq := r.nextSeq
	r.nextSeq++

	res := r.cache.Access(acc.Addr, acc.Op == trace.OpStore, seq)

	if res.Hit {
		r.stats.Hits++
	}

	if res.Miss {
		r.stats.Misses++
	}

	if res.Eviction {
		r.stats.Evictions++
	}

	if res.BecameDirty {
		r.stats.DirtyBytes += r.cache.BlockSize
	}

	if res.EvictedDirty {
		r.stats.DirtyBytes -= r.cache.BlockSize
		r.stats.DirtyEvictions += r.cache.BlockSize
	}

	for _, l := range r.listeners {
		l.NotifyAccess(seq, acc, res)
	}

	return res
}

// Run replays every access that src produces, in order, and returns the
// final statistics. An empty source is not an error and yields all-zero
// statistics.
func (r *Replayer) Run(src AccessSource) (Stats, error) {
	for {
		acc, err := src.Next()
		if err == io.EOF {
			return r.stats, nil
		}

		if err != nil {
			return r.stats, err
		}

		r.Step(acc)
	}
}

// Stats returns the statistics accumulated so far.
func (r *Replayer) Stats() Stats {
	return r.stats
}
