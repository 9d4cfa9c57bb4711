package simulation

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// Shard holds the win counts produced by a single worker.
//
// Only the owning worker adds keys or increments counters while trials are
// running. Counters are atomic so the final fold may read them from another
// goroutine once the owner is finished.
type Shard struct {
	wins map[int]*atomic.Uint64
}

// NewShard creates an empty shard
func NewShard() *Shard {
	return &Shard{wins: make(map[int]*atomic.Uint64)}
}

// Increment records one win for participant id
func (s *Shard) Increment(id int) {
	s.counter(id).Add(1)
}

func (s *Shard) counter(id int) *atomic.Uint64 {
	c, ok := s.wins[id]
	if !ok {
		c = new(atomic.Uint64)
		s.wins[id] = c
	}
	return c
}

// Count returns the wins recorded for id. Unknown ids count as zero.
func (s *Shard) Count(id int) uint64 {
	if s == nil {
		return 0
	}
	if c, ok := s.wins[id]; ok {
		return c.Load()
	}
	return 0
}

// Total returns the sum of all counters in the shard.
func (s *Shard) Total() uint64 {
	if s == nil {
		return 0
	}
	var total uint64
	for _, c := range s.wins {
		total += c.Load()
	}
	return total
}

// IDs returns the participant ids present in the shard in ascending order.
func (s *Shard) IDs() []int {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.wins))
}

// Merge returns a new shard holding the union of both key sets with the
// counts summed per key. Neither operand is modified; a nil operand acts as
// an empty shard.
func (s *Shard) Merge(other *Shard) *Shard {
	merged := NewShard()
	for _, src := range []*Shard{s, other} {
		if src == nil {
			continue
		}
		for id, c := range src.wins {
			merged.counter(id).Add(c.Load())
		}
	}
	return merged
}

// Registry collects every shard created during a run.
// Register is safe for concurrent use; Snapshot must only be called once
// all registering workers have finished.
type Registry struct {
	mu     sync.Mutex
	shards []*Shard
}

// Register appends a shard to the registry
func (r *Registry) Register(s *Shard) {
	r.mu.Lock()
	r.shards = append(r.shards, s)
	r.mu.Unlock()
}

// Snapshot returns a copy of the registered shards
func (r *Registry) Snapshot() []*Shard {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.shards)
}

// Len returns the number of registered shards
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.shards)
}
