package simulation

import (
	"fmt"
	"maps"
	"slices"
)

// Tally is the final, immutable win count per participant.
type Tally struct {
	wins  map[int]uint64
	ids   []int
	total uint64
}

// Fold merges all shards pairwise into a single tally.
// Merge is associative and commutative, so shard order does not matter.
func Fold(shards []*Shard) Tally {
	merged := NewShard()
	for _, s := range shards {
		merged = merged.Merge(s)
	}

	wins := make(map[int]uint64, len(merged.wins))
	var total uint64
	for id, c := range merged.wins {
		n := c.Load()
		wins[id] = n
		total += n
	}

	return Tally{
		wins:  wins,
		ids:   slices.Sorted(maps.Keys(wins)),
		total: total,
	}
}

// Count returns the wins for id, zero if the participant never won
func (t Tally) Count(id int) uint64 {
	return t.wins[id]
}

// IDs returns the participants that won at least once, ascending
func (t Tally) IDs() []int {
	return slices.Clone(t.ids)
}

// Total returns the sum of all win counts
func (t Tally) Total() uint64 {
	return t.total
}

// Wins returns a copy of the id to count mapping
func (t Tally) Wins() map[int]uint64 {
	return maps.Clone(t.wins)
}

// Probability returns the empirical win probability of id over trials.
func (t Tally) Probability(id int, trials uint64) float64 {
	if trials == 0 {
		return 0
	}
	return float64(t.wins[id]) / float64(trials)
}

// Check verifies that the tally accounts for exactly the executed trials.
func (t Tally) Check(executed uint64) error {
	if t.total != executed {
		return fmt.Errorf("%w: total wins (%d) do not equal number of matches played (%d)",
			ErrAggregationMismatch, t.total, executed)
	}
	return nil
}
