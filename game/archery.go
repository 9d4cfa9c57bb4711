package game

import (
	"fmt"
	"math"

	"github.com/signalnine/archery-sim/simulation"
)

// Variant names accepted by Play
const (
	VariantRadius     = "radius"
	VariantFixedStart = "fixed-start"
)

// Variants lists every supported game variant.
var Variants = []string{VariantRadius, VariantFixedStart}

// FixedStartThreshold is the opening threshold of the fixed-start variant:
// the first archer to shoot has an even chance of staying in.
const FixedStartThreshold = 0.5

// InitialOrder returns the shooting order for n archers. Archer 1 opens and
// archer 0 shoots last, e.g. [1 2 3 0] for n = 4.
func InitialOrder(n int) []int {
	order := make([]int, 0, n)
	for id := 1; id < n; id++ {
		order = append(order, id)
	}
	return append(order, 0)
}

// Play resolves a variant name to its trial function for n archers.
func Play(variant string, n int) (simulation.TrialFunc, error) {
	if n < 1 {
		return nil, fmt.Errorf("need at least 1 archer, got %d", n)
	}
	switch variant {
	case VariantRadius, "":
		return NewRadiusGame(n), nil
	case VariantFixedStart:
		return NewFixedStartGame(n), nil
	}
	return nil, fmt.Errorf("unknown game variant %q (valid: %v)", variant, Variants)
}

// NewRadiusGame returns the circle elimination game for n archers.
//
// A first shot sets the target radius. Archers then shoot in turn; an archer
// whose arrow lands strictly closer than the current best stays in the circle
// and sets the new target, anyone else is out. The last archer standing wins.
// Shots land uniformly on the unit disc, so the distance from the centre is
// the square root of a uniform draw.
func NewRadiusGame(n int) simulation.TrialFunc {
	order := InitialOrder(n)
	return func(rng simulation.Source) int {
		if len(order) == 1 {
			return order[0]
		}
		shoot := func() float64 {
			return math.Sqrt(rng.Float64())
		}
		return eliminate(order, shoot(), shoot)
	}
}

// NewFixedStartGame is the radius game with a fixed opening threshold of
// FixedStartThreshold instead of an opening shot. Draws are used as they
// come, so the first archer survives with probability FixedStartThreshold.
func NewFixedStartGame(n int) simulation.TrialFunc {
	order := InitialOrder(n)
	return func(rng simulation.Source) int {
		return eliminate(order, FixedStartThreshold, rng.Float64)
	}
}

// eliminate runs one game over a private copy of order, starting from the
// target best. A single archer wins without shooting.
func eliminate(order []int, best float64, shoot func() float64) int {
	queue := newRing(order)
	for queue.Len() > 1 {
		archer := queue.Pop()
		shot := shoot()
		if shot < best {
			best = shot
			queue.Push(archer)
		}
	}
	return queue.Pop()
}
