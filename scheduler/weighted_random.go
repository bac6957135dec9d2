// Package scheduler implements the two-tier corpus/infant-state scheduler spec
// §4.4 describes: a state scheduler (Tier 1) choosing which parent VMState to
// extend, and an input scheduler (Tier 2) choosing a transaction template and bias
// toward favourite operand values.
package scheduler

import (
	"errors"
	"math/rand"
	"sync"
)

// ErrNoChoices is returned by choose when the chooser has no positively-weighted
// entries to select from.
var ErrNoChoices = errors.New("scheduler: no positively-weighted choices available")

// weightedChoice pairs arbitrary data with a float64 selection weight. Grounded on
// the teacher's WeightedRandomChoice (utils/randomutils/weighted_random.go), but
// using float64 rather than big.Int weights: state/input weights here are already
// continuous decay functions (spec §4.4's `f(age, hit_rarity, child_count,
// last_novelty_gain)`), not wei-scale integers, so the teacher's big.Int precision
// has no analogous need and float64 keeps choose() allocation-free.
type weightedChoice[T any] struct {
	data   T
	weight float64
}

// weightedChooser performs weighted-random selection over a growing, re-weighable
// set of choices, generalizing the teacher's WeightedRandomChooser (which only
// supports append-only weights fixed at insertion time) to support in-place weight
// updates — required here since a VMState's weight changes every time it gains or
// fails to gain a new child (spec §4.4's exponential decay on consecutive
// non-novel children).
type weightedChooser[T any] struct {
	mu      sync.Mutex
	entries []*weightedChoice[T]
	rng     *rand.Rand
}

func newWeightedChooser[T any](rng *rand.Rand) *weightedChooser[T] {
	return &weightedChooser[T]{rng: rng}
}

func (c *weightedChooser[T]) add(data T, weight float64) *weightedChoice[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := &weightedChoice[T]{data: data, weight: weight}
	c.entries = append(c.entries, entry)
	return entry
}

func (c *weightedChooser[T]) reweight(entry *weightedChoice[T], weight float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.weight = weight
}

// choose selects one entry with probability proportional to its current weight.
// Ties (equal weight) are broken by iteration order, which callers arrange to be
// recency order, matching spec §4.4's "ties broken by recency".
func (c *weightedChooser[T]) choose() (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total float64
	for _, e := range c.entries {
		if e.weight > 0 {
			total += e.weight
		}
	}
	if total <= 0 {
		var zero T
		return zero, ErrNoChoices
	}

	target := c.rng.Float64() * total
	for _, e := range c.entries {
		if e.weight <= 0 {
			continue
		}
		if target < e.weight {
			return e.data, nil
		}
		target -= e.weight
	}

	var zero T
	return zero, ErrNoChoices
}

func (c *weightedChooser[T]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
