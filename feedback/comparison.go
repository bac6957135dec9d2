package feedback

import (
	"math/bits"
	"sync"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// comparisonKey identifies a single comparison site: the contract it occurred in and
// the program counter of the comparison opcode.
type comparisonKey struct {
	codeHash common.Hash
	pc       uint64
}

// ComparisonTracker records, per comparison site, the smallest Hamming distance
// between the two operands ever observed at that site — the "comparison-progress"
// feedback (spec §4.6 feedback 2): an operand pair that gets strictly closer to
// equal than any previous attempt is novel, even if the comparison still fails.
type ComparisonTracker struct {
	mu    sync.Mutex
	best  map[comparisonKey]int
	// favourites records, per site, the operand value that most recently reduced
	// the Hamming distance, for the mutator's favourite-value table (spec §4.4's
	// "per-argument favourite-value table derived from comparison-logging
	// middleware").
	favourites map[comparisonKey]uint256.Int
}

// NewComparisonTracker returns an empty ComparisonTracker.
func NewComparisonTracker() *ComparisonTracker {
	return &ComparisonTracker{
		best:       make(map[comparisonKey]int),
		favourites: make(map[comparisonKey]uint256.Int),
	}
}

// hammingDistance256 counts differing bits between a and b across all four 64-bit
// limbs of a uint256.Int.
func hammingDistance256(a, b *uint256.Int) int {
	dist := 0
	for i := 0; i < 4; i++ {
		dist += bits.OnesCount64(a[i] ^ b[i])
	}
	return dist
}

// Record observes a comparison between a and b at (codeHash, pc), returning true if
// this observation strictly improved (lowered) the best-known Hamming distance for
// that site, and recording b as the new favourite operand for a's "slot" at this
// site, on the theory that whichever operand the mutator controls should be nudged
// toward the value it was compared against.
func (c *ComparisonTracker) Record(codeHash common.Hash, pc uint64, a, b *uint256.Int) bool {
	dist := hammingDistance256(a, b)

	key := comparisonKey{codeHash: codeHash, pc: pc}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.best[key]
	if ok && dist >= prev {
		return false
	}
	c.best[key] = dist
	c.favourites[key] = *b
	return true
}

// Favourite returns the most recently recorded favourite operand for a comparison
// site, and whether one has been recorded at all.
func (c *ComparisonTracker) Favourite(codeHash common.Hash, pc uint64) (uint256.Int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.favourites[comparisonKey{codeHash: codeHash, pc: pc}]
	return v, ok
}

// Favourites returns a snapshot of every recorded favourite value across all
// comparison sites, for seeding the mutator's constants pool (spec §4.5).
func (c *ComparisonTracker) Favourites() []uint256.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint256.Int, 0, len(c.favourites))
	for _, v := range c.favourites {
		out = append(out, v)
	}
	return out
}
