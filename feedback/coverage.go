// Package feedback implements the three composed feedback signals that drive
// corpus admission under union semantics: edge-coverage novelty, comparison-progress,
// and dataflow-novelty. Feedback is a pure function of (pre-state, input,
// post-outcome) producing a novelty verdict and a score delta; it never itself
// decides retention policy, which is the scheduler's job.
package feedback

import (
	"sync"

	"github.com/crytic/medusa-geth/common"
)

// edgeKey identifies a single control-flow edge within one contract's code.
type edgeKey struct {
	from uint64
	to   uint64
}

// CoverageMap tracks per-(codeHash) edge-hit coverage across the run, grounded on
// the teacher's per-code-hash coverage map keyed by (address, codeHash) pair
// generalized here to codeHash alone since the same bytecode hashes identically
// regardless of which address it is deployed at, and novelty is a property of the
// code, not the address.
type CoverageMap struct {
	mu   sync.Mutex
	hits map[common.Hash]map[edgeKey]bool
}

// NewCoverageMap returns an empty CoverageMap.
func NewCoverageMap() *CoverageMap {
	return &CoverageMap{hits: make(map[common.Hash]map[edgeKey]bool)}
}

// RecordEdge marks the (from, to) program-counter edge as covered for codeHash,
// returning true if this edge had never been seen before (edge-coverage novelty,
// spec §4.6 feedback 1).
func (c *CoverageMap) RecordEdge(codeHash common.Hash, from, to uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	edges, ok := c.hits[codeHash]
	if !ok {
		edges = make(map[edgeKey]bool)
		c.hits[codeHash] = edges
	}
	key := edgeKey{from: from, to: to}
	if edges[key] {
		return false
	}
	edges[key] = true
	return true
}

// EdgeCount returns the total number of distinct edges covered across every
// contract, used for reporting overall progress.
func (c *CoverageMap) EdgeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, edges := range c.hits {
		total += len(edges)
	}
	return total
}

// Merge folds other's coverage into c, returning whether any new edge was admitted.
// This is how per-worker coverage maps (accumulated during one goroutine's batch of
// executions without lock contention) are periodically reconciled into the shared
// map, mirroring the teacher's CoverageMaps.Update merge pattern.
func (c *CoverageMap) Merge(other *CoverageMap) bool {
	other.mu.Lock()
	snapshot := make(map[common.Hash][]edgeKey, len(other.hits))
	for hash, edges := range other.hits {
		keys := make([]edgeKey, 0, len(edges))
		for k := range edges {
			keys = append(keys, k)
		}
		snapshot[hash] = keys
	}
	other.mu.Unlock()

	changed := false
	c.mu.Lock()
	defer c.mu.Unlock()
	for hash, keys := range snapshot {
		edges, ok := c.hits[hash]
		if !ok {
			edges = make(map[edgeKey]bool)
			c.hits[hash] = edges
		}
		for _, k := range keys {
			if !edges[k] {
				edges[k] = true
				changed = true
			}
		}
	}
	return changed
}
