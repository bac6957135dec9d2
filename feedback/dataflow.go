package feedback

import (
	"sync"

	"github.com/crytic/medusa-geth/common"
)

// storageKey identifies a single storage slot within one contract.
type storageKey struct {
	address common.Address
	slot    common.Hash
}

// DataflowTracker records which storage slots have ever been written by a value
// whose taint label traces back to attacker-controlled calldata — the
// "dataflow-novelty" feedback (spec §4.6 feedback 3): a write to a slot that no
// previously-admitted input's tainted dataflow ever reached is novel, independent of
// whether it changed coverage.
type DataflowTracker struct {
	mu           sync.Mutex
	taintedWrites map[storageKey]bool
}

// NewDataflowTracker returns an empty DataflowTracker.
func NewDataflowTracker() *DataflowTracker {
	return &DataflowTracker{taintedWrites: make(map[storageKey]bool)}
}

// RecordTaintedWrite marks that address's slot was written by a calldata-tainted
// value, returning true if this (address, slot) pair had never been reached by a
// tainted write before.
func (d *DataflowTracker) RecordTaintedWrite(address common.Address, slot common.Hash) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := storageKey{address: address, slot: slot}
	if d.taintedWrites[key] {
		return false
	}
	d.taintedWrites[key] = true
	return true
}

// TaintLabel is a per-stack-word annotation propagated by the dataflow/taint
// middleware alongside the raw EVM value: every push of a calldata-derived word
// starts a label, and arithmetic/bitwise ops propagate the union of their operands'
// labels to the result (spec §4.2's dataflow/taint middleware).
type TaintLabel struct {
	// FromCalldataOffset records the lowest calldata byte offset this value's taint
	// traces back to, or -1 if untainted. Multiple tainted ancestors collapse to the
	// lowest offset, which is sufficient for the dataflow-novelty feedback's
	// per-slot granularity (it only needs "tainted or not", not full provenance).
	FromCalldataOffset int
}

// Tainted reports whether the label traces back to attacker calldata.
func (t TaintLabel) Tainted() bool {
	return t.FromCalldataOffset >= 0
}

// Untainted is the zero-information label for a value with no calldata ancestry.
var Untainted = TaintLabel{FromCalldataOffset: -1}

// Merge unions two labels, keeping the lower (earliest) calldata offset if both are
// tainted.
func (t TaintLabel) Merge(other TaintLabel) TaintLabel {
	if !t.Tainted() {
		return other
	}
	if !other.Tainted() {
		return t
	}
	if other.FromCalldataOffset < t.FromCalldataOffset {
		return other
	}
	return t
}
