// Package middleware implements the concrete observers wired onto an evm.Bus:
// coverage, comparison logging, dataflow/taint, concolic shadow, flashloan ledger
// updates, reentrancy-boundary flagging, log capture, and the on-chain fetcher.
package middleware

import (
	"github.com/crytic/medusa-geth/common"

	"github.com/fuzzland/ityfuzz/feedback"
	"github.com/fuzzland/ityfuzz/vm/evm"
)

// Coverage updates a shared feedback.CoverageMap with every (pc_from, pc_to)
// transition observed during a transaction, grounded on the teacher's
// coverage_tracer.go OnOpcode hook generalized from a single flat bitmap to the
// feedback package's per-code-hash edge map.
type Coverage struct {
	evm.BaseMiddleware

	shared *feedback.CoverageMap

	codeHash common.Hash
	lastPC   uint64
	started  bool
	novel    bool
}

// NewCoverage returns a Coverage middleware recording into shared.
func NewCoverage(shared *feedback.CoverageMap) *Coverage {
	return &Coverage{shared: shared}
}

func (c *Coverage) Name() string { return "coverage" }

func (c *Coverage) OnTxStart(frame *evm.Frame) {
	c.codeHash = evm.CodeHash(frame.Code)
	c.lastPC = frame.PC
	c.started = false
	c.novel = false
}

func (c *Coverage) OnOpcode(ctx *evm.OpContext) {
	if c.started {
		if c.shared.RecordEdge(c.codeHash, c.lastPC, ctx.PC) {
			c.novel = true
		}
	}
	c.started = true
	c.lastPC = ctx.PC
}

// Novel reports whether this transaction covered any new edge.
func (c *Coverage) Novel() bool {
	return c.novel
}
