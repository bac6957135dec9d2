package middleware

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"

	"github.com/fuzzland/ityfuzz/feedback"
	"github.com/fuzzland/ityfuzz/vm/evm"
)

// Comparison records operand pairs at EQ/LT/GT/SUB sites into a shared
// feedback.ComparisonTracker, biasing the mutator's favourite-value table toward
// operands that reduced the Hamming distance to the value they were compared
// against (spec §4.2's comparison-logging middleware, §4.4's favourite-value table).
type Comparison struct {
	evm.BaseMiddleware

	shared   *feedback.ComparisonTracker
	codeHash common.Hash
	novel    bool

	// lastFavourite carries the most recent operand that improved a comparison
	// site's Hamming distance during this transaction, so the orchestrator can feed
	// it to the input scheduler's per-(target,selector) favourite-value table
	// without the mutator needing to know which comparison site produced it.
	lastFavourite *uint256.Int
}

// NewComparison returns a Comparison middleware recording into shared.
func NewComparison(shared *feedback.ComparisonTracker) *Comparison {
	return &Comparison{shared: shared}
}

func (c *Comparison) Name() string { return "comparison" }

func (c *Comparison) OnTxStart(frame *evm.Frame) {
	c.codeHash = evm.CodeHash(frame.Code)
	c.novel = false
	c.lastFavourite = nil
}

func (c *Comparison) OnOpcode(ctx *evm.OpContext) {
	switch ctx.Op {
	case evm.EQ, evm.LT, evm.GT, evm.SUB:
	default:
		return
	}

	b, err := ctx.Stack.Peek(0)
	if err != nil {
		return
	}
	a, err := ctx.Stack.Peek(1)
	if err != nil {
		return
	}

	if c.shared.Record(c.codeHash, ctx.PC, a, b) {
		c.novel = true
		c.lastFavourite = new(uint256.Int).Set(b)
	}
}

// Novel reports whether this transaction made comparison progress at any site.
func (c *Comparison) Novel() bool {
	return c.novel
}

// LastFavourite returns the most recent operand that improved a comparison site's
// Hamming distance during the current transaction, and whether one was recorded.
func (c *Comparison) LastFavourite() (uint256.Int, bool) {
	if c.lastFavourite == nil {
		return uint256.Int{}, false
	}
	return *c.lastFavourite, true
}
