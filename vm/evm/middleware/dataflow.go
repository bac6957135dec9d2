package middleware

import (
	"github.com/fuzzland/ityfuzz/feedback"
	"github.com/fuzzland/ityfuzz/vm/evm"

	"github.com/crytic/medusa-geth/common"
)

// Dataflow approximates calldata taint propagation: once a transaction has executed
// a CALLDATALOAD or CALLDATASIZE, every SSTORE it performs for the remainder of the call is treated
// as potentially calldata-influenced and reported to a shared
// feedback.DataflowTracker (spec §4.2's dataflow/taint middleware, feedback 3 in
// §4.6). This is a coarser approximation than full per-word label propagation
// through arithmetic (which would require threading a label alongside every stack
// word); it is sufficient for the novelty signal the feedback pipeline needs, which
// only cares whether a write was reachable from tainted input at all.
type Dataflow struct {
	evm.BaseMiddleware

	shared  *feedback.DataflowTracker
	tainted bool
	novel   bool
}

// NewDataflow returns a Dataflow middleware recording into shared.
func NewDataflow(shared *feedback.DataflowTracker) *Dataflow {
	return &Dataflow{shared: shared}
}

func (d *Dataflow) Name() string { return "dataflow" }

func (d *Dataflow) OnTxStart(*evm.Frame) {
	d.tainted = false
	d.novel = false
}

func (d *Dataflow) OnOpcode(ctx *evm.OpContext) {
	switch ctx.Op {
	case evm.CALLDATALOAD, evm.CALLDATASIZE:
		d.tainted = true
	case evm.SSTORE:
		if !d.tainted {
			return
		}
		key, err := ctx.Stack.Peek(0)
		if err != nil {
			return
		}
		slot := common.Hash(key.Bytes32())
		if d.shared.RecordTaintedWrite(ctx.Frame.Address, slot) {
			d.novel = true
		}
	}
}

// Novel reports whether this transaction reached a previously-unreached tainted
// write.
func (d *Dataflow) Novel() bool {
	return d.novel
}
