package middleware

import (
	"github.com/crytic/medusa-geth/common"

	"github.com/fuzzland/ityfuzz/vm/evm"
)

// precompileCeiling is the highest address considered a precompile (0x01..0x09 on
// mainnet); calls into this range never count as a control-leak boundary since their
// behavior is fixed and known, not attacker-controlled.
const precompileCeiling = 0x09

// Reentrancy flags every CALL/STATICCALL/DELEGATECALL into a non-precompile,
// non-self address as a control-leak boundary for reporting purposes, per spec
// §4.2's reentrancy detector. The pause/resume mechanics themselves live in the
// interpreter and the continuation engine (C8); this middleware only accumulates a
// per-transaction list of boundaries crossed, which the arbitrary-call oracle reads
// (as ExecutionContext.ReentrancyBoundaries) to find call targets taken from calldata.
type Reentrancy struct {
	evm.BaseMiddleware

	boundaries []common.Address
}

// NewReentrancy returns an empty Reentrancy middleware.
func NewReentrancy() *Reentrancy {
	return &Reentrancy{}
}

func (r *Reentrancy) Name() string { return "reentrancy" }

func (r *Reentrancy) OnTxStart(*evm.Frame) {
	r.boundaries = nil
}

func (r *Reentrancy) OnOpcode(ctx *evm.OpContext) {
	if !ctx.Op.IsCall() {
		return
	}
	n := 1 // gas
	target, err := ctx.Stack.Peek(n)
	if err != nil {
		return
	}
	addr := common.BytesToAddress(target.Bytes())
	if isPrecompile(addr) || addr == ctx.Frame.Address {
		return
	}
	r.boundaries = append(r.boundaries, addr)
}

// Boundaries returns every non-precompile, non-self call target observed during the
// current transaction, oldest first.
func (r *Reentrancy) Boundaries() []common.Address {
	return r.boundaries
}

func isPrecompile(addr common.Address) bool {
	for _, b := range addr[:19] {
		if b != 0 {
			return false
		}
	}
	return addr[19] >= 1 && addr[19] <= precompileCeiling
}
