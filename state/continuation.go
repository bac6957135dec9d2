package state

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// MaxPauseDepth bounds how many nested PausedFrames a single VMState may carry.
// Deeper control leaks are discarded rather than paused, per the control-leak engine's
// invariant that pause stacks are bounded in depth.
const MaxPauseDepth = 4

// CallContextFrame is one link in the chain of call contexts active when a control
// leak occurred: the caller, callee, and the value/gas that frame was entered with.
// The full chain is required to resume a paused frame because a resumption must
// restore not just the innermost call but every enclosing CALL that is still
// logically "on the stack" inside the EVM.
type CallContextFrame struct {
	Caller common.Address
	Callee common.Address
	Value  *uint256.Int
	Gas    uint64
}

// PausedFrame is an opaque-to-the-scheduler, serialisable-by-value capture of an EVM
// frame at the moment control escaped into attacker-controlled code. It captures
// exactly the information the design notes call out as necessary and sufficient to
// resume the exact EVM frame: program counter, stack image, memory image, remaining
// gas, and the active call context chain. PausedFrame never holds a live pointer into
// the state it was captured from; resumption re-binds it against whatever VMState is
// current at resume time, which is what gives reentrancy its semantics (the resumed
// frame observes every state mutation performed by intervening transactions, exactly
// as an on-chain reentrant call would).
type PausedFrame struct {
	// ID uniquely identifies this pause within its originating VMState's pause stack,
	// used by a resumption Input to pick a specific pause among several.
	ID uint64

	// PC is the program counter immediately after the CALL that leaked control; this
	// is where execution resumes once the injected return data is supplied.
	PC uint64

	// Stack is a value-copy of the EVM operand stack at the point of the leak.
	Stack []uint256.Int

	// Memory is a value-copy of the EVM linear memory at the point of the leak.
	Memory []byte

	// RemainingGas is the gas available to the frame when it leaked control.
	RemainingGas uint64

	// CallContext is the chain of enclosing call frames, innermost last, required to
	// correctly attribute CALLER/ADDRESS/CALLVALUE opcodes after resumption.
	CallContext []CallContextFrame

	// ExternalTarget is the address control leaked into.
	ExternalTarget common.Address

	// ExternalCalldata is the calldata that was about to be delivered to
	// ExternalTarget when the leak was captured.
	ExternalCalldata []byte

	// ExternalValue is the value that was about to be transferred to ExternalTarget.
	ExternalValue *uint256.Int

	// ParentStateHash is the content hash of the VMState this frame was captured
	// from. It is recorded for diagnostics and for the "invariant internal" error
	// category: a resumption that cannot find a live VMState with this hash (because
	// it was pruned) is a hard error, never a silent no-op.
	ParentStateHash Hash
}

// Clone returns a deep copy of the PausedFrame, consistent with the snapshot model's
// by-value semantics.
func (p *PausedFrame) Clone() *PausedFrame {
	clone := *p
	clone.Stack = make([]uint256.Int, len(p.Stack))
	copy(clone.Stack, p.Stack)
	clone.Memory = make([]byte, len(p.Memory))
	copy(clone.Memory, p.Memory)
	clone.CallContext = make([]CallContextFrame, len(p.CallContext))
	copy(clone.CallContext, p.CallContext)
	if p.ExternalValue != nil {
		clone.ExternalValue = new(uint256.Int).Set(p.ExternalValue)
	}
	return &clone
}
