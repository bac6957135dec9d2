package evm

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// Frame is one call-depth's worth of live execution state: the code it is running,
// its stack/memory, program counter, remaining gas, and identity (caller/address).
// A Frame is mutated in place as the interpreter steps; callers that need a
// point-in-time copy use its snapshot-producing helpers.
type Frame struct {
	Depth int

	Caller  common.Address
	Address common.Address
	Value   *uint256.Int
	Code    []byte
	Input   []byte

	PC           uint64
	Gas          uint64
	GasLimit     uint64
	Stack        *Stack
	Memory       *Memory
	ReturnData   []byte

	Static bool // true inside a STATICCALL subtree: SSTORE/LOG/CREATE/SELFDESTRUCT all fail.

	// parent links to the frame that CALL'd into this one, nil for the top-level
	// transaction frame. Walked to record the call-context chain when a control
	// leak is captured into a PausedFrame.
	parent *Frame
}

// NewFrame constructs a fresh top-level Frame for a transaction.
func NewFrame(caller, address common.Address, value *uint256.Int, code, input []byte, gas uint64) *Frame {
	return &Frame{
		Caller:  caller,
		Address: address,
		Value:   value,
		Code:    code,
		Input:   input,
		Gas:      gas,
		GasLimit: gas,
		Stack:   NewStack(),
		Memory:  NewMemory(),
	}
}

// TxOutcome summarizes how a full transaction (the root Frame and everything it
// called into) concluded, before translation into vm.ExecOutcome.
type TxOutcome struct {
	Success    bool
	ReturnData []byte
	RevertData []byte
	GasUsed    uint64
	Logs       []Log
	Err        error

	// ControlLeak is set when execution paused rather than concluded; Success/Err
	// are meaningless in that case.
	ControlLeak *ControlLeakInfo
}

// Log is the interpreter's own record of a LOG0..LOG4 emission, with the same fields
// as vm.Log; EVMHost.translate converts each one to a vm.Log.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// ControlLeakInfo carries what the continuation engine (C8) needs to capture a
// PausedFrame when execution calls into attacker-controlled, non-precompile code
// with remaining frames still on the logical call stack.
type ControlLeakInfo struct {
	Target   common.Address
	Calldata []byte
	Value    *uint256.Int
	Frame    *Frame
}
