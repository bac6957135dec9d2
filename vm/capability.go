// Package vm defines the VM-agnostic capability interface that the fuzzing engine
// drives: deploy, execute, and resume. Concrete backends (the EVM host in vm/evm, and
// potentially a Move-style object VM) implement Host; the engine itself never
// branches on which backend it is talking to.
package vm

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/fuzzland/ityfuzz/mutation"
	"github.com/fuzzland/ityfuzz/state"
)

// FailureKind enumerates the ways a deployment can fail.
type FailureKind int

const (
	// FailureOutOfGas indicates the deployment ran out of gas.
	FailureOutOfGas FailureKind = iota
	// FailureRevert indicates the constructor explicitly reverted.
	FailureRevert
	// FailureCodeInvalid indicates the supplied bytecode could not be installed
	// (e.g. it is empty, or exceeds the contract size limit).
	FailureCodeInvalid
)

// DeployFailure describes why a deployment did not produce a contract.
type DeployFailure struct {
	Kind FailureKind
	// Data carries revert data when Kind == FailureRevert.
	Data []byte
}

func (f *DeployFailure) Error() string {
	switch f.Kind {
	case FailureOutOfGas:
		return "deployment ran out of gas"
	case FailureRevert:
		return "deployment reverted"
	case FailureCodeInvalid:
		return "deployment bytecode invalid"
	default:
		return "deployment failed"
	}
}

// OutcomeKind tags the variant carried by an ExecOutcome.
type OutcomeKind int

const (
	// OutcomeSuccess indicates the call returned normally.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRevert indicates the call reverted (including OutOfGas/InvalidOpcode,
	// which are folded into Revert per the error taxonomy in §7).
	OutcomeRevert
	// OutcomeControlLeak indicates execution paused because control escaped into
	// attacker-controlled code; see the control-leak engine (C8).
	OutcomeControlLeak
)

// ExecOutcome is the tagged union returned by Execute and Resume. Exactly one of the
// Success/Revert/ControlLeak-shaped field groups is meaningful, selected by Kind.
type ExecOutcome struct {
	Kind OutcomeKind

	// --- OutcomeSuccess fields ---
	ReturnData  []byte
	Logs        []Log
	StateDelta  *state.VMState

	// --- OutcomeRevert fields ---
	RevertReason []byte

	// --- OutcomeControlLeak fields ---
	PausedFrame      *state.PausedFrame
	ExternalTarget   common.Address
	ExternalCalldata []byte
	ExternalValue    *common.Hash // encoded as 32 bytes; nil means zero

	// GasUsed is populated for Success and Revert outcomes. A ControlLeak outcome,
	// and the Revert returned when the pause stack is full, leave it zero.
	GasUsed uint64
}

// Log represents a single LOG0..LOG4 emission captured during execution, sufficient
// for the oracle set's sentinel bug-topic detection and for general event surfacing.
type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
}

// Host is the uniform capability interface the fuzzing engine drives over any
// stack-based bytecode VM. Implementations must be deterministic: identical (state,
// tx) must always produce an identical outcome, with no hidden global state — every
// piece of context an implementation needs (block environment, chain id, and so on)
// is read from the supplied VMState.
type Host interface {
	// Deploy installs code at a fresh or pinned address, running constructor_args
	// against it. Returns the state delta and deployed address on success, or a
	// DeployFailure.
	Deploy(s *state.VMState, code []byte, constructorArgs []byte, deployer common.Address, pinnedAddress *common.Address) (*state.VMState, common.Address, *DeployFailure)

	// Execute applies a transaction (fresh call or resumption, see mutation.EVMInput)
	// to a VMState and returns the resulting ExecOutcome.
	Execute(s *state.VMState, tx *mutation.EVMInput) (*ExecOutcome, error)

	// Resume continues a previously paused frame, feeding it injectedReturn as the
	// return data for the call that had leaked control.
	Resume(s *state.VMState, paused *state.PausedFrame, injectedReturn []byte) (*ExecOutcome, error)
}
