// Package mutation implements the structured input model (EVMInput) and the
// mutation operators that generate new transactions from favourite-value tables,
// constants pools, and prior corpus entries.
package mutation

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// Hint carries an optional structured annotation on an Input that a middleware or
// oracle interprets specially, rather than a freeform calldata field.
type Hint struct {
	// Liquidation marks this call as a heuristically-identified liquidation
	// operation (selector probe matched a known liquidation-shaped signature).
	Liquidation bool

	// FlashloanBorrow, when non-nil, marks this call as an attempt to borrow the
	// given amount of Token via a recognized flashloan-provider selector; the
	// flashloan middleware credits the ledger accordingly rather than requiring the
	// attacker to actually hold the funds.
	FlashloanBorrow *FlashloanHint
}

// FlashloanHint names the token and amount an Input is requesting to borrow.
type FlashloanHint struct {
	Token  common.Address
	Amount *uint256.Int
}

// Resumption identifies a previously paused continuation that an Input resumes,
// rather than starting a fresh call. ReplacementReturnData is fed to the paused
// frame's caller as though the external call it was waiting on had returned it.
type Resumption struct {
	PauseID                uint64
	ReplacementReturnData  []byte
}

// EVMInput is the concrete Input for the EVM capability: either a fresh call
// (Resume == nil) or a resumption of a paused continuation (Resume != nil).
type EVMInput struct {
	Caller   common.Address
	Target   common.Address
	Selector [4]byte
	Args     []byte // ABI-encoded argument vector, post-selector.
	Value    *uint256.Int

	Hint Hint

	Resume *Resumption

	// RepeatCount replays this exact input N times in a row before advancing to the
	// next corpus selection, cheaply amplifying coverage gained from a single
	// interesting input during minimization without re-deriving it from the mutator.
	RepeatCount uint32

	// RandSeed pins the RNG draws used to synthesize any ABI-typed argument value
	// that was generated rather than copied from a favourites table, so an input
	// admitted to the corpus replays identically forever after.
	RandSeed uint64

	// BlockDelayBlocks/BlockDelaySeconds advance the block environment by this
	// amount immediately before this Input executes (see state.BlockEnv.Advance).
	BlockDelayBlocks  uint64
	BlockDelaySeconds uint64
}

// Calldata returns the full ABI call payload: the 4-byte selector followed by Args.
func (in *EVMInput) Calldata() []byte {
	out := make([]byte, 4+len(in.Args))
	copy(out, in.Selector[:])
	copy(out[4:], in.Args)
	return out
}

// IsResumption reports whether this Input resumes a paused continuation rather than
// issuing a fresh call.
func (in *EVMInput) IsResumption() bool {
	return in.Resume != nil
}

// Clone returns a deep copy of the Input, safe to mutate independently (the unit
// mutators operate on, per the corpus's copy-before-mutate discipline).
func (in *EVMInput) Clone() *EVMInput {
	clone := *in
	clone.Args = append([]byte(nil), in.Args...)
	if in.Value != nil {
		clone.Value = new(uint256.Int).Set(in.Value)
	}
	if in.Hint.FlashloanBorrow != nil {
		fb := *in.Hint.FlashloanBorrow
		if in.Hint.FlashloanBorrow.Amount != nil {
			fb.Amount = new(uint256.Int).Set(in.Hint.FlashloanBorrow.Amount)
		}
		clone.Hint.FlashloanBorrow = &fb
	}
	if in.Resume != nil {
		r := *in.Resume
		r.ReplacementReturnData = append([]byte(nil), in.Resume.ReplacementReturnData...)
		clone.Resume = &r
	}
	return &clone
}
