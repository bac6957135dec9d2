package evm

import "github.com/pkg/errors"

// VM-internal execution errors (error taxonomy category 1): every one of these is
// folded into a Revert outcome rather than surfaced as a Go error up the call stack,
// since from the fuzzer's perspective OutOfGas and InvalidOpcode carry the same
// negative-feedback signal as an explicit revert.
var (
	ErrOutOfGas       = errors.New("out of gas")
	ErrInvalidOpcode  = errors.New("invalid opcode")
	ErrInvalidJump    = errors.New("invalid jump destination")
	ErrWriteProtection = errors.New("write inside STATICCALL")
	ErrExecutionReverted = errors.New("execution reverted")
)

// ErrSnapshotHashCollision and ErrPausedFrameOrphaned are category-6 (invariant
// internal) errors: they should never happen given a correct state model, and a
// worker encountering one aborts with a diagnostic rather than continuing silently,
// per the taxonomy's policy that only categories 4 and 6 ever surface to the user.
var (
	ErrSnapshotHashCollision = errors.New("distinct VMState content hashed identically")
	ErrPausedFrameOrphaned   = errors.New("paused frame references a state no longer reachable")
)
