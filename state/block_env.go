package state

import (
	"math/big"

	"github.com/crytic/medusa-geth/common"
)

// BlockEnv captures the block-level context visible to a transaction: number,
// timestamp, coinbase, base fee, chain id, and prevrandao. Every VMState snapshot
// carries its own BlockEnv rather than reading from a process-global singleton, which
// is what makes deterministic replay trivial and concurrent workers independent (see
// the corresponding design note).
type BlockEnv struct {
	Number     *big.Int
	Timestamp  uint64
	Coinbase   common.Address
	BaseFee    *big.Int
	ChainID    *big.Int
	PrevRandao common.Hash
}

// DefaultBlockEnv returns a BlockEnv with reasonable defaults for a freshly deployed
// chain at block 1.
func DefaultBlockEnv() BlockEnv {
	return BlockEnv{
		Number:    big.NewInt(1),
		Timestamp: 1,
		BaseFee:   big.NewInt(1_000_000_000),
		ChainID:   big.NewInt(1),
	}
}

// Clone returns a deep copy of the BlockEnv.
func (b BlockEnv) Clone() BlockEnv {
	clone := b
	if b.Number != nil {
		clone.Number = new(big.Int).Set(b.Number)
	}
	if b.BaseFee != nil {
		clone.BaseFee = new(big.Int).Set(b.BaseFee)
	}
	if b.ChainID != nil {
		clone.ChainID = new(big.Int).Set(b.ChainID)
	}
	return clone
}

// Advance returns a copy of the BlockEnv moved forward by the given number of blocks
// and seconds, applied for an input whose BlockDelayBlocks/BlockDelaySeconds are
// set. It places no upper bound on either amount.
func (b BlockEnv) Advance(blocks, seconds uint64) BlockEnv {
	next := b.Clone()
	next.Number = new(big.Int).Add(next.Number, new(big.Int).SetUint64(blocks))
	next.Timestamp += seconds
	return next
}
