package evm

import (
	"github.com/crytic/medusa-geth/common"
	"golang.org/x/crypto/sha3"
)

// CodeHash hashes code with Keccak-256, exported so middlewares outside this package
// can key per-contract feedback state the same way the CodeTable does.
func CodeHash(code []byte) common.Hash {
	return keccak256Hash(code)
}

// keccak256Hash hashes data with Keccak-256, used for CREATE/CREATE2 address
// derivation and code-hash keys into the shared CodeTable.
func keccak256Hash(data []byte) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out common.Hash
	h.Sum(out[:0])
	return out
}
