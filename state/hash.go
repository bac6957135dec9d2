package state

import (
	"encoding/binary"
	"hash"

	"github.com/crytic/medusa-geth/common"
	"golang.org/x/crypto/sha3"
)

// Hash is a content hash identifying a VMState snapshot, used as the scheduler's
// lookup key and for structural deduplication of corpus entries.
type Hash common.Hash

// String returns the hex representation of the hash.
func (h Hash) String() string {
	return common.Hash(h).String()
}

// hasher accumulates a VMState's canonical byte representation. Account order does
// not affect the resulting hash: callers must feed accounts in sorted-by-address
// order, which VMState.Hash (see vmstate.go) guarantees.
type hasher struct {
	h hash.Hash
}

func newHasher() *hasher {
	return &hasher{h: sha3.NewLegacyKeccak256()}
}

func (hs *hasher) writeBytes(b []byte) {
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(b)))
	hs.h.Write(lenBuf[:])
	hs.h.Write(b)
}

func (hs *hasher) writeUint64(v uint64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	hs.h.Write(buf[:])
}

func (hs *hasher) sum() Hash {
	var out Hash
	hs.h.Sum(out[:0])
	return out
}
