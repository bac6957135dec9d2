// Package state implements the snapshot-based VM state model (accounts, storage,
// the flashloan ledger, and the block environment) that makes transaction sequences
// composable across the fuzzer's corpus and scheduler.
package state

import (
	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
)

// StorageValue represents a single 256-bit storage slot value, along with whether it
// has been definitively resolved. An unresolved slot is distinct from a slot known to
// be zero: the former has never been fetched from an upstream chain (see the onchain
// package), while the latter has been fetched and confirmed empty.
type StorageValue struct {
	// Value is the 256-bit word stored at the slot. It is only meaningful when Known
	// is true.
	Value common.Hash
	// Known indicates whether Value reflects a definitively-fetched/assigned slot.
	// When false, reads of this slot should be treated as "unknown" rather than zero.
	Known bool
}

// Account represents a single account within a VMState: its identity, balance,
// nonce, associated code, and storage. Accounts are treated as immutable once
// attached to a VMState; mutation always produces a new Account via Clone plus field
// updates, consistent with the state package's path-copy snapshot model.
type Account struct {
	// Address is the 20-byte account address.
	Address common.Address
	// Nonce is the account's outgoing transaction count.
	Nonce uint64
	// Balance is the account's native asset balance.
	Balance *uint256.Int
	// CodeHash references the account's code within a VMState's shared CodeTable.
	// An empty hash indicates the account has no code (a plain EOA).
	CodeHash common.Hash
	// Storage holds the slots that have been explicitly assigned or fetched for this
	// account. A slot absent from this map is "unknown" unless KnownZero reports it
	// as definitively fetched-and-empty.
	Storage map[common.Hash]StorageValue
}

// NewAccount creates an empty Account at the given address with a zero balance, zero
// nonce, and no code.
func NewAccount(addr common.Address) *Account {
	return &Account{
		Address: addr,
		Balance: uint256.NewInt(0),
		Storage: make(map[common.Hash]StorageValue),
	}
}

// Clone returns a deep copy of the Account, safe to mutate independently of the
// original. This is the unit of copy-on-write used when a VMState extends a parent
// state with a modified account.
func (a *Account) Clone() *Account {
	clone := &Account{
		Address:  a.Address,
		Nonce:    a.Nonce,
		Balance:  new(uint256.Int).Set(a.Balance),
		CodeHash: a.CodeHash,
		Storage:  make(map[common.Hash]StorageValue, len(a.Storage)),
	}
	for k, v := range a.Storage {
		clone.Storage[k] = v
	}
	return clone
}

// GetStorage returns the value stored at key and whether it is definitively known.
func (a *Account) GetStorage(key common.Hash) (common.Hash, bool) {
	v, ok := a.Storage[key]
	if !ok {
		return common.Hash{}, false
	}
	return v.Value, v.Known
}

// SetStorage assigns a definitively-known value to a storage slot.
func (a *Account) SetStorage(key, value common.Hash) {
	// Canonicalize: a known-zero value is still recorded as known so that it is
	// distinguished from a slot that has simply never been touched.
	a.Storage[key] = StorageValue{Value: value, Known: true}
}

// MarkStorageKnownZero records that a slot was fetched from upstream and found to be
// zero, without assigning a nonzero value.
func (a *Account) MarkStorageKnownZero(key common.Hash) {
	a.Storage[key] = StorageValue{Value: common.Hash{}, Known: true}
}

// HasCode reports whether the account has associated bytecode.
func (a *Account) HasCode() bool {
	return a.CodeHash != (common.Hash{})
}

// CodeTable is a shared, append-only mapping from code hash to bytecode. It is shared
// by reference (one *CodeTable) across all VMState snapshots derived from a common ancestor, since code
// installed on-chain or via deployment never changes for a given hash.
type CodeTable struct {
	code map[common.Hash][]byte
}

// NewCodeTable returns an empty CodeTable.
func NewCodeTable() *CodeTable {
	return &CodeTable{code: make(map[common.Hash][]byte)}
}

// Get returns the bytecode for a given hash, and whether it was found.
func (c *CodeTable) Get(hash common.Hash) ([]byte, bool) {
	b, ok := c.code[hash]
	return b, ok
}

// Install adds bytecode under the given hash if not already present.
func (c *CodeTable) Install(hash common.Hash, code []byte) {
	if _, ok := c.code[hash]; !ok {
		c.code[hash] = code
	}
}

// Clone returns a shallow copy of the CodeTable. Since installed code is never
// mutated in place, a shallow copy of the underlying map is sufficient for
// copy-on-write use: callers that Install new entries on the clone do not affect the
// original.
func (c *CodeTable) Clone() *CodeTable {
	clone := &CodeTable{code: make(map[common.Hash][]byte, len(c.code))}
	for k, v := range c.code {
		clone.code[k] = v
	}
	return clone
}
