package state

import (
	"bytes"
	"sort"

	"github.com/crytic/medusa-geth/common"
	"github.com/pkg/errors"
)

// ErrCodeHashUnresolved is returned when an account's CodeHash does not resolve in
// the VMState's CodeTable, violating the state model's invariant (i).
var ErrCodeHashUnresolved = errors.New("account code hash does not resolve in code table")

// VMState is an immutable-by-value, content-hashed snapshot of the full VM world at a
// logical point. States are structurally shared with their parent via path-copy: a
// VMState only stores the accounts it changes relative to its parent (its "overlay"),
// plus an explicit set of accounts deleted relative to the parent (e.g. by
// SELFDESTRUCT). Unmodified sub-trees are never copied.
type VMState struct {
	parent *VMState

	overlay map[common.Address]*Account
	deleted map[common.Address]bool

	codeTable *CodeTable

	flashloan *FlashloanLedger

	block BlockEnv

	// pauseStack holds paused continuations captured by the control-leak engine,
	// ordered oldest-first. Its length never exceeds MaxPauseDepth.
	pauseStack []*PausedFrame

	// selfDestructed tracks addresses that issued SELFDESTRUCT during the sequence
	// that produced this state but have not yet been pruned from the account set.
	// Read through SelfDestructed, which the self-destruct oracle uses to report a
	// destroyed contract.
	selfDestructed map[common.Address]bool

	// nextPauseID allocates PausedFrame.ID values uniquely within this state's pause
	// stack lineage.
	nextPauseID uint64

	cachedHash *Hash
}

// NewGenesisState creates a root VMState with no parent, an empty account set, a
// fresh CodeTable, an empty flashloan ledger, and the given block environment.
func NewGenesisState(block BlockEnv) *VMState {
	return &VMState{
		overlay:        make(map[common.Address]*Account),
		deleted:        make(map[common.Address]bool),
		codeTable:      NewCodeTable(),
		flashloan:      NewFlashloanLedger(),
		block:          block,
		selfDestructed: make(map[common.Address]bool),
	}
}

// extend returns a new VMState whose parent is s, with empty overlays ready to
// receive mutations. This is the only way to produce a new logical snapshot; the
// caller mutates the returned state via SetAccount/DeleteAccount/etc. before it is
// hashed and admitted to the corpus.
func (s *VMState) extend() *VMState {
	return &VMState{
		parent:         s,
		overlay:        make(map[common.Address]*Account),
		deleted:        make(map[common.Address]bool),
		codeTable:      s.codeTable,
		flashloan:      s.flashloan.Clone(),
		block:          s.block.Clone(),
		pauseStack:     clonePauseStack(s.pauseStack),
		selfDestructed: cloneAddrSet(s.selfDestructed),
		nextPauseID:    s.nextPauseID,
	}
}

func clonePauseStack(in []*PausedFrame) []*PausedFrame {
	if len(in) == 0 {
		return nil
	}
	out := make([]*PausedFrame, len(in))
	for i, f := range in {
		out[i] = f.Clone()
	}
	return out
}

func cloneAddrSet(in map[common.Address]bool) map[common.Address]bool {
	out := make(map[common.Address]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Extend returns a new VMState extending s, with the given BlockEnv installed (the
// block environment is typically advanced per the mutator's chosen delay before a
// transaction executes against the new state).
func (s *VMState) Extend(block BlockEnv) *VMState {
	next := s.extend()
	next.block = block
	return next
}

// Parent returns the VMState this one was extended from, or nil for a genesis state.
func (s *VMState) Parent() *VMState {
	return s.parent
}

// Block returns the block environment associated with this snapshot.
func (s *VMState) Block() BlockEnv {
	return s.block
}

// CodeTable returns the shared code table for this snapshot lineage.
func (s *VMState) CodeTable() *CodeTable {
	return s.codeTable
}

// Flashloan returns the flashloan ledger associated with this snapshot.
func (s *VMState) Flashloan() *FlashloanLedger {
	return s.flashloan
}

// GetAccount resolves an account by walking the overlay chain from s up to the
// genesis ancestor. Returns nil if the account has never been touched or has been
// deleted along the path.
func (s *VMState) GetAccount(addr common.Address) *Account {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.deleted[addr] {
			return nil
		}
		if acc, ok := cur.overlay[addr]; ok {
			return acc
		}
	}
	return nil
}

// SetAccount installs a (possibly newly created or modified) account into this
// snapshot's overlay, invalidating any cached hash.
func (s *VMState) SetAccount(acc *Account) {
	delete(s.deleted, acc.Address)
	s.overlay[acc.Address] = acc
	s.cachedHash = nil
}

// DeleteAccount marks an account deleted relative to the parent lineage, used by
// SELFDESTRUCT handling. The address is recorded in selfDestructed for
// SelfDestructed and the self-destruct oracle.
func (s *VMState) DeleteAccount(addr common.Address) {
	s.deleted[addr] = true
	delete(s.overlay, addr)
	s.selfDestructed[addr] = true
	s.cachedHash = nil
}

// SelfDestructed reports whether addr issued SELFDESTRUCT somewhere in this
// snapshot's lineage and has not been superseded by a fresh account at the same
// address since.
func (s *VMState) SelfDestructed(addr common.Address) bool {
	return s.selfDestructed[addr] && s.GetAccount(addr) == nil
}

// Accounts materialises the full set of live accounts visible from this snapshot,
// applying every overlay and deletion from genesis to s. This walks the full lineage
// and is intended for hashing, oracle evaluation, and export to a concrete EVM state
// database — not for the hot per-opcode path.
func (s *VMState) Accounts() map[common.Address]*Account {
	out := make(map[common.Address]*Account)
	deletedAlong := make(map[common.Address]bool)

	var chain []*VMState
	for cur := s; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	// Walk from genesis (end of chain) to s (start), so later overlays win.
	for i := len(chain) - 1; i >= 0; i-- {
		cur := chain[i]
		for addr := range cur.deleted {
			deletedAlong[addr] = true
			delete(out, addr)
		}
		for addr, acc := range cur.overlay {
			delete(deletedAlong, addr)
			out[addr] = acc
		}
	}
	return out
}

// PushPause appends a PausedFrame to this snapshot's pause stack. If the stack is
// already at MaxPauseDepth, the frame is discarded and ok is false, per the
// control-leak engine's bounded-depth invariant.
func (s *VMState) PushPause(frame *PausedFrame) (ok bool) {
	if len(s.pauseStack) >= MaxPauseDepth {
		return false
	}
	s.nextPauseID++
	frame.ID = s.nextPauseID
	frame.ParentStateHash = s.Hash()
	s.pauseStack = append(s.pauseStack, frame)
	s.cachedHash = nil
	return true
}

// PauseStack returns the current stack of paused continuations, oldest first.
func (s *VMState) PauseStack() []*PausedFrame {
	return s.pauseStack
}

// PopPause removes and returns the PausedFrame with the given ID, or nil if not
// found. Resumption of a pause always removes it from the stack: a resumption either
// completes the caller frame or produces a fresh ControlLeak/pause, in neither case
// does the original pause remain live.
func (s *VMState) PopPause(id uint64) *PausedFrame {
	for i, f := range s.pauseStack {
		if f.ID == id {
			s.pauseStack = append(s.pauseStack[:i:i], s.pauseStack[i+1:]...)
			s.cachedHash = nil
			return f
		}
	}
	return nil
}

// ValidateCodeHashes checks invariant (i): every referenced code-hash resolves in the
// code table.
func (s *VMState) ValidateCodeHashes() error {
	for addr, acc := range s.Accounts() {
		if acc.HasCode() {
			if _, ok := s.codeTable.Get(acc.CodeHash); !ok {
				return errors.Wrapf(ErrCodeHashUnresolved, "account %s", addr.Hex())
			}
		}
	}
	return nil
}

// Hash computes (and caches) the content hash of this snapshot. Account order does
// not affect the hash: accounts are visited in sorted-address order, and each
// account's storage is visited in sorted-key order among definitively-known slots
// only (unknown slots contribute nothing, consistent with "absent key == zero if
// known-fetched; otherwise unknown"). The flashloan ledger is normalized before
// hashing so that logically-empty ledgers always hash identically.
func (s *VMState) Hash() Hash {
	if s.cachedHash != nil {
		return *s.cachedHash
	}

	s.flashloan.Normalize()

	accounts := s.Accounts()
	addrs := make([]common.Address, 0, len(accounts))
	for addr := range accounts {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i].Bytes(), addrs[j].Bytes()) < 0 })

	hs := newHasher()
	for _, addr := range addrs {
		acc := accounts[addr]
		hs.writeBytes(addr.Bytes())
		hs.writeUint64(acc.Nonce)
		hs.writeBytes(acc.Balance.Bytes())
		hs.writeBytes(acc.CodeHash.Bytes())

		keys := make([]common.Hash, 0, len(acc.Storage))
		for k, v := range acc.Storage {
			if v.Known {
				keys = append(keys, k)
			}
		}
		sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i].Bytes(), keys[j].Bytes()) < 0 })
		for _, k := range keys {
			hs.writeBytes(k.Bytes())
			hs.writeBytes(acc.Storage[k].Value.Bytes())
		}
	}

	entries := s.flashloan.Entries()
	keys := make([]FlashloanKey, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Token != keys[j].Token {
			return bytes.Compare(keys[i].Token.Bytes(), keys[j].Token.Bytes()) < 0
		}
		return bytes.Compare(keys[i].Holder.Bytes(), keys[j].Holder.Bytes()) < 0
	})
	for _, k := range keys {
		hs.writeBytes(k.Token.Bytes())
		hs.writeBytes(k.Holder.Bytes())
		hs.writeBytes(entries[k].Bytes())
	}

	hs.writeBytes(s.block.Number.Bytes())
	hs.writeUint64(s.block.Timestamp)
	hs.writeBytes(s.block.Coinbase.Bytes())

	for _, p := range s.pauseStack {
		hs.writeUint64(p.ID)
		hs.writeUint64(p.PC)
	}

	h := hs.sum()
	s.cachedHash = &h
	return h
}
