package state

import (
	"math/big"
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func TestVMState_ExtendSharesUnmodifiedAccounts(t *testing.T) {
	genesis := NewGenesisState(DefaultBlockEnv())
	a1 := NewAccount(addr(1))
	a1.Balance = uint256.NewInt(100)
	genesis.SetAccount(a1)

	child := genesis.Extend(genesis.Block().Advance(1, 12))

	// The child never touched addr(1), so GetAccount must resolve it by walking up to
	// genesis rather than requiring it be copied into the child's own overlay.
	got := child.GetAccount(addr(1))
	require.NotNil(t, got)
	assert.Equal(t, uint64(100), got.Balance.Uint64())

	// Mutating via a fresh account on the child must not perturb the parent.
	a1b := got.Clone()
	a1b.Balance = uint256.NewInt(200)
	child.SetAccount(a1b)

	assert.Equal(t, uint64(100), genesis.GetAccount(addr(1)).Balance.Uint64())
	assert.Equal(t, uint64(200), child.GetAccount(addr(1)).Balance.Uint64())
}

func TestVMState_DeleteAccountShadowsParent(t *testing.T) {
	genesis := NewGenesisState(DefaultBlockEnv())
	genesis.SetAccount(NewAccount(addr(7)))

	child := genesis.Extend(genesis.Block())
	child.DeleteAccount(addr(7))

	assert.Nil(t, child.GetAccount(addr(7)))
	assert.True(t, child.SelfDestructed(addr(7)))
	assert.NotNil(t, genesis.GetAccount(addr(7)))
}

func TestVMState_HashIsOrderIndependent(t *testing.T) {
	base := NewGenesisState(DefaultBlockEnv())

	s1 := base.Extend(base.Block())
	acc1 := NewAccount(addr(1))
	acc1.SetStorage(common.Hash{1}, common.Hash{0xaa})
	acc2 := NewAccount(addr(2))
	acc2.SetStorage(common.Hash{2}, common.Hash{0xbb})
	s1.SetAccount(acc1)
	s1.SetAccount(acc2)

	s2 := base.Extend(base.Block())
	// Install in the opposite order; the resulting hash must be identical.
	s2.SetAccount(acc2.Clone())
	s2.SetAccount(acc1.Clone())

	assert.Equal(t, s1.Hash(), s2.Hash())
}

func TestVMState_HashIgnoresUnknownStorage(t *testing.T) {
	base := NewGenesisState(DefaultBlockEnv())
	s := base.Extend(base.Block())

	acc := NewAccount(addr(3))
	acc.Storage[common.Hash{9}] = StorageValue{Value: common.Hash{0xff}, Known: false}
	s.SetAccount(acc)
	hashWithUnknown := s.Hash()

	s2 := base.Extend(base.Block())
	acc2 := NewAccount(addr(3))
	s2.SetAccount(acc2)

	assert.Equal(t, hashWithUnknown, s2.Hash())
}

func TestVMState_HashCacheInvalidatedOnMutation(t *testing.T) {
	s := NewGenesisState(DefaultBlockEnv())
	acc := NewAccount(addr(1))
	s.SetAccount(acc)
	h1 := s.Hash()

	acc2 := acc.Clone()
	acc2.Balance = uint256.NewInt(55)
	s.SetAccount(acc2)
	h2 := s.Hash()

	assert.NotEqual(t, h1, h2)
}

func TestVMState_PushPauseBoundedDepth(t *testing.T) {
	s := NewGenesisState(DefaultBlockEnv())

	for i := 0; i < MaxPauseDepth; i++ {
		ok := s.PushPause(&PausedFrame{PC: uint64(i)})
		require.True(t, ok)
	}
	assert.False(t, s.PushPause(&PausedFrame{PC: 999}))
	assert.Len(t, s.PauseStack(), MaxPauseDepth)
}

func TestVMState_PopPauseRemovesByID(t *testing.T) {
	s := NewGenesisState(DefaultBlockEnv())
	s.PushPause(&PausedFrame{PC: 1})
	s.PushPause(&PausedFrame{PC: 2})

	stack := s.PauseStack()
	require.Len(t, stack, 2)
	id := stack[0].ID

	popped := s.PopPause(id)
	require.NotNil(t, popped)
	assert.Equal(t, uint64(1), popped.PC)
	assert.Len(t, s.PauseStack(), 1)

	assert.Nil(t, s.PopPause(id))
}

func TestVMState_ValidateCodeHashes(t *testing.T) {
	s := NewGenesisState(DefaultBlockEnv())
	acc := NewAccount(addr(1))
	acc.CodeHash = common.Hash{0x01}
	s.SetAccount(acc)

	err := s.ValidateCodeHashes()
	assert.ErrorIs(t, err, ErrCodeHashUnresolved)

	s.CodeTable().Install(common.Hash{0x01}, []byte{0x60, 0x00})
	assert.NoError(t, s.ValidateCodeHashes())
}

func TestFlashloanLedger_ConservationAtCommitBoundary(t *testing.T) {
	l := NewFlashloanLedger()
	token := addr(0xaa)
	holder := addr(0xbb)

	l.Credit(token, holder, big.NewInt(1000))
	violated := l.CheckCommitBoundary()
	assert.Equal(t, []common.Address{token}, violated)
	assert.True(t, l.Violated(token))

	l.Debit(token, holder, big.NewInt(1000))
	l.Normalize()
	assert.Empty(t, l.Entries())
}

func TestFlashloanLedger_BalancedBorrowRepayNeverViolates(t *testing.T) {
	l := NewFlashloanLedger()
	token := addr(0xaa)
	holder := addr(0xbb)

	l.Credit(token, holder, big.NewInt(500))
	l.Debit(token, holder, big.NewInt(500))

	violated := l.CheckCommitBoundary()
	assert.Empty(t, violated)
	assert.False(t, l.Violated(token))
}
