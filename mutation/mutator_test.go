package mutation

import (
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuzzland/ityfuzz/state"
)

type fakeCorpus struct {
	bySelector map[[4]byte][]*EVMInput
}

func (c *fakeCorpus) SameSelector(selector [4]byte) []*EVMInput {
	return c.bySelector[selector]
}

func baseInput() *EVMInput {
	return &EVMInput{
		Caller:   common.HexToAddress("0x1"),
		Target:   common.HexToAddress("0x2"),
		Selector: [4]byte{0xde, 0xad, 0xbe, 0xef},
		Args:     make([]byte, 64),
		Value:    uint256.NewInt(0),
	}
}

func TestMutator_BitByteFlipChangesArgs(t *testing.T) {
	m := NewMutator(1, NewConstantsPool(), nil)
	in := baseInput()
	ok := m.bitByteFlip(in)
	require.True(t, ok)
	assert.NotEqual(t, make([]byte, 64), in.Args)
}

func TestMutator_ConstantsPoolWritesFullWord(t *testing.T) {
	pool := NewConstantsPool()
	pool.AddWord(*uint256.NewInt(424242))
	m := NewMutator(2, pool, nil)
	in := baseInput()
	ok := m.constantsPool(in, nil)
	require.True(t, ok)

	var v uint256.Int
	v.SetBytes(in.Args[0:32])
	found := false
	for _, w := range pool.Words() {
		if w == v {
			found = true
		}
	}
	assert.True(t, found, "written word should come from the pool")
}

func TestMutator_SpliceCalldataRequiresSibling(t *testing.T) {
	m := NewMutator(3, NewConstantsPool(), nil)
	in := baseInput()

	ok := m.spliceCalldata(in, &fakeCorpus{})
	assert.False(t, ok, "no siblings means no splice")

	sibling := baseInput()
	sibling.Args = []byte{1, 2, 3, 4, 5, 6, 7, 8}
	corpus := &fakeCorpus{bySelector: map[[4]byte][]*EVMInput{in.Selector: {sibling}}}
	ok = m.spliceCalldata(in, corpus)
	assert.True(t, ok)
}

func TestMutator_CallerSwapPicksDifferentAttacker(t *testing.T) {
	attackers := []common.Address{common.HexToAddress("0xa1"), common.HexToAddress("0xa2")}
	m := NewMutator(4, NewConstantsPool(), attackers)
	in := baseInput()
	in.Caller = attackers[0]

	ok := m.callerSwap(in)
	require.True(t, ok)
	assert.Contains(t, attackers, in.Caller)
}

func TestMutator_FlashloanToggleIsIdempotentPair(t *testing.T) {
	pool := NewConstantsPool()
	pool.AddAddress(common.HexToAddress("0xtoken"))
	m := NewMutator(5, pool, nil)
	in := baseInput()

	ok := m.flashloanToggle(in)
	require.True(t, ok)
	require.NotNil(t, in.Hint.FlashloanBorrow)

	ok = m.flashloanToggle(in)
	require.True(t, ok)
	assert.Nil(t, in.Hint.FlashloanBorrow)
}

func TestMutator_ResumeConversionRequiresCompatiblePause(t *testing.T) {
	m := NewMutator(6, NewConstantsPool(), nil)
	in := baseInput()

	ok := m.resumeConversion(in, nil)
	assert.False(t, ok)

	pause := &state.PausedFrame{ID: 7}
	ok = m.resumeConversion(in, []*state.PausedFrame{pause})
	require.True(t, ok)
	assert.Equal(t, uint64(7), in.Resume.PauseID)
	assert.Len(t, in.Resume.ReplacementReturnData, 32)
}

func TestMutator_MutateSequenceInsertsPrecedingTx(t *testing.T) {
	m := NewMutator(8, NewConstantsPool(), nil)
	tail := []*EVMInput{baseInput()}

	seq := m.MutateSequence(tail, nil, nil, nil)
	require.Len(t, seq, 2)
	assert.Nil(t, seq[0].Resume)
	assert.Same(t, tail[0], seq[1])
}

func TestMutator_MutateSequenceRespectsMaxDepth(t *testing.T) {
	m := NewMutator(9, NewConstantsPool(), nil)
	m.MaxSequenceDepth = 1
	tail := []*EVMInput{baseInput()}

	seq := m.MutateSequence(tail, nil, nil, nil)
	assert.Len(t, seq, 1, "already at max depth; no insertion")
}

func TestConstantsPool_HarvestBytecodeRecordsPushImmediates(t *testing.T) {
	pool := NewConstantsPool()
	// PUSH1 0x2a (42), STOP
	code := []byte{0x60, 0x2a, 0x00}
	pool.HarvestBytecode(code)

	var want uint256.Int
	want.SetUint64(42)
	found := false
	for _, w := range pool.Words() {
		if w == want {
			found = true
		}
	}
	assert.True(t, found)
}
