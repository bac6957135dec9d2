package oracle

import (
	"math/big"
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuzzland/ityfuzz/mutation"
	"github.com/fuzzland/ityfuzz/state"
	"github.com/fuzzland/ityfuzz/vm"
)

func freshState() *state.VMState {
	block := state.DefaultBlockEnv()
	return state.NewGenesisState(block).Extend(block)
}

func TestOracleSet_ExaminesEveryRegisteredOracle(t *testing.T) {
	s := freshState()
	target := common.HexToAddress("0xbeef")

	set := NewOracleSet(NewBugTopicOracle(), NewSelfDestructedOracle())
	ctx := &ExecutionContext{
		PostState: s,
		Logs: []vm.Log{
			{Address: target, Topics: []common.Hash{common.HexToHash("0xb42604cb105a16c8f6db8a41e6b00c0c1b4826465e8bc504b3eb3e88b3e6a4a0")}},
		},
	}
	reports := set.Examine(ctx)
	require.Len(t, reports, 1)
	assert.Equal(t, KindBugTopic, reports[0].Kind)
}

func TestBugTopicOracle_IgnoresNonSentinelTopics(t *testing.T) {
	o := NewBugTopicOracle()
	ctx := &ExecutionContext{
		PostState: freshState(),
		Logs: []vm.Log{
			{Address: common.HexToAddress("0x1"), Topics: []common.Hash{common.HexToHash("0x1234")}},
		},
	}
	assert.Empty(t, o.Examine(ctx))
}

func TestBugTopicOracle_FlagsSolidityPanicRevert(t *testing.T) {
	o := NewBugTopicOracle()
	target := common.HexToAddress("0x2")
	revertData := append([]byte{0x4e, 0x48, 0x7b, 0x71}, make([]byte, 31)...)
	revertData = append(revertData, 0x01) // assert-failed panic code

	ctx := &ExecutionContext{
		PostState:     freshState(),
		RevertReasons: map[common.Address][][]byte{target: {revertData}},
	}
	reports := o.Examine(ctx)
	require.Len(t, reports, 1)
	assert.Equal(t, KindBugTopic, reports[0].Kind)
	assert.Equal(t, target, reports[0].Target)
}

func TestBugTopicOracle_IgnoresNonPanicRevert(t *testing.T) {
	o := NewBugTopicOracle()
	ctx := &ExecutionContext{
		PostState:     freshState(),
		RevertReasons: map[common.Address][][]byte{common.HexToAddress("0x2"): {[]byte("insufficient balance")}},
	}
	assert.Empty(t, o.Examine(ctx))
}

func TestBalanceExtractionOracle_FlagsGainAboveThreshold(t *testing.T) {
	s := freshState()
	attacker := common.HexToAddress("0xa11ce")
	token := common.HexToAddress("0xf00d")
	s.Flashloan().Credit(token, attacker, big.NewInt(1000))

	o := NewBalanceExtractionOracle(decimal.NewFromInt(500))
	ctx := &ExecutionContext{PostState: s, Attackers: []common.Address{attacker}}

	reports := o.Examine(ctx)
	require.Len(t, reports, 1)
	assert.Equal(t, KindBalanceExtraction, reports[0].Kind)
	assert.Equal(t, attacker, reports[0].Target)
}

func TestBalanceExtractionOracle_IgnoresGainBelowThreshold(t *testing.T) {
	s := freshState()
	attacker := common.HexToAddress("0xa11ce")
	token := common.HexToAddress("0xf00d")
	s.Flashloan().Credit(token, attacker, big.NewInt(10))

	o := NewBalanceExtractionOracle(decimal.NewFromInt(500))
	ctx := &ExecutionContext{PostState: s, Attackers: []common.Address{attacker}}
	assert.Empty(t, o.Examine(ctx))
}

func TestPriceManipulationOracle_FlagsRatioShiftPastThreshold(t *testing.T) {
	pair := ContractInfo{
		Address: common.HexToAddress("0xdead"),
		Name:    "Pair",
		Methods: map[[4]byte]string{
			selectorToken0:      "token0",
			selectorGetReserves: "getReserves",
		},
	}
	o := NewPriceManipulationOracle(decimal.NewFromFloat(0.2))
	ctx := &ExecutionContext{
		Contracts: []ContractInfo{pair},
		ReserveProbe: func(addr common.Address) (*big.Int, *big.Int, bool) {
			return big.NewInt(300), big.NewInt(100), true // ratio now 3
		},
		BaselineReserves: map[common.Address][2]*big.Int{
			pair.Address: {big.NewInt(100), big.NewInt(100)}, // baseline ratio 1
		},
	}
	reports := o.Examine(ctx)
	require.Len(t, reports, 1)
	assert.Equal(t, KindPriceManipulation, reports[0].Kind)
}

func TestPriceManipulationOracle_IgnoresNonPairContracts(t *testing.T) {
	o := NewPriceManipulationOracle(decimal.NewFromFloat(0.2))
	ctx := &ExecutionContext{
		Contracts: []ContractInfo{{Address: common.HexToAddress("0x1"), Methods: map[[4]byte]string{}}},
		ReserveProbe: func(common.Address) (*big.Int, *big.Int, bool) {
			return nil, nil, false
		},
	}
	assert.Empty(t, o.Examine(ctx))
}

func TestArbitraryCallOracle_FlagsUnknownTargetFromCalldata(t *testing.T) {
	target := common.HexToAddress("0xcafe")
	args := make([]byte, 32)
	copy(args[12:], target.Bytes())

	o := NewArbitraryCallOracle()
	ctx := &ExecutionContext{
		Sequence:             []*mutation.EVMInput{{Args: args}},
		ReentrancyBoundaries: []common.Address{target},
	}
	reports := o.Examine(ctx)
	require.Len(t, reports, 1)
	assert.Equal(t, target, reports[0].Target)
}

func TestArbitraryCallOracle_IgnoresKnownContracts(t *testing.T) {
	target := common.HexToAddress("0xcafe")
	args := make([]byte, 32)
	copy(args[12:], target.Bytes())

	o := NewArbitraryCallOracle()
	ctx := &ExecutionContext{
		Sequence:             []*mutation.EVMInput{{Args: args}},
		ReentrancyBoundaries: []common.Address{target},
		Contracts:            []ContractInfo{{Address: target}},
	}
	assert.Empty(t, o.Examine(ctx))
}

func TestReentrancyOracle_RequiresResumptionAndViolation(t *testing.T) {
	s := freshState()
	token := common.HexToAddress("0xf00d")
	s.Flashloan().Credit(token, common.HexToAddress("0xa11ce"), big.NewInt(5))
	s.Flashloan().CheckCommitBoundary()

	o := NewReentrancyOracle()

	noResumeCtx := &ExecutionContext{
		PostState: s,
		Sequence:  []*mutation.EVMInput{{}},
	}
	assert.Empty(t, o.Examine(noResumeCtx))

	resumedCtx := &ExecutionContext{
		PostState: s,
		Sequence:  []*mutation.EVMInput{{Resume: &mutation.Resumption{PauseID: 1}}},
	}
	reports := o.Examine(resumedCtx)
	require.Len(t, reports, 1)
	assert.Equal(t, KindReentrancy, reports[0].Kind)
	assert.Equal(t, token, reports[0].Target)
}

func TestSelfDestructedOracle_FlagsWatchedDestroyedContract(t *testing.T) {
	s := freshState()
	addr := common.HexToAddress("0xdead")
	s.SetAccount(state.NewAccount(addr))
	s.DeleteAccount(addr)

	o := NewSelfDestructedOracle(ContractInfo{Address: addr, Name: "Vault"})
	ctx := &ExecutionContext{PostState: s}
	reports := o.Examine(ctx)
	require.Len(t, reports, 1)
	assert.Equal(t, KindSelfDestructed, reports[0].Kind)
}

func TestSelfDestructedOracle_IgnoresLiveContract(t *testing.T) {
	s := freshState()
	addr := common.HexToAddress("0xdead")
	s.SetAccount(state.NewAccount(addr))

	o := NewSelfDestructedOracle(ContractInfo{Address: addr, Name: "Vault"})
	ctx := &ExecutionContext{PostState: s}
	assert.Empty(t, o.Examine(ctx))
}

func TestStateComparisonOracle_InvokesComparatorAndReportsViolation(t *testing.T) {
	pre := freshState()
	post := freshState()

	o := NewStateComparisonOracle("total_supply_conserved", func(pre, post *state.VMState) (bool, string) {
		return true, "total supply changed unexpectedly"
	})
	ctx := &ExecutionContext{PreState: pre, PostState: post}
	reports := o.Examine(ctx)
	require.Len(t, reports, 1)
	assert.Equal(t, KindStateComparison, reports[0].Kind)
	assert.Equal(t, "total_supply_conserved", o.Name())
}

func TestStateComparisonOracle_NoReportWhenNotViolated(t *testing.T) {
	pre := freshState()
	post := freshState()
	o := NewStateComparisonOracle("always_ok", func(pre, post *state.VMState) (bool, string) {
		return false, ""
	})
	ctx := &ExecutionContext{PreState: pre, PostState: post}
	assert.Empty(t, o.Examine(ctx))
}

func TestInvariantOracle_FlagsFalsePredicate(t *testing.T) {
	selector := [4]byte{0x11, 0x22, 0x33, 0x44}
	contract := ContractInfo{
		Address: common.HexToAddress("0x1"),
		Name:    "Target",
		Methods: map[[4]byte]string{selector: "invariant_balanceHeld"},
	}
	o := NewInvariantOracle()
	ctx := &ExecutionContext{
		Contracts: []ContractInfo{contract},
		InvariantProbe: func(addr common.Address, sel [4]byte) (bool, bool) {
			return false, true
		},
	}
	reports := o.Examine(ctx)
	require.Len(t, reports, 1)
	assert.Equal(t, KindInvariantBroken, reports[0].Kind)
}

func TestInvariantOracle_IgnoresNonInvariantMethods(t *testing.T) {
	selector := [4]byte{0x11, 0x22, 0x33, 0x44}
	contract := ContractInfo{
		Address: common.HexToAddress("0x1"),
		Methods: map[[4]byte]string{selector: "transfer"},
	}
	o := NewInvariantOracle()
	ctx := &ExecutionContext{
		Contracts: []ContractInfo{contract},
		InvariantProbe: func(common.Address, [4]byte) (bool, bool) {
			return false, true
		},
	}
	assert.Empty(t, o.Examine(ctx))
}
