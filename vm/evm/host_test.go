package evm

import (
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuzzland/ityfuzz/mutation"
	"github.com/fuzzland/ityfuzz/state"
	"github.com/fuzzland/ityfuzz/vm"
)

// storeAndReturnCode implements: sstore(0, 42); return sload(0) as a 32-byte word.
var storeAndReturnCode = []byte{
	byte(PUSH1), 0x2a,
	byte(PUSH1), 0x00,
	byte(SSTORE),
	byte(PUSH1), 0x00,
	byte(SLOAD),
	byte(PUSH1), 0x00,
	byte(MSTORE),
	byte(PUSH1), 0x20,
	byte(PUSH1), 0x00,
	byte(RETURN),
}

func deployTarget(t *testing.T, s *state.VMState, target common.Address, code []byte) *state.VMState {
	t.Helper()
	working := s.Extend(s.Block())
	codeHash := keccak256Hash(code)
	working.CodeTable().Install(codeHash, code)
	acc := state.NewAccount(target)
	acc.CodeHash = codeHash
	working.SetAccount(acc)
	return working
}

func addrN(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

func TestEVMHost_ExecuteSstoreSloadRoundTrip(t *testing.T) {
	host := NewEVMHost(NewBus(), zerolog.Nop())
	genesis := state.NewGenesisState(state.DefaultBlockEnv())
	target := addrN(1)
	s := deployTarget(t, genesis, target, storeAndReturnCode)

	outcome, err := host.Execute(s, &mutation.EVMInput{
		Caller: addrN(0xaa),
		Target: target,
		Value:  uint256.NewInt(0),
	})
	require.NoError(t, err)
	require.Equal(t, vm.OutcomeSuccess, outcome.Kind)

	var expected [32]byte
	expected[31] = 42
	assert.Equal(t, expected[:], outcome.ReturnData)
}

func TestEVMHost_GasAccounting(t *testing.T) {
	host := NewEVMHost(NewBus(), zerolog.Nop())
	genesis := state.NewGenesisState(state.DefaultBlockEnv())
	target := addrN(2)
	s := deployTarget(t, genesis, target, storeAndReturnCode)

	outcome, err := host.Execute(s, &mutation.EVMInput{Caller: addrN(0xaa), Target: target, Value: uint256.NewInt(0)})
	require.NoError(t, err)
	assert.Greater(t, outcome.GasUsed, uint64(0))
	assert.Less(t, outcome.GasUsed, uint64(DefaultGasLimit))
}

func TestEVMHost_ControlLeakOnUnknownTarget(t *testing.T) {
	host := NewEVMHost(NewBus(), zerolog.Nop())
	genesis := state.NewGenesisState(state.DefaultBlockEnv())

	unknown := addrN(0xee)
	// CALL(gas, unknown, 0, 0, 0, 0, 0): pushes outSize,outOffset,inSize,inOffset,
	// value, addr, gas in reverse (stack top = last pushed = gas).
	code := []byte{
		byte(PUSH1), 0x00, // outSize
		byte(PUSH1), 0x00, // outOffset
		byte(PUSH1), 0x00, // inSize
		byte(PUSH1), 0x00, // inOffset
		byte(PUSH1), 0x00, // value
		byte(PUSH1), unknown[19], // addr (low byte only, rest zero — matches addrN)
		byte(PUSH1), 0xff, // gas
		byte(CALL),
		byte(STOP),
	}
	target := addrN(3)
	s := deployTarget(t, genesis, target, code)

	outcome, err := host.Execute(s, &mutation.EVMInput{Caller: addrN(0xaa), Target: target, Value: uint256.NewInt(0)})
	require.NoError(t, err)
	require.Equal(t, vm.OutcomeControlLeak, outcome.Kind)
	assert.Equal(t, unknown, outcome.ExternalTarget)
	require.NotNil(t, outcome.PausedFrame)
}
