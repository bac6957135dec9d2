package fuzzing

import (
	"testing"

	"github.com/crytic/medusa-geth/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuzzland/ityfuzz/artifact"
	"github.com/fuzzland/ityfuzz/config"
	"github.com/fuzzland/ityfuzz/mutation"
	"github.com/fuzzland/ityfuzz/state"
	"github.com/fuzzland/ityfuzz/vm"
)

// fakeHost is a minimal vm.Host double: Deploy hands back a deterministic address
// derived from a counter, every Execute/Resume call is unused by these tests.
type fakeHost struct {
	nextAddr byte
	deploys  []string // records the code bytes seen, in deployment order
}

func (h *fakeHost) Deploy(s *state.VMState, code []byte, constructorArgs []byte, deployer common.Address, pinned *common.Address) (*state.VMState, common.Address, *vm.DeployFailure) {
	if len(code) == 0 {
		return nil, common.Address{}, &vm.DeployFailure{Kind: vm.FailureCodeInvalid}
	}
	addr := common.Address{}
	if pinned != nil {
		addr = *pinned
	} else {
		h.nextAddr++
		addr[19] = h.nextAddr
	}
	h.deploys = append(h.deploys, string(code))
	return s.Extend(s.Block()), addr, nil
}

func (h *fakeHost) Execute(s *state.VMState, tx *mutation.EVMInput) (*vm.ExecOutcome, error) {
	return &vm.ExecOutcome{Kind: vm.OutcomeSuccess, StateDelta: s}, nil
}

func (h *fakeHost) Resume(s *state.VMState, paused *state.PausedFrame, injectedReturn []byte) (*vm.ExecOutcome, error) {
	return &vm.ExecOutcome{Kind: vm.OutcomeSuccess, StateDelta: s}, nil
}

func genesisForTest() *state.VMState {
	return state.NewGenesisState(state.DefaultBlockEnv())
}

func TestDeploymentOrder_HonorsConfiguredOrderThenAppendsRest(t *testing.T) {
	contracts := []*artifact.Contract{
		{Name: "A", InitBytecode: []byte{0x01}},
		{Name: "B", InitBytecode: []byte{0x02}},
		{Name: "C", InitBytecode: []byte{0x03}},
	}
	cfg := config.FuzzingConfig{DeploymentOrder: []string{"C", "A"}}

	ordered, err := deploymentOrder(contracts, cfg)
	require.NoError(t, err)
	require.Len(t, ordered, 3)
	assert.Equal(t, "C", ordered[0].Name)
	assert.Equal(t, "A", ordered[1].Name)
	assert.Equal(t, "B", ordered[2].Name)
}

func TestDeploymentOrder_UnknownNameErrors(t *testing.T) {
	contracts := []*artifact.Contract{{Name: "A", InitBytecode: []byte{0x01}}}
	cfg := config.FuzzingConfig{DeploymentOrder: []string{"Missing"}}

	_, err := deploymentOrder(contracts, cfg)
	assert.Error(t, err)
}

func TestConstructorArgsFor_DecodesHexBlob(t *testing.T) {
	cfg := config.FuzzingConfig{ConstructorArgs: map[string]string{"A": "0x0102"}}
	args, err := constructorArgsFor("A", cfg)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, args)
}

func TestConstructorArgsFor_AbsentNameReturnsNil(t *testing.T) {
	cfg := config.FuzzingConfig{}
	args, err := constructorArgsFor("A", cfg)
	require.NoError(t, err)
	assert.Nil(t, args)
}

func TestDeployAll_AssignsAddressesAndAdvancesState(t *testing.T) {
	contracts := []*artifact.Contract{
		{Name: "A", InitBytecode: []byte{0x01}},
		{Name: "B", InitBytecode: []byte{0x02}},
	}
	host := &fakeHost{}
	genesis := genesisForTest()

	final, deployed, err := deployAll(host, genesis, contracts, config.FuzzingConfig{}, common.HexToAddress("0xdead"))
	require.NoError(t, err)
	require.Len(t, deployed, 2)
	assert.NotEqual(t, common.Address{}, deployed[0].Address)
	assert.NotEqual(t, deployed[0].Address, deployed[1].Address)
	assert.NotSame(t, genesis, final)
}

func TestDeployAll_PropagatesDeployFailure(t *testing.T) {
	contracts := []*artifact.Contract{{Name: "Empty", InitBytecode: nil}}
	host := &fakeHost{}
	_, _, err := deployAll(host, genesisForTest(), contracts, config.FuzzingConfig{}, common.Address{})
	assert.Error(t, err)
}
