package fuzzing

import (
	"strings"
	"testing"

	"github.com/crytic/medusa-geth/accounts/abi"
	"github.com/crytic/medusa-geth/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuzzland/ityfuzz/artifact"
	"github.com/fuzzland/ityfuzz/config"
)

const testTokenABI = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"who","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

func mustParseTestABI(t *testing.T) abi.ABI {
	t.Helper()
	parsed, err := abi.JSON(strings.NewReader(testTokenABI))
	require.NoError(t, err)
	return parsed
}

func TestResolveTargets_ByAddressAndName(t *testing.T) {
	parsedABI := mustParseTestABI(t)
	tokenAddr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	vaultAddr := common.HexToAddress("0x0000000000000000000000000000000000000002")

	deployed := []DeployedContract{
		{Contract: &artifact.Contract{Name: "Token", ABI: parsedABI}, Address: tokenAddr},
		{Contract: &artifact.Contract{Name: "Vault", ABI: parsedABI}, Address: vaultAddr},
	}

	cfg := config.FuzzingConfig{Targets: []string{tokenAddr.Hex() + ",Vault"}}

	selectors, infos, err := resolveTargets(cfg, deployed)
	require.NoError(t, err)
	require.Len(t, infos, 2)

	// Only the non-view "transfer" method is fuzzed per contract, so two
	// resolved contracts yield exactly two selectors.
	assert.Len(t, selectors, 2)
	for _, s := range selectors {
		assert.True(t, s.Target == tokenAddr || s.Target == vaultAddr)
	}
}

func TestResolveTargets_ViewMethodsStillPopulateContractInfo(t *testing.T) {
	parsedABI := mustParseTestABI(t)
	addr := common.HexToAddress("0x0000000000000000000000000000000000000003")
	deployed := []DeployedContract{
		{Contract: &artifact.Contract{Name: "Token", ABI: parsedABI}, Address: addr},
	}
	cfg := config.FuzzingConfig{Targets: []string{"Token"}}

	selectors, infos, err := resolveTargets(cfg, deployed)
	require.NoError(t, err)

	// "transfer" is the only selector fuzzed...
	require.Len(t, selectors, 1)
	assert.Equal(t, "transfer", infos[0].Methods[selectors[0].Selector])

	// ...but "balanceOf" (view) is still present in ContractInfo.Methods for the
	// invariant oracle's probing, even though it was excluded above.
	balanceOf := parsedABI.Methods["balanceOf"]
	var sel [4]byte
	copy(sel[:], balanceOf.ID)
	assert.Equal(t, "balanceOf", infos[0].Methods[sel])
}

func TestResolveTargets_WildcardMatchesEveryDeployedContract(t *testing.T) {
	parsedABI := mustParseTestABI(t)
	deployed := []DeployedContract{
		{Contract: &artifact.Contract{Name: "Token", ABI: parsedABI}, Address: common.HexToAddress("0x01")},
		{Contract: &artifact.Contract{Name: "Vault", ABI: parsedABI}, Address: common.HexToAddress("0x02")},
	}
	cfg := config.FuzzingConfig{Targets: []string{"*"}}

	_, infos, err := resolveTargets(cfg, deployed)
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}

func TestResolveTargets_NoMatchIsAnError(t *testing.T) {
	cfg := config.FuzzingConfig{Targets: []string{"Nonexistent"}}
	_, _, err := resolveTargets(cfg, nil)
	assert.Error(t, err)
}

func TestResolveTargets_DuplicateEntriesDeduplicate(t *testing.T) {
	parsedABI := mustParseTestABI(t)
	addr := common.HexToAddress("0x0000000000000000000000000000000000000001")
	deployed := []DeployedContract{
		{Contract: &artifact.Contract{Name: "Token", ABI: parsedABI}, Address: addr},
	}
	cfg := config.FuzzingConfig{Targets: []string{"Token," + addr.Hex()}}

	_, infos, err := resolveTargets(cfg, deployed)
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}
