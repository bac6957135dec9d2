package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleABI = `[{"type":"function","name":"transfer","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"type":"bool"}]}]`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDirectory_LoadsBinABIPair(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Token.bin", "0x6080604052")
	writeFile(t, dir, "Token.abi", sampleABI)

	contracts, err := LoadDirectory(dir, nil)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, "Token", contracts[0].Name)
	assert.Equal(t, []byte{0x60, 0x80, 0x60, 0x40, 0x52}, contracts[0].InitBytecode)
	assert.Nil(t, contracts[0].PinnedAddress)
}

func TestLoadDirectory_HonorsAddressPin(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Token.bin", "6080")
	writeFile(t, dir, "Token.abi", sampleABI)
	writeFile(t, dir, "Token.address", "0x000000000000000000000000000000000000dEaD")

	contracts, err := LoadDirectory(dir, nil)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	require.NotNil(t, contracts[0].PinnedAddress)
	assert.Equal(t, "0x000000000000000000000000000000000000dEaD", contracts[0].PinnedAddress.Hex())
}

func TestLoadDirectory_LoadsCombinedJSON(t *testing.T) {
	dir := t.TempDir()
	combined := `{
		"contracts": {
			"contracts/Token.sol:Token": {
				"bin": "6080",
				"bin-runtime": "6040",
				"abi": ` + sampleABI + `,
				"srcmap-runtime": "1:2:3"
			}
		},
		"version": "0.8.19+commit.7dd6d404.Linux.g++"
	}`
	writeFile(t, dir, "combined.json", combined)

	contracts, err := LoadDirectory(dir, nil)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, "Token", contracts[0].Name)
	assert.Equal(t, []byte{0x60, 0x40}, contracts[0].RuntimeBytecode)
	assert.Equal(t, "1:2:3", contracts[0].SourceMapRuntime)
}

func TestLoadDirectory_RejectsVersionOutsideConstraint(t *testing.T) {
	dir := t.TempDir()
	combined := `{
		"contracts": {
			"Token": {"bin": "6080", "bin-runtime": "6040", "abi": ` + sampleABI + `}
		},
		"version": "0.7.6+commit.7338295f"
	}`
	writeFile(t, dir, "combined.json", combined)

	constraint, err := semver.NewConstraint(">=0.8.0")
	require.NoError(t, err)

	_, err = LoadDirectory(dir, constraint)
	assert.Error(t, err)
}

func TestLoadDirectory_AcceptsVersionWithinConstraint(t *testing.T) {
	dir := t.TempDir()
	combined := `{
		"contracts": {
			"Token": {"bin": "6080", "bin-runtime": "6040", "abi": ` + sampleABI + `}
		},
		"version": "0.8.19+commit.7dd6d404.Linux.g++"
	}`
	writeFile(t, dir, "combined.json", combined)

	constraint, err := semver.NewConstraint(">=0.8.0")
	require.NoError(t, err)

	contracts, err := LoadDirectory(dir, constraint)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
}

func TestDeploymentBytecode_AppendsConstructorArgs(t *testing.T) {
	c := &Contract{InitBytecode: []byte{0x60, 0x80}}
	out := c.DeploymentBytecode([]byte{0xde, 0xad})
	assert.Equal(t, []byte{0x60, 0x80, 0xde, 0xad}, out)
}
