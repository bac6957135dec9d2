package config

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *ProjectConfig {
	c := GetDefaultProjectConfig()
	c.Fuzzing.Targets = []string{"0xdeadbeef00000000000000000000000000dead"}
	c.Artifact.Directory = "artifacts"
	return c
}

func TestValidate_AcceptsDefaultConfigWithTargets(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_RejectsZeroWorkers(t *testing.T) {
	c := validConfig()
	c.Fuzzing.Workers = 0
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsNoTargets(t *testing.T) {
	c := validConfig()
	c.Fuzzing.Targets = nil
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsTransactionGasLimitAboveBlockGasLimit(t *testing.T) {
	c := validConfig()
	c.Fuzzing.TransactionGasLimit = c.Fuzzing.BlockGasLimit + 1
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsMalformedSenderAddress(t *testing.T) {
	c := validConfig()
	c.Fuzzing.SenderAddresses = []string{"not-an-address"}
	assert.Error(t, c.Validate())
}

func TestValidate_RejectsOnchainWithoutChainTag(t *testing.T) {
	c := validConfig()
	c.Fuzzing.Onchain.Enabled = true
	c.Fuzzing.Onchain.ChainTag = ""
	assert.Error(t, c.Validate())
}

func TestValidate_AllowsMissingArtifactDirectoryInOnchainMode(t *testing.T) {
	c := validConfig()
	c.Artifact.Directory = ""
	c.Fuzzing.Onchain.Enabled = true
	c.Fuzzing.Onchain.ChainTag = "mainnet"
	assert.NoError(t, c.Validate())
}

func TestValidate_RejectsMalformedConcolicCaller(t *testing.T) {
	c := validConfig()
	c.Fuzzing.Concolic.CallerAddress = "nope"
	assert.Error(t, c.Validate())
}

func TestWriteToFileThenReadProjectConfigFromFile_RoundTrips(t *testing.T) {
	c := validConfig()
	c.Fuzzing.Workers = 42

	path := filepath.Join(t.TempDir(), "project.json")
	require.NoError(t, c.WriteToFile(path))

	loaded, err := ReadProjectConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 42, loaded.Fuzzing.Workers)
	assert.Equal(t, c.Fuzzing.Targets, loaded.Fuzzing.Targets)
}

func TestReadProjectConfigFromFile_MissingFileReturnsError(t *testing.T) {
	_, err := ReadProjectConfigFromFile(filepath.Join(t.TempDir(), "does-not-exist.json"))
	assert.Error(t, err)
}

// TestDefaultConfigRoundTripsThroughJSON exercises the same marshal/unmarshal path the
// teacher's config format relies on, catching any field whose JSON tag silently breaks
// round-tripping.
func TestDefaultConfigRoundTripsThroughJSON(t *testing.T) {
	original := GetDefaultProjectConfig()

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var roundTripped ProjectConfig
	require.NoError(t, json.Unmarshal(data, &roundTripped))
	assert.Equal(t, original.Fuzzing.Workers, roundTripped.Fuzzing.Workers)
	assert.Equal(t, original.Fuzzing.DeployerAddress, roundTripped.Fuzzing.DeployerAddress)
	assert.Equal(t, original.Logging.Level, roundTripped.Logging.Level)
}
