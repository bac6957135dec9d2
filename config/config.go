// Package config defines the on-disk, JSON-serialized configuration for a
// fuzzing campaign: worker topology, target selection, persisted-state layout,
// on-chain ingress, and which oracles are active.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/fuzzland/ityfuzz/utils"
)

// ProjectConfig is the root, JSON-serialized configuration for a campaign.
type ProjectConfig struct {
	// Fuzzing describes the configuration used in fuzzing campaigns.
	Fuzzing FuzzingConfig `json:"fuzzing"`

	// Artifact describes where and how offline compiled-contract artifacts are loaded.
	Artifact ArtifactConfig `json:"artifact"`

	// Logging describes the configuration used for logging.
	Logging LoggingConfig `json:"loggingConfig"`
}

// FuzzingConfig describes the configuration options used by the fuzzer.
type FuzzingConfig struct {
	// Workers describes the number of worker goroutines to run the campaign across.
	Workers int `json:"workers"`

	// WorkerResetLimit describes how many call sequences a worker should test before it is
	// destroyed and recreated so memory from its underlying corpus/state is freed.
	WorkerResetLimit int `json:"workerResetLimit"`

	// Timeout describes a time in seconds for which the fuzzing operation should run. A
	// non-positive value means no timeout.
	Timeout int `json:"timeout"`

	// TestLimit describes a threshold for the number of transactions to test, after which
	// the campaign exits. Zero means no limit.
	TestLimit uint64 `json:"testLimit"`

	// CallSequenceLength describes the maximum length a generated transaction sequence can reach.
	CallSequenceLength int `json:"callSequenceLength"`

	// Targets is the glob-or-CSV of target addresses/names (`-t`).
	Targets []string `json:"targets"`

	// DeploymentOrder determines the order in which artifact contracts lacking a pinned
	// address should be deployed.
	DeploymentOrder []string `json:"deploymentOrder"`

	// ConstructorArgs maps a contract name to its raw ABI-encoded constructor argument hex
	// blob (`--constructor-args "Name1:0xHEX1;Name2:0xHEX2"`, already ABI-encoded upstream).
	ConstructorArgs map[string]string `json:"constructorArgs"`

	// DeployerAddress is the account address used to deploy target contracts.
	DeployerAddress string `json:"deployerAddress"`

	// SenderAddresses are the account addresses used to send fuzzed transactions.
	SenderAddresses []string `json:"senderAddresses"`

	// MaxBlockNumberDelay is a configured bound on block-number advances between
	// generated blocks. The fuzzing loop does not read it, so it bounds nothing.
	MaxBlockNumberDelay uint64 `json:"blockNumberDelayMax"`

	// MaxBlockTimestampDelay is a configured bound on timestamp advances between
	// generated blocks. The fuzzing loop does not read it, so it bounds nothing.
	MaxBlockTimestampDelay uint64 `json:"blockTimestampDelayMax"`

	// BlockGasLimit is the maximum gas usable by all transactions in a generated block.
	BlockGasLimit uint64 `json:"blockGasLimit"`

	// TransactionGasLimit is the maximum gas usable by a single generated transaction.
	TransactionGasLimit uint64 `json:"transactionGasLimit"`

	// Onchain describes the on-chain ingress (read-through cache) configuration (`-o`, `-c`, ...).
	Onchain OnchainConfig `json:"onchain"`

	// Oracles describes which oracle kinds are active for this campaign.
	Oracles OracleConfig `json:"oracles"`

	// PanicOnBug halts the worker as soon as a bug is reported (`--panic-on-bug`).
	PanicOnBug bool `json:"panicOnBug"`

	// Concolic describes the concolic-assisted mutation configuration (`--concolic`, `--concolic-caller`).
	Concolic ConcolicConfig `json:"concolic"`

	// ReplayFile is a glob of previously-recorded replayable call sequences to re-run
	// before starting fresh fuzzing (`--replay-file`).
	ReplayFile string `json:"replayFile"`

	// BasePath is the absolute working directory root under which corpus/, bugs/, cache/,
	// and stats.json are persisted (`--base-path`).
	BasePath string `json:"basePath"`
}

// OnchainConfig describes on-chain read-through ingress configuration.
type OnchainConfig struct {
	// Enabled turns on fetching missing code/storage/balance from an upstream node (`-o`).
	Enabled bool `json:"enabled"`

	// ChainTag identifies the target chain, used to namespace the on-disk cache (`-c`).
	ChainTag string `json:"chainTag"`

	// BlockNumber pins the block height reads are made against (`--onchain-block-number`).
	BlockNumber uint64 `json:"blockNumber"`

	// FetchTxData additionally fetches and replays historical transaction data for the
	// target addresses before fuzzing begins (`--fetch-tx-data`).
	FetchTxData bool `json:"fetchTxData"`
}

// OracleConfig describes which oracle kinds are active for a campaign.
type OracleConfig struct {
	// FlashloanEnabled turns on flashloan-ledger tracking and the balance-extraction oracle (`-f`).
	FlashloanEnabled bool `json:"flashloanEnabled"`

	// LiquidationEnabled turns on liquidation-path exploration (`-i`).
	LiquidationEnabled bool `json:"liquidationEnabled"`

	// PriceManipulationEnabled turns on the DEX-pair reserve-ratio oracle (`-p`).
	PriceManipulationEnabled bool `json:"priceManipulationEnabled"`

	// PriceManipulationThresholdBps is the minimum DEX-pair reserve-ratio shift, in
	// basis points, that the price-manipulation oracle reports as a bug
	// (`--price-manipulation-threshold-bps`).
	PriceManipulationThresholdBps int `json:"priceManipulationThresholdBps"`

	// FundLossThreshold is the minimum net gain of an attacker's flashloan-ledger
	// balance, in the token's base units, that the balance-extraction oracle reports
	// as a bug (`--fund-loss-threshold`); zero means any positive net gain qualifies.
	FundLossThreshold decimal.Decimal `json:"fundLossThreshold"`
}

// ConcolicConfig describes concolic-assisted mutation configuration.
type ConcolicConfig struct {
	// Enabled turns on the concolic shadow middleware and SMT-guided mutation (`--concolic`).
	Enabled bool `json:"enabled"`

	// CallerAddress pins the caller address used when generating concolic-derived inputs
	// (`--concolic-caller`).
	CallerAddress string `json:"callerAddress"`
}

// ArtifactConfig describes where offline compiled-contract artifacts are loaded from.
type ArtifactConfig struct {
	// Directory is the path to a directory of `<name>.bin`/`<name>.abi` pairs and/or combined-JSON.
	Directory string `json:"directory"`

	// CompilerConstraint, if non-empty, is a semver constraint (e.g. ">=0.8.0") the
	// combined-JSON's reported compiler version must satisfy.
	CompilerConstraint string `json:"compilerConstraint"`
}

// LoggingConfig describes the configuration options used for logging.
type LoggingConfig struct {
	// Level describes whether logs of certain severity levels will be emitted or discarded.
	Level zerolog.Level `json:"level"`

	// EnableConsoleLogging describes whether console logging is enabled.
	EnableConsoleLogging bool `json:"enableConsoleLogging"`

	// LogDirectory describes the directory where structured log files are written. Empty
	// means no log files are kept.
	LogDirectory string `json:"logDirectory"`
}

// ReadProjectConfigFromFile reads a JSON-serialized ProjectConfig from a provided file path.
func ReadProjectConfigFromFile(path string) (*ProjectConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	projectConfig := GetDefaultProjectConfig()
	if err := json.Unmarshal(b, projectConfig); err != nil {
		return nil, errors.WithStack(err)
	}

	return projectConfig, nil
}

// WriteToFile writes the ProjectConfig to a provided file path in JSON-serialized format.
func (p *ProjectConfig) WriteToFile(path string) error {
	b, err := json.MarshalIndent(p, "", "\t")
	if err != nil {
		return errors.WithStack(err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// Validate validates that the ProjectConfig meets the requirements a campaign needs to start.
// A non-nil error here corresponds to exit code 2, configuration error.
func (p *ProjectConfig) Validate() error {
	if p.Fuzzing.Workers <= 0 {
		return errors.Errorf("fuzzer worker count must be a positive number")
	}
	if p.Fuzzing.CallSequenceLength <= 0 {
		return errors.Errorf("call sequence length must be a positive number")
	}
	if p.Fuzzing.WorkerResetLimit <= 0 {
		return errors.Errorf("worker reset limit must be a positive number")
	}
	if len(p.Fuzzing.Targets) == 0 {
		return errors.Errorf("at least one target must be specified")
	}

	if p.Fuzzing.BlockGasLimit < p.Fuzzing.TransactionGasLimit {
		return errors.Errorf("block gas limit cannot be less than transaction gas limit")
	}
	if p.Fuzzing.BlockGasLimit == 0 || p.Fuzzing.TransactionGasLimit == 0 {
		return errors.Errorf("block and transaction gas limit cannot be zero")
	}

	if _, err := utils.HexStringsToAddresses(p.Fuzzing.SenderAddresses); err != nil {
		return errors.Errorf("malformed sender address(es)")
	}
	if p.Fuzzing.DeployerAddress != "" {
		if _, err := utils.HexStringToAddress(p.Fuzzing.DeployerAddress); err != nil {
			return errors.Errorf("malformed deployer address")
		}
	}

	if p.Fuzzing.Onchain.Enabled && p.Fuzzing.Onchain.ChainTag == "" {
		return errors.Errorf("on-chain mode requires a chain tag")
	}

	if p.Fuzzing.Oracles.PriceManipulationThresholdBps < 0 {
		return errors.Errorf("price manipulation threshold bps cannot be negative")
	}
	if p.Fuzzing.Oracles.FundLossThreshold.IsNegative() {
		return errors.Errorf("fund loss threshold cannot be negative")
	}

	if p.Fuzzing.Concolic.CallerAddress != "" {
		if _, err := utils.HexStringToAddress(p.Fuzzing.Concolic.CallerAddress); err != nil {
			return errors.Errorf("malformed concolic caller address")
		}
	}

	if p.Artifact.Directory == "" && !p.Fuzzing.Onchain.Enabled {
		return errors.Errorf("an artifact directory is required unless running in on-chain-only mode")
	}

	return nil
}
