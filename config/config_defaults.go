package config

import (
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// GetDefaultProjectConfig returns a ProjectConfig populated with sane campaign defaults,
// ready to be overridden by a project's JSON configuration file or CLI flags.
func GetDefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		Fuzzing: FuzzingConfig{
			Workers:                10,
			WorkerResetLimit:       10000,
			Timeout:                0,
			TestLimit:              0,
			CallSequenceLength:     100,
			DeploymentOrder:        []string{},
			ConstructorArgs:        map[string]string{},
			MaxBlockNumberDelay:    60 * 60 * 24,
			MaxBlockTimestampDelay: 1,
			BlockGasLimit:          125_000_000,
			TransactionGasLimit:    12_500_000,
			SenderAddresses: []string{
				"0x1111111111111111111111111111111111111111",
				"0x2222222222222222222222222222222222222222",
				"0x3333333333333333333333333333333333333333",
			},
			DeployerAddress: "0x1111111111111111111111111111111111111111",
			Oracles: OracleConfig{
				FlashloanEnabled:              false,
				LiquidationEnabled:            false,
				PriceManipulationEnabled:      false,
				PriceManipulationThresholdBps: 500,
				FundLossThreshold:             decimal.NewFromInt(0),
			},
		},
		Artifact: ArtifactConfig{
			Directory: "",
		},
		Logging: LoggingConfig{
			Level:                zerolog.InfoLevel,
			EnableConsoleLogging: true,
			LogDirectory:         "",
		},
	}
}
