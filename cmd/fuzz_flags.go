package cmd

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/fuzzland/ityfuzz/config"
)

// addFuzzEvmFlags registers every flag `fuzz evm` accepts, against defaults drawn
// from config.GetDefaultProjectConfig so --help text always reflects the actual
// built-in defaults.
func addFuzzEvmFlags() {
	defaultConfig := config.GetDefaultProjectConfig()

	fuzzEvmCmd.Flags().SortFlags = false

	fuzzEvmCmd.Flags().String("config", "", "path to config file")
	fuzzEvmCmd.Flags().String("artifact-dir", "", "directory of offline compiled-contract artifacts to load")
	fuzzEvmCmd.Flags().String("compiler-constraint", "", "semver constraint the artifact directory's reported compiler version must satisfy")
	fuzzEvmCmd.Flags().String("base-path", "", "absolute working directory root under which corpus/, bugs/, and cache/ are persisted")

	fuzzEvmCmd.Flags().StringP("target", "t", "", "glob-or-csv of target contract addresses or artifact names")
	fuzzEvmCmd.Flags().BoolP("onchain", "o", false, "enable on-chain read-through ingress")
	fuzzEvmCmd.Flags().StringP("chain-tag", "c", "", "chain tag identifying the upstream network, used to namespace the on-disk cache")
	fuzzEvmCmd.Flags().Uint64("onchain-block-number", 0, "block height on-chain reads are pinned against")
	fuzzEvmCmd.Flags().Bool("fetch-tx-data", false, "additionally fetch and replay historical transaction data for the target addresses")

	fuzzEvmCmd.Flags().BoolP("flashloan", "f", false, "enable flashloan-ledger tracking and the balance-extraction oracle")
	fuzzEvmCmd.Flags().BoolP("liquidation", "i", false, "enable liquidation-path exploration")
	fuzzEvmCmd.Flags().BoolP("price-manipulation", "p", false, "enable the DEX-pair reserve-ratio oracle")
	fuzzEvmCmd.Flags().Int("price-manipulation-threshold-bps", 0, intFlagUsage("minimum reserve-ratio shift, in basis points, the price-manipulation oracle reports as a bug", defaultConfig.Fuzzing.Oracles.PriceManipulationThresholdBps))
	fuzzEvmCmd.Flags().String("fund-loss-threshold", "", fmt.Sprintf("minimum net attacker gain, in token base units, the balance-extraction oracle reports as a bug (default %s unless a config file is provided)", defaultConfig.Fuzzing.Oracles.FundLossThreshold.String()))
	fuzzEvmCmd.Flags().Bool("panic-on-bug", false, "stop the campaign as soon as any oracle reports a bug")

	fuzzEvmCmd.Flags().String("constructor-args", "", `per-contract constructor argument hex blobs, "Name1:0xHEX1;Name2:0xHEX2"`)

	fuzzEvmCmd.Flags().Bool("concolic", false, "enable the concolic shadow middleware and SMT-guided mutation")
	fuzzEvmCmd.Flags().String("concolic-caller", "", "caller address pinned when generating concolic-derived inputs")

	fuzzEvmCmd.Flags().String("replay-file", "", "glob of previously-recorded replayable call sequences to re-run before fuzzing")

	fuzzEvmCmd.Flags().Int("workers", 0, intFlagUsage("number of fuzzer workers", defaultConfig.Fuzzing.Workers))
	fuzzEvmCmd.Flags().Int("timeout", 0, intFlagUsage("seconds to run the campaign for, 0 means unbounded", defaultConfig.Fuzzing.Timeout))
	fuzzEvmCmd.Flags().Uint64("test-limit", 0, "number of transactions to test before exiting, 0 means unbounded")
	fuzzEvmCmd.Flags().Int("seq-len", 0, intFlagUsage("maximum transactions per generated call sequence", defaultConfig.Fuzzing.CallSequenceLength))
	fuzzEvmCmd.Flags().StringSlice("deployment-order", nil, "order in which to deploy target contracts lacking a pinned address")
	fuzzEvmCmd.Flags().StringSlice("senders", nil, "account address(es) used to send fuzzed transactions")
	fuzzEvmCmd.Flags().String("deployer", "", "account address used to deploy target contracts")
}

func intFlagUsage(desc string, def int) string {
	return fmt.Sprintf("%s (default %d unless a config file is provided)", desc, def)
}

// applyFuzzEvmFlags overlays every flag the caller actually set onto projectConfig,
// leaving untouched fields at whatever the config file (or built-in defaults) left
// them at.
func applyFuzzEvmFlags(cmd *cobra.Command, projectConfig *config.ProjectConfig) error {
	flags := cmd.Flags()

	if flags.Changed("artifact-dir") {
		projectConfig.Artifact.Directory, _ = flags.GetString("artifact-dir")
	}
	if flags.Changed("compiler-constraint") {
		projectConfig.Artifact.CompilerConstraint, _ = flags.GetString("compiler-constraint")
	}
	if flags.Changed("base-path") {
		projectConfig.Fuzzing.BasePath, _ = flags.GetString("base-path")
	}

	if flags.Changed("target") {
		target, _ := flags.GetString("target")
		projectConfig.Fuzzing.Targets = strings.Split(target, ",")
	}
	if flags.Changed("onchain") {
		projectConfig.Fuzzing.Onchain.Enabled, _ = flags.GetBool("onchain")
	}
	if flags.Changed("chain-tag") {
		projectConfig.Fuzzing.Onchain.ChainTag, _ = flags.GetString("chain-tag")
	}
	if flags.Changed("onchain-block-number") {
		projectConfig.Fuzzing.Onchain.BlockNumber, _ = flags.GetUint64("onchain-block-number")
	}
	if flags.Changed("fetch-tx-data") {
		projectConfig.Fuzzing.Onchain.FetchTxData, _ = flags.GetBool("fetch-tx-data")
	}

	if flags.Changed("flashloan") {
		projectConfig.Fuzzing.Oracles.FlashloanEnabled, _ = flags.GetBool("flashloan")
	}
	if flags.Changed("liquidation") {
		projectConfig.Fuzzing.Oracles.LiquidationEnabled, _ = flags.GetBool("liquidation")
	}
	if flags.Changed("price-manipulation") {
		projectConfig.Fuzzing.Oracles.PriceManipulationEnabled, _ = flags.GetBool("price-manipulation")
	}
	if flags.Changed("price-manipulation-threshold-bps") {
		projectConfig.Fuzzing.Oracles.PriceManipulationThresholdBps, _ = flags.GetInt("price-manipulation-threshold-bps")
	}
	if flags.Changed("fund-loss-threshold") {
		raw, _ := flags.GetString("fund-loss-threshold")
		threshold, err := decimal.NewFromString(raw)
		if err != nil {
			return errors.Wrapf(err, "parsing --fund-loss-threshold %q", raw)
		}
		projectConfig.Fuzzing.Oracles.FundLossThreshold = threshold
	}
	if flags.Changed("panic-on-bug") {
		projectConfig.Fuzzing.PanicOnBug, _ = flags.GetBool("panic-on-bug")
	}

	if flags.Changed("constructor-args") {
		raw, _ := flags.GetString("constructor-args")
		parsed, err := parseConstructorArgs(raw)
		if err != nil {
			return err
		}
		if projectConfig.Fuzzing.ConstructorArgs == nil {
			projectConfig.Fuzzing.ConstructorArgs = make(map[string]string)
		}
		for name, blob := range parsed {
			projectConfig.Fuzzing.ConstructorArgs[name] = blob
		}
	}

	if flags.Changed("concolic") {
		projectConfig.Fuzzing.Concolic.Enabled, _ = flags.GetBool("concolic")
	}
	if flags.Changed("concolic-caller") {
		projectConfig.Fuzzing.Concolic.CallerAddress, _ = flags.GetString("concolic-caller")
	}
	if flags.Changed("replay-file") {
		projectConfig.Fuzzing.ReplayFile, _ = flags.GetString("replay-file")
	}

	if flags.Changed("workers") {
		projectConfig.Fuzzing.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("timeout") {
		projectConfig.Fuzzing.Timeout, _ = flags.GetInt("timeout")
	}
	if flags.Changed("test-limit") {
		projectConfig.Fuzzing.TestLimit, _ = flags.GetUint64("test-limit")
	}
	if flags.Changed("seq-len") {
		projectConfig.Fuzzing.CallSequenceLength, _ = flags.GetInt("seq-len")
	}
	if flags.Changed("deployment-order") {
		projectConfig.Fuzzing.DeploymentOrder, _ = flags.GetStringSlice("deployment-order")
	}
	if flags.Changed("senders") {
		projectConfig.Fuzzing.SenderAddresses, _ = flags.GetStringSlice("senders")
	}
	if flags.Changed("deployer") {
		projectConfig.Fuzzing.DeployerAddress, _ = flags.GetString("deployer")
	}

	return nil
}

// parseConstructorArgs decodes the `--constructor-args` flag's "Name1:0xHEX1;Name2:0xHEX2"
// shape into a contract-name -> hex-blob map.
func parseConstructorArgs(raw string) (map[string]string, error) {
	result := make(map[string]string)
	if raw == "" {
		return result, nil
	}
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, blob, ok := strings.Cut(entry, ":")
		if !ok || name == "" {
			return nil, errors.Errorf("malformed --constructor-args entry %q, expected Name:0xHEX", entry)
		}
		result[name] = blob
	}
	return result, nil
}
