package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fuzzland/ityfuzz/logging"
)

var rootCmd = &cobra.Command{
	Use:   "ityfuzz",
	Short: "A hybrid coverage-guided and symbolic-assisted smart contract fuzzer",
	Long:  "ityfuzz drives coverage-guided, concolic-assisted fuzzing campaigns against stack-based bytecode VM targets.",
}

// cmdLogger is the CLI-facing, colorized logger every subcommand uses for
// human-readable progress messages; re-pointed at a campaign-configured logger once
// `fuzz evm` reads the project configuration.
var cmdLogger = logging.GlobalLogger.NewSubLogger("module", "cmd")

// Execute runs the root CLI command, parsing and dispatching to whichever subcommand
// (currently only `fuzz evm`) the invocation named.
func Execute() error {
	return rootCmd.Execute()
}
