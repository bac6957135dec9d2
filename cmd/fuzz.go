package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/fuzzland/ityfuzz/cmd/exitcodes"
	"github.com/fuzzland/ityfuzz/config"
	"github.com/fuzzland/ityfuzz/fuzzing"
	"github.com/fuzzland/ityfuzz/logging"
	"github.com/fuzzland/ityfuzz/logging/colors"
	"github.com/fuzzland/ityfuzz/logging/formatters"
	"github.com/fuzzland/ityfuzz/utils"
)

// fuzzCmd is a structural parent kept for parity with the VM-agnostic CLI shape
// (`fuzz <vm> ...`); the EVM backend is the only one registered today.
var fuzzCmd = &cobra.Command{
	Use:   "fuzz",
	Short: "Starts a fuzzing campaign against a target VM backend",
	Long:  "Starts a fuzzing campaign against a target VM backend",
}

// fuzzEvmCmd represents `fuzz evm`, the campaign entry point for EVM bytecode targets.
var fuzzEvmCmd = &cobra.Command{
	Use:               "evm",
	Short:             "Starts a fuzzing campaign against EVM bytecode targets",
	Long:              "Starts a fuzzing campaign against EVM bytecode targets",
	Args:              cmdValidateFuzzEvmArgs,
	ValidArgsFunction: cmdValidFuzzEvmArgs,
	RunE:              cmdRunFuzzEvm,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	addFuzzEvmFlags()
	fuzzCmd.AddCommand(fuzzEvmCmd)
	rootCmd.AddCommand(fuzzCmd)
}

// cmdValidFuzzEvmArgs returns the flags available to be used in the current command
// that have not been used yet, for dynamic shell completion.
func cmdValidFuzzEvmArgs(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var unusedFlags []string
	cmd.Flags().VisitAll(func(flag *pflag.Flag) {
		if !flag.Changed {
			unusedFlags = append(unusedFlags, "--"+flag.Name)
		}
	})
	return unusedFlags, cobra.ShellCompDirectiveNoFileComp
}

// cmdValidateFuzzEvmArgs rejects any positional argument; `fuzz evm` takes only flags.
func cmdValidateFuzzEvmArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		err = fmt.Errorf("fuzz evm does not accept any positional arguments, only flags and their associated values")
		cmdLogger.Error("Failed to validate args to the fuzz evm command", err)
		return err
	}
	return nil
}

// cmdRunFuzzEvm executes the CLI `fuzz evm` command:
// #1: search for either a custom config file (via --config) or the default (ityfuzz.json).
// If found, read it; if it can't be read, throw an error.
// #2: if --config was used and the named file can't be found, throw an error.
// #3: if ityfuzz.json can't be found and --config was not used, fall back to built-in defaults.
// Every flag the invocation set is then overlaid on top of whichever base config was loaded.
func cmdRunFuzzEvm(cmd *cobra.Command, args []string) error {
	var projectConfig *config.ProjectConfig

	configFlagUsed := cmd.Flags().Changed("config")
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeConfigError)
	}

	if !configFlagUsed {
		workingDirectory, err := os.Getwd()
		if err != nil {
			return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeConfigError)
		}
		configPath = filepath.Join(workingDirectory, DefaultProjectConfigFilename)
	}

	_, existenceErr := os.Stat(configPath)
	switch {
	case existenceErr == nil:
		cmdLogger.Info("Reading the configuration file at: ", colors.Bold, configPath, colors.Reset)
		projectConfig, err = config.ReadProjectConfigFromFile(configPath)
		if err != nil {
			return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeConfigError)
		}
	case configFlagUsed:
		return exitcodes.NewErrorWithExitCode(existenceErr, exitcodes.ExitCodeConfigError)
	default:
		cmdLogger.Warn(fmt.Sprintf("Unable to find the config file at %v, using the built-in default project configuration instead", configPath))
		projectConfig = config.GetDefaultProjectConfig()
	}

	if err := applyFuzzEvmFlags(cmd, projectConfig); err != nil {
		return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeConfigError)
	}

	logging.GlobalLogger = logging.NewLogger(projectConfig.Logging.Level, projectConfig.Logging.EnableConsoleLogging)
	if projectConfig.Logging.LogDirectory != "" {
		if err := utils.MakeDirectory(projectConfig.Logging.LogDirectory); err != nil {
			return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeConfigError)
		}
		logFile, err := os.Create(filepath.Join(projectConfig.Logging.LogDirectory, "ityfuzz.log"))
		if err != nil {
			return exitcodes.NewErrorWithExitCode(err, exitcodes.ExitCodeConfigError)
		}
		defer logFile.Close()
		logging.GlobalLogger.AddWriter(logFile, logging.STRUCTURED)
	}
	cmdLogger = logging.GlobalLogger.NewSubLogger("module", "cmd")

	fuzzer, fuzzErr := fuzzing.NewFuzzer(projectConfig, engineLogger(projectConfig.Logging))
	if fuzzErr != nil {
		if upstreamErr, ok := fuzzErr.(*fuzzing.UpstreamFetchError); ok {
			return exitcodes.NewErrorWithExitCode(upstreamErr, exitcodes.ExitCodeUpstreamFetchFailure)
		}
		return exitcodes.NewErrorWithExitCode(fuzzErr, exitcodes.ExitCodeConfigError)
	}
	defer fuzzer.Close()

	fuzzer.Events.BugFound.Subscribe(func(event fuzzing.BugFoundEvent) {
		report := fuzzing.FormatBugReport(event.Report)
		cmdLogger.Info(formatters.TestCaseFormatter(nil, report))
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		cmdLogger.Info("Interrupted, stopping...")
		fuzzer.Stop()
		cancel()
	}()

	if startErr := fuzzer.Start(ctx); startErr != nil {
		if bugErr, ok := startErr.(*fuzzing.BugFoundError); ok {
			cmdLogger.Error("Campaign stopped on a reported bug: ", bugErr)
			return exitcodes.NewErrorWithExitCode(bugErr, exitcodes.ExitCodeBugFound)
		}
		if upstreamErr, ok := startErr.(*fuzzing.UpstreamFetchError); ok {
			return exitcodes.NewErrorWithExitCode(upstreamErr, exitcodes.ExitCodeUpstreamFetchFailure)
		}
		return exitcodes.NewErrorWithExitCode(startErr, exitcodes.ExitCodeConfigError)
	}

	cmdLogger.Info("Fuzzing campaign completed: ",
		fmt.Sprintf("%d sequences, %d transactions, %d bugs found",
			fuzzer.Metrics.SequencesTested(), fuzzer.Metrics.TransactionsTested(), fuzzer.Metrics.BugsFound()))

	return nil
}

// engineLogger builds the raw zerolog.Logger the fuzzing engine's packages log
// through (distinct from the colorized logging.Logger the CLI itself uses for
// human-facing progress messages), writing console-formatted output to stdout when
// console logging is enabled and discarding it otherwise; it never writes a log file.
func engineLogger(cfg config.LoggingConfig) zerolog.Logger {
	var writers []io.Writer
	if cfg.EnableConsoleLogging {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout})
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}
	return zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(cfg.Level).With().Timestamp().Logger()
}
