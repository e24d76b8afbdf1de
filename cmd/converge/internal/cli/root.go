// Package cli implements the converge command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/log"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// globalFlags holds persistent flags that apply to all commands
var globalFlags struct {
	verbosity   int
	logFormat   string
	root        string
	noColor     bool
	noLock      bool
	testTimeout time.Duration
}

// rootFlags select the single-shot modes of the bare command.
var rootFlags struct {
	status   bool
	history  bool
	snapshot bool
}

// errReported is returned when the failure was already printed; Execute
// only sets the exit status for it.
var errReported = errors.New("failed")

// rootCmd runs one convergence cycle when called without subcommands
var rootCmd = &cobra.Command{
	Use:   "converge",
	Short: "Versioned convergence and release engine",
	Long: `Converge advances a source tree by one version per run.

Each cycle increments the version, records what changed in CHANGELOG.md,
rebuilds MANIFEST.json, snapshots the tree under VERSIONS/, runs the smoke
gate, enforces the size budget and packages a release when enough changed.

Without flags a single cycle runs; the exit status is 0 only when the cycle
completed and the smoke gate passed.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "converge %s (%s)\n", Version, GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	rootCmd.Flags().BoolVar(&rootFlags.status, "status", false,
		"Show engine status and exit")
	rootCmd.Flags().BoolVar(&rootFlags.history, "history", false,
		"Show the 10 most recent changelog entries and exit")
	rootCmd.Flags().BoolVar(&rootFlags.snapshot, "snapshot", false,
		"Snapshot the current version without incrementing it")
	rootCmd.MarkFlagsMutuallyExclusive("status", "history", "snapshot")

	// Global flags (persistent across all commands)
	pf := rootCmd.PersistentFlags()
	pf.IntVarP(&globalFlags.verbosity, "verbosity", "v", 1,
		"Verbosity level (0=error, 1=warn, 2=info, 3=debug, 4=trace)")
	pf.StringVar(&globalFlags.logFormat, "log-format", "text",
		"Log format (text, json)")
	pf.StringVar(&globalFlags.root, "root", ".",
		"Root of the tree to converge")
	pf.BoolVar(&globalFlags.noColor, "no-color", false,
		"Disable colored output")
	pf.BoolVar(&globalFlags.noLock, "no-lock", false,
		"Run without taking the cycle lock")
	pf.DurationVar(&globalFlags.testTimeout, "test-timeout", 0,
		"Override the smoke test suite timeout")

	// Hook to apply flags before command runs
	cobra.OnInitialize(initLogging)
}

// initLogging applies CLI flags to the logger.
// This runs after flags are parsed but before command execution.
func initLogging() {
	log.Init(globalFlags.verbosity, globalFlags.logFormat)
}

func runRoot(cmd *cobra.Command, args []string) error {
	switch {
	case rootFlags.status:
		return showStatus(cmd, false)
	case rootFlags.history:
		return showHistory(cmd, 10)
	case rootFlags.snapshot:
		return runSnapshot(cmd, args)
	}
	return runCycle(cmd, args)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			newPrinter(os.Stderr).errorf("Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// RootCmd returns the root command for testing.
func RootCmd() *cobra.Command {
	return rootCmd
}
