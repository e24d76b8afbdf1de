package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fatcrapinmybutt/the-manbearpig/cmd/converge/internal/watch"
)

var watchFlags struct {
	debounce time.Duration
	verbose  bool
	json     bool
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a cycle whenever tracked files change",
	Long: `Watches the tree for changes to tracked files and runs one convergence
cycle after each burst of edits settles.

Engine outputs (VERSIONS/, output/, logs/ and the files a cycle rewrites)
are ignored, so a cycle never triggers itself.

Example output:

  $ converge watch

  converge: watching 1,247 files in /path/to/tree
  converge: ready

  [14:32:15] core.py changed, running cycle...
  [14:32:17] ✓ v0042 built (1 changed, 1.8s)

Press Ctrl+C to stop watching.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchFlags.debounce, "debounce", watch.DefaultDebounce,
		"Quiet window before a cycle runs")
	watchCmd.Flags().BoolVar(&watchFlags.verbose, "verbose", false,
		"Show file-level changes")
	watchCmd.Flags().BoolVar(&watchFlags.json, "json", false,
		"Stream JSON events (for tooling integration)")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if watchFlags.debounce <= 0 {
		return fmt.Errorf("--debounce must be positive, got %s", watchFlags.debounce)
	}

	e, tracker, err := openEngine()
	if err != nil {
		return err
	}
	cfg := e.Config()
	rules := e.Builder().Rules()

	// Setup signal handling for graceful shutdown
	ctx, cancel := signalContext(cmd)
	defer cancel()

	w, err := watch.New(watch.Config{
		Rules:    rules,
		Runner:   e,
		Debounce: watchFlags.debounce,
		Ignore: []string{
			cfg.Paths.VersionFile,
			cfg.Paths.CurrentFile,
			cfg.Paths.Changelog,
			cfg.Paths.Manifest,
		},
		FileCount: func() int {
			// the recorded index is cheaper than a walk when present
			if n := tracker.TrackedFileCount(); n > 0 {
				return n
			}
			files, err := rules.Files(context.Background())
			if err != nil {
				return 0
			}
			return len(files)
		},
		Writer:  cmd.OutOrStdout(),
		Verbose: watchFlags.verbose,
		NoColor: globalFlags.noColor,
		JSON:    watchFlags.json,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	return w.Run(ctx)
}
