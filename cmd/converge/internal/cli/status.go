package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/cycle"
)

var statusFlags struct {
	json bool
}

var historyFlags struct {
	count int
	json  bool
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show version, manifest and release state",
	Long: `Shows the current version and runnable pointer, the number of modules in
MANIFEST.json, snapshots under VERSIONS/ and release artifacts, and the
changes the next cycle would pick up.

Nothing is modified, not even the log or output directories. A cycle
left behind by a crash or a stage failure is reported together with the
stage it reached. A malformed VERSION or CURRENT is shown as the zero
version with a warning.

The --json flag outputs the result as JSON for scripting.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return showStatus(cmd, statusFlags.json)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent changelog entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return showHistory(cmd, historyFlags.count)
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Snapshot the current version without incrementing it",
	Args:  cobra.NoArgs,
	RunE:  runSnapshot,
}

func init() {
	statusCmd.Flags().BoolVar(&statusFlags.json, "json", false,
		"Output as JSON")
	historyCmd.Flags().IntVarP(&historyFlags.count, "count", "n", 10,
		"Number of entries to show")
	historyCmd.Flags().BoolVar(&historyFlags.json, "json", false,
		"Output as JSON")

	rootCmd.AddCommand(statusCmd, historyCmd, snapshotCmd)
}

func showStatus(cmd *cobra.Command, asJSON bool) error {
	e, _, err := openEngine()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()

	st, err := e.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	if asJSON {
		return outputJSON(cmd.OutOrStdout(), st)
	}
	printStatus(newPrinter(cmd.OutOrStdout()), st)
	return nil
}

func printStatus(p *printer, st *cycle.Status) {
	p.printf("root:       %s\n", st.Root)
	p.printf("version:    %s\n", st.Version)
	p.printf("current:    %s\n", st.Current)
	p.printf("modules:    %d\n", st.Modules)
	p.printf("snapshots:  %d\n", st.Snapshots)
	p.printf("artifacts:  %d\n", st.Artifacts)
	if st.PendingErr != "" {
		p.warnf("pending:    unknown (%s)\n", st.PendingErr)
	} else {
		p.printf("pending:    %d (%s)\n", st.Pending, st.Source)
	}

	switch {
	case st.Lock.Stale:
		p.warnf("lock:       stale (pid %d)\n", st.Lock.PID)
	case st.Lock.Held:
		p.printf("lock:       held by pid %d\n", st.Lock.PID)
	}
	if in := st.Interrupted; in != nil {
		label := "interrupted"
		if in.Failed() {
			label = "failed"
		}
		p.warnf("%s: cycle %s stopped in %s", label, in.CycleID, in.Stage)
		if in.Version != "" {
			p.warnf(" at %s", in.Version)
		}
		p.warnf(" (started %s)\n", in.StartedAt.Local().Format(time.DateTime))
		if in.Failed() {
			p.warnf("  error: %s\n", in.Error)
		}
	}
	for _, w := range st.Warnings {
		p.warnf("warning: %s\n", w)
	}
}

func showHistory(cmd *cobra.Command, n int) error {
	e, _, err := openEngine()
	if err != nil {
		return err
	}
	headers, err := e.History(n)
	if err != nil {
		return fmt.Errorf("failed to read changelog: %w", err)
	}
	if historyFlags.json {
		if headers == nil {
			headers = []string{}
		}
		return outputJSON(cmd.OutOrStdout(), headers)
	}
	p := newPrinter(cmd.OutOrStdout())
	if len(headers) == 0 {
		p.printf("No changelog entries yet.\n")
		return nil
	}
	for _, h := range headers {
		p.printf("%s\n", h)
	}
	return nil
}

func runSnapshot(cmd *cobra.Command, _ []string) error {
	e, _, err := openEngine()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()

	m, err := e.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot failed: %w", err)
	}
	newPrinter(cmd.OutOrStdout()).printf("snapshot %s: %d files in %s\n",
		m.Version, m.FileCount, e.Snapshots().Dir(m.Version))
	return nil
}
