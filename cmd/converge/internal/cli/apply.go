package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/log"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/lock"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/patch"
)

var applyFlags struct {
	strategy string
	json     bool
}

var applyCmd = &cobra.Command{
	Use:   "apply <archive>",
	Short: "Apply a patches archive to the tree",
	Long: `Applies the files of a PATCHES archive to the tree with the selected
strategy. Every target is backed up under .converge/backups before it is
written; if any target fails, all targets written so far are restored.
Each outcome is appended to .converge/patch_history.json.

Strategies:
` + strategyHelp(),
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVar(&applyFlags.strategy, "strategy", patch.DefaultStrategy,
		"Patch strategy ("+strings.Join(patch.Available(), ", ")+")")
	applyCmd.Flags().BoolVar(&applyFlags.json, "json", false,
		"Output the report as JSON")

	rootCmd.AddCommand(applyCmd)
}

func strategyHelp() string {
	var b strings.Builder
	for _, id := range patch.Available() {
		s, _ := patch.Lookup(id)
		fmt.Fprintf(&b, "  %-15s %s\n", id, s.Describe())
	}
	return b.String()
}

func runApply(cmd *cobra.Command, args []string) error {
	if !patch.IsAvailable(applyFlags.strategy) {
		return fmt.Errorf("%w: %q (available: %s)", patch.ErrUnknownStrategy,
			applyFlags.strategy, strings.Join(patch.Available(), ", "))
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// patches rewrite tracked files; keep cycles out meanwhile
	if cfg.Cycle.Lock {
		l, err := lock.Acquire(cfg.StateDir())
		if err != nil {
			return err
		}
		defer func() { _ = l.Release() }()
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	rep, err := patch.Apply(ctx, args[0], cfg.Root, applyFlags.strategy,
		patch.WithStateDir(cfg.StateDir()),
		patch.WithLogger(log.Component("patch")),
	)
	if rep == nil {
		return err
	}
	if applyFlags.json {
		if jerr := outputJSON(cmd.OutOrStdout(), rep); jerr != nil {
			return jerr
		}
	} else {
		printPatchReport(newPrinter(cmd.OutOrStdout()), rep)
	}
	if err != nil {
		if !applyFlags.json {
			newPrinter(cmd.ErrOrStderr()).errorf("apply failed: %v\n", err)
		}
		return errReported
	}
	return nil
}

func printPatchReport(p *printer, rep *patch.Report) {
	p.printf("%s %s (%s)\n", p.bold.Sprint(rep.Archive), rep.Version, rep.Strategy)
	for _, o := range rep.Outcomes {
		switch o.Status {
		case patch.StatusApplied:
			p.printf("  %s %s\n", p.green.Sprint("✓"), o.Target)
		case patch.StatusSkipped:
			p.printf("  - %s (skipped)\n", o.Target)
		case patch.StatusRolledBack:
			p.warnf("  ↺ %s (rolled back)\n", o.Target)
		default:
			p.errorf("  ✗ %s: %s\n", o.Target, o.Error)
		}
	}
	p.printf("%d applied, %d skipped, %d failed, %d rolled back\n",
		rep.Count(patch.StatusApplied), rep.Count(patch.StatusSkipped),
		rep.Count(patch.StatusFailed), rep.Count(patch.StatusRolledBack))
}
