package cli

import (
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/cycle"
)

var runFlags struct {
	json bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one convergence cycle",
	Long: `Runs one convergence cycle, the same as calling converge without flags.

The version advances on every run, even when a later stage fails; nothing
is rolled back. The exit status is 0 only when every stage completed and
the smoke gate passed.`,
	Args: cobra.NoArgs,
	RunE: runCycle,
}

func init() {
	runCmd.Flags().BoolVar(&runFlags.json, "json", false,
		"Output the cycle result as JSON")

	rootCmd.AddCommand(runCmd)
}

func runCycle(cmd *cobra.Command, _ []string) error {
	e, _, err := openEngine()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext(cmd)
	defer cancel()

	res := e.Run(ctx)
	if runFlags.json {
		out := struct {
			*cycle.Result
			OK    bool   `json:"ok"`
			Error string `json:"error,omitempty"`
		}{res, res.OK(), res.Failure()}
		if err := outputJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		printResult(newPrinter(cmd.OutOrStdout()), res)
	}
	if !res.OK() {
		return errReported
	}
	return nil
}

// printResult writes the human cycle summary.
func printResult(p *printer, res *cycle.Result) {
	if res.Version != "" {
		p.printf("%s %s", p.bold.Sprint("converge"), res.Version)
		if res.Previous != "" {
			p.printf(" (previous %s)", res.Previous)
		}
		p.printf("\n")
	}
	if cs := res.Changes; cs != nil {
		p.printf("  changes:   %d (%s)\n", cs.Len(), cs.Source)
	}
	if res.ModuleCount > 0 {
		p.printf("  modules:   %d\n", res.ModuleCount)
	}
	if res.Snapshot > 0 {
		p.printf("  snapshot:  %d files\n", res.Snapshot)
	}
	if res.Smoke != nil {
		p.printf("  smoke:     %s\n", p.verdict(res.SmokePassed))
		for _, r := range res.Smoke.Results {
			switch {
			case r.Passed:
			case r.Advisory:
				p.warnf("    ! %s: %s\n", r.Name, r.Message)
			default:
				p.errorf("    ✗ %s: %s\n", r.Name, r.Message)
			}
		}
	}
	if res.Size != nil {
		p.printf("  size:      %s", humanize.IBytes(uint64(max(res.Size.Total, 0))))
		if res.PatchesMode {
			p.warnf(" over budget, patches mode")
		}
		p.printf("\n")
	}
	switch {
	case res.Artifact != nil:
		p.printf("  release:   %s (%s)\n", filepath.Base(res.Artifact.Path),
			humanize.IBytes(uint64(max(res.Artifact.Size, 0))))
	case res.Stage == cycle.StageDone && res.ReleaseReason == "":
		p.printf("  release:   skipped\n")
	}
	p.printf("  duration:  %s\n", res.Duration.Round(time.Millisecond))

	if res.Err != nil {
		p.errorf("cycle failed at %s: %v\n", res.Stage, res.Err)
	}
}
