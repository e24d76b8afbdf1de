package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/manifest"
)

var verifyFlags struct {
	all  bool
	json bool
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the tree against MANIFEST.json",
	Long: `Recomputes the digest of every file listed in MANIFEST.json and reports
files that are missing or whose content changed since the manifest was
built.

By default verification stops at the first problem. Use --all to report
every problem. The exit status is 1 when any problem is found.`,
	Args: cobra.NoArgs,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyFlags.all, "all", false,
		"Report every problem instead of stopping at the first")
	verifyCmd.Flags().BoolVar(&verifyFlags.json, "json", false,
		"Output as JSON")

	rootCmd.AddCommand(verifyCmd)
}

// VerifyOutput is the JSON output format for converge verify.
type VerifyOutput struct {
	Version  string   `json:"version"`
	Modules  int      `json:"modules"`
	OK       bool     `json:"ok"`
	Missing  []string `json:"missing,omitempty"`
	Modified []string `json:"modified,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	m, err := manifest.Load(cfg.ManifestFile())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("no manifest at %s; run a cycle first", cfg.ManifestFile())
		}
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	var problems []error
	if verifyFlags.all {
		problems = manifest.VerifyAll(ctx, cfg.Root, m)
	} else if err := manifest.Verify(ctx, cfg.Root, m); err != nil {
		problems = []error{err}
	}

	out := classify(m, problems)
	if verifyFlags.json {
		if err := outputJSON(cmd.OutOrStdout(), out); err != nil {
			return err
		}
	} else {
		printVerify(newPrinter(cmd.OutOrStdout()), out)
	}
	if !out.OK {
		return errReported
	}
	return nil
}

func classify(m *manifest.Manifest, problems []error) VerifyOutput {
	out := VerifyOutput{Version: m.Version, Modules: m.Len(), OK: len(problems) == 0}
	for _, err := range problems {
		var missing *manifest.MissingFileError
		var mismatch *manifest.HashMismatchError
		switch {
		case errors.As(err, &missing):
			out.Missing = append(out.Missing, missing.Path)
		case errors.As(err, &mismatch):
			out.Modified = append(out.Modified, mismatch.Path)
		default:
			out.Errors = append(out.Errors, err.Error())
		}
	}
	return out
}

func printVerify(p *printer, out VerifyOutput) {
	if out.OK {
		p.printf("%s %d modules match the %s manifest\n", p.verdict(true), out.Modules, out.Version)
		return
	}
	p.printf("%s manifest %s\n", p.verdict(false), out.Version)
	for _, path := range out.Missing {
		p.errorf("  - %s (missing)\n", path)
	}
	for _, path := range out.Modified {
		p.warnf("  ~ %s (modified)\n", path)
	}
	for _, msg := range out.Errors {
		p.errorf("  ! %s\n", msg)
	}
}
