package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fatcrapinmybutt/the-manbearpig/pkg/config"
)

var initFlags struct {
	force  bool
	dryRun bool
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Writes the built-in defaults to .converge/config.yaml under the root.

The file documents every setting; edit it to change tracked extensions,
size budgets, change sources and release thresholds. Existing files are
left alone unless --force is given.

Use --dry-run to print the configuration without writing it.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initFlags.force, "force", false,
		"Overwrite an existing configuration file")
	initCmd.Flags().BoolVar(&initFlags.dryRun, "dry-run", false,
		"Print the configuration instead of writing it")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	if initFlags.dryRun {
		data, err := config.DefaultYAML()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}

	root, err := filepath.Abs(globalFlags.root)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	path := filepath.Join(root, config.ConfigDirName, "config.yaml")
	if err := config.WriteDefault(path, initFlags.force); err != nil {
		return err
	}
	newPrinter(cmd.OutOrStdout()).printf("wrote %s\n", path)
	return nil
}
