package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fatcrapinmybutt/the-manbearpig/internal/log"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/publish"
	"github.com/fatcrapinmybutt/the-manbearpig/pkg/release"
)

var publishFlags struct {
	version string
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Upload a release artifact to object storage",
	Long: `Uploads the newest artifact of a version and its sibling manifest to the
S3-compatible bucket configured under publish (endpoint, bucket, region and
credentials, usually from CONVERGE_PUBLISH_* variables or .env).

Objects are stored as <prefix>/<version>/<file>. The bucket is created when
it does not exist. Without --version the runnable CURRENT version is used.`,
	Args: cobra.NoArgs,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishFlags.version, "version", "",
		"Version to publish (defaults to CURRENT)")

	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, _ []string) error {
	e, _, err := openEngine()
	if err != nil {
		return err
	}
	cfg := e.Config()

	version := publishFlags.version
	if version == "" {
		cur, err := e.Ledger().Current()
		if err != nil {
			return err
		}
		if cur.IsZero() {
			return fmt.Errorf("no current version; run a cycle first")
		}
		version = cur.String()
	}

	packager, err := release.New(cfg, log.Component("release"))
	if err != nil {
		return err
	}
	art, err := packager.Find(version)
	if err != nil {
		return err
	}

	store, err := publish.NewS3Store(cfg.Publish)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	keys, err := publish.New(store, cfg.Publish.Prefix, log.Component("publish")).Publish(ctx, art)
	if err != nil {
		return err
	}
	p := newPrinter(cmd.OutOrStdout())
	for _, k := range keys {
		p.printf("uploaded s3://%s/%s\n", store.Bucket(), k)
	}
	return nil
}
