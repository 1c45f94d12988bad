package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	importURL     string
	importFile    string
	importVersion string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Fetch the product feed and reconcile it against the catalog",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		source := importURL
		if importFile != "" {
			if importURL != "" {
				return eris.New("--url and --file are mutually exclusive")
			}
			source = importFile
		}
		if source == "" {
			source = cfg.Feed.URL
		}
		if source == "" {
			return eris.New("feed source is required (--url, --file, or feed.url in config)")
		}

		version := importVersion
		if version == "" {
			version = fmt.Sprintf("%s-%s", cfg.Feed.VersionPrefix, time.Now().UTC().Format("20060102-150405"))
		}

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		run, err := env.importer.Run(ctx, source, version)
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("import complete",
			zap.Int64("run_id", run.ID),
			zap.String("version", run.VersionLabel),
			zap.Int("total", run.Total),
			zap.Int("added", run.Added),
			zap.Int("updated", run.Updated),
			zap.Int("removed", run.Removed),
		)
		fmt.Printf("Run %d (%s): %d products, %d added, %d updated, %d removed\n",
			run.ID, run.VersionLabel, run.Total, run.Added, run.Updated, run.Removed)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importURL, "url", "", "feed URL (http, https or ftp)")
	importCmd.Flags().StringVar(&importFile, "file", "", "local feed file path")
	importCmd.Flags().StringVar(&importVersion, "version", "", "version label for this import (generated if empty)")
	rootCmd.AddCommand(importCmd)
}
