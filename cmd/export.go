package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/newsstream/internal/archive"
)

var exportBucket string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Upload a JSON snapshot of clean enriched articles to S3",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if exportBucket != "" {
			cfg.S3.Bucket = exportBucket
		}
		if err := cfg.Validate("export"); err != nil {
			return err
		}

		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		up, err := archive.NewS3Uploader(ctx, cfg.S3.Region)
		if err != nil {
			return err
		}

		key, n, err := archive.NewExporter(up, archive.Options{
			Bucket: cfg.S3.Bucket,
			Prefix: cfg.S3.Prefix,
			Filter: statsFilter(cfg),
		}).Export(ctx, st)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "exported %d articles to s3://%s/%s\n", n, cfg.S3.Bucket, key)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportBucket, "bucket", "", "destination bucket (default from config)")
	rootCmd.AddCommand(exportCmd)
}
