package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/auto-dns/dns-record-sync/internal/app"
	"github.com/auto-dns/dns-record-sync/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Import records from a CSV, JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		formatFlag, _ := cmd.Flags().GetString("format")
		path := args[0]

		format := importer.Format(formatFlag)
		if format == "" {
			var err error
			if format, err = importer.FormatFor(path, ""); err != nil {
				return err
			}
		}

		return withApp(cmd, func(ctx context.Context, application *app.App, log zerolog.Logger) error {
			report, err := application.Importer().ImportFile(ctx, path, format, owner, false)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d rows failed", report.Failed, report.Total)
			}
			return nil
		})
	},
}

func init() {
	importCmd.Flags().String("owner", "", "owner the records are imported for")
	importCmd.Flags().String("format", "", "input format: csv, json or yaml (default from the file extension)")
	importCmd.MarkFlagRequired("owner")
}
