package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ofs-tlaxcala/scil/internal/ingest"
)

var ingestFromFTP bool

var ingestCmd = &cobra.Command{
	Use:   "ingest [workbook.xlsx ...]",
	Short: "Ingest payroll workbooks into the store",
	Long:  "Reads one or more XLSX workbooks (one sheet per entity), normalizes rows and upserts labor records. With --ftp the workbooks are fetched from the configured inbox instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		paths := args
		if ingestFromFTP {
			if err := cfg.Validate("ingest-ftp"); err != nil {
				return err
			}
			inbox := ingest.NewInbox(ingest.InboxOptions{
				URL:                cfg.Ingest.FTPURL,
				User:               cfg.Ingest.FTPUser,
				Password:           cfg.Ingest.FTPPassword,
				Timeout:            time.Duration(cfg.Ingest.FTPTimeoutSecs) * time.Second,
				DownloadsPerSecond: cfg.Ingest.DownloadsPerSecond,
			})
			paths, err = inbox.Fetch(ctx, cfg.Ingest.DownloadDir)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				zap.L().Info("ftp inbox empty, nothing to ingest")
				return nil
			}
		}
		if len(paths) == 0 {
			return cmd.Usage()
		}

		result, err := e.Runner.RunFiles(ctx, paths)
		if err != nil {
			return err
		}

		fmt.Printf("batch %s: %d sheets, %d records accepted, %d alerts\n",
			result.BatchID, result.Sheets, result.Accepted, len(result.Alerts))
		for _, alert := range result.Alerts {
			fmt.Printf("  [%s] %s\n", alert.Type, alert.Message)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestFromFTP, "ftp", false, "fetch workbooks from the configured FTP inbox")
	rootCmd.AddCommand(ingestCmd)
}
