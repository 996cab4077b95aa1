package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ofs-tlaxcala/scil/internal/report"
)

var reportOut string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Export the incompatibility report as XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		groups, err := e.Analyzer.FindAllConflicts(ctx)
		if err != nil {
			return err
		}
		rows, err := e.Exporter.BuildRows(ctx, groups)
		if err != nil {
			return err
		}

		f, err := os.Create(reportOut)
		if err != nil {
			return eris.Wrapf(err, "create %s", reportOut)
		}
		defer f.Close()

		if err := report.WriteXLSX(rows, f); err != nil {
			return err
		}
		zap.L().Info("report written",
			zap.String("path", reportOut),
			zap.Int("rows", len(rows)),
		)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportOut, "out", "incompatibilidades.xlsx", "output file path")
	rootCmd.AddCommand(reportCmd)
}
