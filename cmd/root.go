package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ofs-tlaxcala/scil/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "scil",
	Short: "Cross-entity payroll incompatibility audit",
	Long:  "Ingests quincenal payroll workbooks from state and municipal entities, detects employees paid by multiple entities in the same quincenas, and tracks auditor resolutions.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
