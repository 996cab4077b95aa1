package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ofs-tlaxcala/scil/internal/analyze"
)

var patternsRFC string

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Audit ingreso/egreso date anomalies",
	Long:  "Audits the formal relation dates of the stored labor records: egreso before ingreso, overlapping relation ranges across entities, and open relations without an egreso date. With --rfc only that employee is audited.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if patternsRFC != "" {
			findings, err := e.Analyzer.FindDateAnomalies(ctx, patternsRFC)
			if err != nil {
				if eris.Is(err, analyze.ErrNoRecords) {
					return eris.Errorf("no labor records for RFC %s", patternsRFC)
				}
				return err
			}
			if len(findings) == 0 {
				fmt.Printf("%s: sin anomalías de fechas\n", patternsRFC)
				return nil
			}
			printFindings(ctx, e, findings)
			return nil
		}

		findings, err := e.Analyzer.FindAllDateAnomalies(ctx)
		if err != nil {
			return err
		}
		printFindings(ctx, e, findings)
		fmt.Printf("\n%d hallazgos\n", len(findings))
		return nil
	},
}

func printFindings(ctx context.Context, e *env, findings []analyze.DateFinding) {
	for _, f := range findings {
		labels := make([]string, len(f.Claves))
		for i, clave := range f.Claves {
			labels[i] = e.Catalog.Display(ctx, clave)
		}
		fmt.Printf("[%d] %-26s %s  %s", f.Severidad, f.Tipo, f.RFC, strings.Join(labels, "; "))
		if f.Rango != "" {
			fmt.Printf("  %s", f.Rango)
		}
		fmt.Println()
	}
}

func init() {
	patternsCmd.Flags().StringVar(&patternsRFC, "rfc", "", "audit a single RFC")
	rootCmd.AddCommand(patternsCmd)
}
