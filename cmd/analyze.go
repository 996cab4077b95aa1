package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ofs-tlaxcala/scil/internal/analyze"
	"github.com/ofs-tlaxcala/scil/internal/model"
)

var analyzeRFC string

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Detect cross-entity payroll incompatibilities",
	Long:  "Scans the stored labor records and reports every RFC paid by two or more entities during the same quincenas. With --rfc only that employee is evaluated.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if analyzeRFC != "" {
			group, err := e.Analyzer.FindConflicts(ctx, analyzeRFC)
			if err != nil {
				if eris.Is(err, analyze.ErrNoRecords) {
					return eris.Errorf("no labor records for RFC %s", analyzeRFC)
				}
				return err
			}
			if group == nil {
				fmt.Printf("%s: sin incompatibilidad\n", analyzeRFC)
				return nil
			}
			printGroup(ctx, e, *group)
			return nil
		}

		groups, err := e.Analyzer.FindAllConflicts(ctx)
		if err != nil {
			return err
		}
		for _, group := range groups {
			printGroup(ctx, e, group)
		}
		fmt.Printf("\n%d RFC con incompatibilidad\n", len(groups))
		return nil
	},
}

func printGroup(ctx context.Context, e *env, group model.ConflictGroup) {
	labels := make([]string, len(group.Entities))
	for i, entity := range group.Entities {
		labels[i] = fmt.Sprintf("%s (%s)", e.Catalog.Display(ctx, entity.EntityClave), entity.Implicated.String())
	}
	fmt.Printf("%s  %s\n  %s\n", group.RFC, group.Nombre, strings.Join(labels, "; "))
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeRFC, "rfc", "", "analyze a single RFC")
	rootCmd.AddCommand(analyzeCmd)
}
