package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ofs-tlaxcala/scil/internal/catalog"
)

var catalogSeedPath string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the unified entity catalog",
}

var catalogLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load or refresh the catalog from the YAML seed file",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		path := catalogSeedPath
		if path == "" {
			path = cfg.Catalog.SeedPath
		}

		entities, err := catalog.LoadSeedFile(path)
		if err != nil {
			return err
		}

		n, err := st.UpsertEntities(cmd.Context(), entities)
		if err != nil {
			return err
		}
		zap.L().Info("catalog loaded",
			zap.String("path", path),
			zap.Int("entities", len(entities)),
			zap.Int64("written", n),
		)
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entities in hierarchical order",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()

		entities, err := e.Catalog.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, entity := range entities {
			fmt.Printf("%-12s %-10s %-8s %s\n", entity.Clave, entity.Siglas, entity.HierarchyCode, entity.Nombre)
		}
		return nil
	},
}

func init() {
	catalogLoadCmd.Flags().StringVar(&catalogSeedPath, "seed", "", "seed file path (default from config)")
	catalogCmd.AddCommand(catalogLoadCmd, catalogListCmd)
	rootCmd.AddCommand(catalogCmd)
}
