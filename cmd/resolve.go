package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ofs-tlaxcala/scil/internal/model"
)

var resolveComment string

var resolveCmd = &cobra.Command{
	Use:   "resolve <rfc> <clave> <solventado|no_solventado|sin_valoracion>",
	Short: "Record an auditor disposition for one (RFC, entity) pair",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.Tracker.SetStatus(ctx, args[0], args[1], model.Status(args[2]), resolveComment)
		if err != nil {
			return err
		}

		fmt.Printf("%s @ %s: %s (%s)\n", res.RFC, res.EntityClave, res.Estado.Display(),
			res.UpdatedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveComment, "comment", "", "auditor observation")
	rootCmd.AddCommand(resolveCmd)
}
