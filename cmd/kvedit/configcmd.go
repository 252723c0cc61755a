package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maruel/kvedit/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of kvedit.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := config.Schema()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}, &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print the file used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			src := a.cfgFile
			if src == "" {
				src = "(defaults)"
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (backend %s)\n", src, a.cfg.Backend)
			return err
		},
	})
	return cmd
}
