package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maruel/kvedit/internal/overlay"
	"github.com/maruel/kvedit/internal/storeclient"
)

func newAutoNavCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "autonav URL",
		Short: "Open the overlay on URL and print where auto-navigation lands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			nav, err := a.cfg.AutoNavConfig()
			if err != nil {
				return err
			}
			o := overlay.New(ctx, storeclient.New(a.host), toastPrinter{cmd.ErrOrStderr()}, nav)
			defer o.Close()
			act := o.Toggle(ctx, args[0])
			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(act); err != nil {
				return err
			}
			e, err := o.Editor()
			if err != nil {
				return err
			}
			if detail, err := e.DetailJSON(); err == nil {
				_, err = fmt.Fprintln(out, detail)
				return err
			}
			return nil
		},
	}
}
