package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"workpal/pkg/domain"
)

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect stored rule documents",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <department|central>",
		Short: "Print the full rule text of a scope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeStores, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores()
			text, err := svc.GetRuleText(cmd.Context(), domain.Scope(args[0]))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	})
	return cmd
}
