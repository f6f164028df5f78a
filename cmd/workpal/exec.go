package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"workpal/pkg/domain"
)

func newExecCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Execute one intent read from a JSON file (- for stdin)",
		Example: `  workpal exec -f intent.json
  echo '{"action":"READ","department":"hr","table":"Employees"}' | workpal exec -f -`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var r io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var in domain.Intent
			dec := json.NewDecoder(r)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&in); err != nil {
				return fmt.Errorf("decode intent: %w", err)
			}

			svc, closeStores, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores()
			res, err := svc.Execute(cmd.Context(), in)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
			if !res.Success {
				return res.Err()
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "intent JSON file")
	return cmd
}
