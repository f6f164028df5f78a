package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"workpal/pkg/domain"
)

func newUploadCmd(a *app) *cobra.Command {
	var contentType string
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload rule documents or department datasets",
	}
	cmd.PersistentFlags().StringVar(&contentType, "content-type", "", "MIME type of the file (guessed from the extension when empty)")

	cmd.AddCommand(&cobra.Command{
		Use:   "rules <department|central> <file>",
		Short: "Replace a scope's rules with the text of a .txt, .md, .pdf or .docx file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			svc, closeStores, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores()
			doc, err := svc.UploadRules(cmd.Context(), domain.Scope(args[0]), filepath.Base(args[1]), contentType, data)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored %d characters of rules for %s\n", len(doc.RuleText), doc.Scope)
			return err
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "dataset <department> <file.xlsx>",
		Short: "Replace a department's dataset with an .xlsx workbook",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			svc, closeStores, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores()
			names, err := svc.UploadDataset(cmd.Context(), args[0], filepath.Base(args[1]), contentType, data)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "stored tables: %s\n", strings.Join(names, ", "))
			return err
		},
	})
	return cmd
}

func newDepartmentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "departments",
		Short: "List registered departments and their tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, closeStores, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores()
			for _, dept := range svc.ListDepartments() {
				names, err := svc.Tables(cmd.Context(), dept.Key)
				if err != nil && domain.KindOf(err) != domain.ErrKindNotFound {
					return err
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", dept.Key, dept.Name, strings.Join(names, ", ")); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "setup <name>...",
		Short: "Register departments so they survive restarts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeStores, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores()
			keys, err := svc.SetupDepartments(cmd.Context(), args)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "registered: %s\n", strings.Join(keys, ", "))
			return err
		},
	})
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <department>",
		Short: "Write a department's current dataset to an .xlsx file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, closeStores, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStores()
			data, err := svc.ExportDataset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = domain.NormalizeDepartment(args[0]) + "_database.xlsx"
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (default <department>_database.xlsx)")
	return cmd
}
