// Command workpal runs the departmental intent engine: an HTTP server plus
// one-shot commands for executing intents and uploading rules or datasets.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"workpal/internal/config"
	"workpal/internal/core"
	"workpal/internal/logging"
	"workpal/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		exitFunc(1)
		return
	}
	exitFunc(0)
}

// app carries state shared by every subcommand once the root pre-run has loaded
// configuration and the logger.
type app struct {
	configPath string
	verbose    bool

	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "workpal",
		Short:         "Departmental workspace engine",
		Long:          "workpal validates and executes structured intents against department spreadsheets and serves department rules.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			if a.verbose {
				cfg.Log.Level = "debug"
			}
			a.cfg = cfg
			a.logger, err = logging.New(cfg.Log.Level, cfg.Log.Encoding)
			return err
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("WORKPAL_CONFIG"), "path to a YAML config file")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newServeCmd(a), newExecCmd(a), newRulesCmd(a), newUploadCmd(a), newExportCmd(a), newDepartmentsCmd(a))
	return root
}

// openService wires storage, observability and departments from config. The
// returned closer releases database handles.
func (a *app) openService(ctx context.Context, extra ...core.Option) (*core.Service, func(), error) {
	opts := a.cfg.StorageOptions()
	rules, err := core.OpenRuleRepository(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("open rule repository: %w", err)
	}
	closeRules := func() {
		if c, ok := rules.(io.Closer); ok {
			_ = c.Close()
		}
	}
	tables, err := core.OpenTableStore(ctx, opts)
	if err != nil {
		closeRules()
		return nil, nil, fmt.Errorf("open table store: %w", err)
	}
	options := []core.Option{
		core.WithLogger(a.logger),
		core.WithAuditRecorder(core.NewLogAuditRecorder(a.logger)),
		core.WithLockTimeout(a.cfg.LockTimeout.Std()),
		core.WithDepartments(a.cfg.Departments...),
	}
	if ds, ok := tables.(domain.DepartmentStore); ok {
		options = append(options, core.WithDepartmentStore(ds))
	}
	svc := core.NewService(tables, rules, append(options, extra...)...)
	if err := svc.LoadDepartments(ctx); err != nil {
		closeRules()
		return nil, nil, fmt.Errorf("load departments: %w", err)
	}
	return svc, closeRules, nil
}
