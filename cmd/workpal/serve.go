package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"workpal/internal/adapters/httpapi"
	"workpal/internal/config"
	"workpal/internal/core"
)

const shutdownGrace = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr, traceJSON string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.HTTPAddr = addr
			}
			if traceJSON != "" {
				a.cfg.Tracing.Exporter = config.TraceExporterJSON
				a.cfg.Tracing.JSONPath = traceJSON
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http_addr)")
	cmd.Flags().StringVar(&traceJSON, "trace-json", "", "write one JSON line per operation to this file, or - for stderr")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	var extra []core.Option
	var metricsHandler http.Handler
	if a.cfg.Metrics.Prometheus {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		extra = append(extra, core.WithMetricsRecorder(core.NewPrometheusMetricsRecorder(reg)))
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	} else if a.cfg.Metrics.Expvar {
		extra = append(extra, core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("")))
	}
	tracer, closeTracing, err := a.openTracer()
	if err != nil {
		return err
	}
	defer closeTracing()
	if tracer != nil {
		extra = append(extra, core.WithTracer(tracer))
	}

	svc, closeStores, err := a.openService(ctx, extra...)
	if err != nil {
		return err
	}
	defer closeStores()

	handler := httpapi.NewHandler(svc, a.logger)
	handler.Metrics = metricsHandler
	mux := http.NewServeMux()
	if a.cfg.Metrics.Expvar {
		mux.Handle("/debug/vars", expvar.Handler())
	}
	mux.Handle("/", handler.Router())

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", srv.Addr), zap.Int("departments", len(svc.ListDepartments())))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
