package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"workpal/internal/config"
	"workpal/internal/core"
)

// openTracer builds the tracer selected by the tracing config. A nil tracer
// means tracing is off. The returned func flushes and releases the exporter.
func (a *app) openTracer() (core.Tracer, func(), error) {
	tc := a.cfg.Tracing
	switch strings.ToLower(tc.Exporter) {
	case config.TraceExporterNone:
		return nil, func() {}, nil
	case config.TraceExporterLog:
		tp := core.NewLogTracerProvider(a.logger, tc.SampleRatio)
		otel.SetTracerProvider(tp)
		return core.NewOTelTracer(tp), func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				a.logger.Warn("tracer shutdown", zap.Error(err))
			}
		}, nil
	case config.TraceExporterJSON:
		if tc.JSONPath == "" || tc.JSONPath == "-" {
			return core.NewJSONTracer(os.Stderr), func() {}, nil
		}
		f, err := os.OpenFile(tc.JSONPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open trace file: %w", err)
		}
		return core.NewJSONTracer(f), func() { _ = f.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown tracing exporter %q", tc.Exporter)
}
