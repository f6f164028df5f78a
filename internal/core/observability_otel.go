package core

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"workpal/pkg/domain"
)

const otelInstrumentation = "workpal/internal/core"

// OTelTracer adapts an OpenTelemetry tracer to the engine Tracer interface.
type OTelTracer struct {
	tracer trace.Tracer
}

// NewOTelTracer wraps tp; a nil provider uses the global one.
func NewOTelTracer(tp trace.TracerProvider) *OTelTracer {
	if tp == nil {
		return &OTelTracer{tracer: otel.Tracer(otelInstrumentation)}
	}
	return &OTelTracer{tracer: tp.Tracer(otelInstrumentation)}
}

// Start implements Tracer.
func (t *OTelTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	ctx, span := t.tracer.Start(ctx, operation, trace.WithAttributes(attribute.String("workpal.operation", operation)))
	return ctx, otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s otelSpan) End(err error) {
	if err != nil {
		if kind := domain.KindOf(err); kind != "" {
			s.span.SetAttributes(attribute.String("workpal.error_kind", string(kind)))
		}
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// NewLogTracerProvider returns an SDK provider that samples ratio of root
// traces and batches finished spans to log. Callers own Shutdown.
func NewLogTracerProvider(log *zap.Logger, ratio float64) *sdktrace.TracerProvider {
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(NewLogSpanExporter(log)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
	)
}

var _ sdktrace.SpanExporter = (*LogSpanExporter)(nil)

// LogSpanExporter writes finished spans to a zap logger named "trace".
type LogSpanExporter struct {
	log *zap.Logger

	mu      sync.Mutex
	stopped bool
}

// NewLogSpanExporter returns an exporter logging at info level.
func NewLogSpanExporter(log *zap.Logger) *LogSpanExporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSpanExporter{log: log.Named("trace")}
}

// ExportSpans implements sdktrace.SpanExporter. Spans arriving after Shutdown
// are dropped.
func (e *LogSpanExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return nil
	}
	for _, s := range spans {
		if err := ctx.Err(); err != nil {
			return err
		}
		sc := s.SpanContext()
		fields := []zap.Field{
			zap.String("span", s.Name()),
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
			zap.Duration("duration", s.EndTime().Sub(s.StartTime())),
			zap.String("status", s.Status().Code.String()),
		}
		if d := s.Status().Description; d != "" {
			fields = append(fields, zap.String("error", d))
		}
		for _, kv := range s.Attributes() {
			fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
		}
		e.log.Info("span", fields...)
	}
	return nil
}

// Shutdown implements sdktrace.SpanExporter.
func (e *LogSpanExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	return nil
}
