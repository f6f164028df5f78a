package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"workpal/pkg/domain"
)

type captureAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAudit) Record(_ context.Context, e AuditEntry) {
	c.mu.Lock()
	c.entries = append(c.entries, e)
	c.mu.Unlock()
}

func (c *captureAudit) all() []AuditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]AuditEntry(nil), c.entries...)
}

func TestAuditEntriesForIntents(t *testing.T) {
	audit := &captureAudit{}
	fixed := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f := newFixture(t, WithAuditRecorder(audit), WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	_, _ = f.svc.Execute(ctx, domain.Intent{Action: "DELETE", Department: "HR", Table: "Employees", Selector: map[string]domain.Value{"dept": text("Ops")}})
	_, _ = f.svc.Execute(ctx, domain.Intent{Action: "PURGE", Department: "hr"})
	_, _ = f.svc.Execute(ctx, domain.Intent{Action: "TEMPLATE", Department: "hr"})

	entries := audit.all()
	if len(entries) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(entries))
	}
	first := entries[0]
	if first.Status != AuditStatusSuccess || first.AffectedCount != 1 || first.Department != "hr" || first.Table != "Employees" || !first.OccurredAt.Equal(fixed) {
		t.Fatalf("unexpected success entry %+v", first)
	}
	if first.ID == "" || first.ID == entries[1].ID {
		t.Fatalf("audit ids must be unique")
	}
	if entries[1].Status != AuditStatusError || entries[1].Kind != string(domain.ErrKindUnknownAction) {
		t.Fatalf("unexpected rejection entry %+v", entries[1])
	}
	if entries[2].Status != AuditStatusError || entries[2].Kind != string(domain.ErrKindNotFound) {
		t.Fatalf("failed results are audited as errors: %+v", entries[2])
	}
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	f := newFixture(t, WithMetricsRecorder(rec))
	ctx := context.Background()
	_, _ = f.svc.Execute(ctx, domain.Intent{Action: "READ", Department: "hr", Table: "Employees"})
	_, _ = f.svc.Execute(ctx, domain.Intent{Action: "READ", Department: "hr", Table: "Missing"})
	_, _ = f.svc.SetupDepartments(ctx, []string{"Legal"})

	snap := rec.Snapshot()
	if snap.Results["execute_intent"]["success"] != 1 || snap.Results["execute_intent"]["error"] != 1 {
		t.Fatalf("unexpected execute counters %+v", snap.Results)
	}
	if snap.Results["setup_departments"]["success"] != 1 {
		t.Fatalf("setup not observed: %+v", snap.Results)
	}
	if rec.Name() == NewExpvarMetricsRecorder("").Name() {
		t.Fatalf("generated expvar names must be unique")
	}
}

func TestJSONTracer(t *testing.T) {
	tracer := NewJSONTracer(nil)
	f := newFixture(t, WithTracer(tracer))
	_, _ = f.svc.Execute(context.Background(), domain.Intent{Action: "READ", Department: "nowhere"})

	entries := tracer.Entries()
	if len(entries) != 1 || entries[0].Operation != "execute_intent" || entries[0].Status != "error" || entries[0].Error == "" {
		t.Fatalf("unexpected spans %+v", entries)
	}
}

func TestJSONTracerWritesLines(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	f := newFixture(t, WithTracer(tracer))
	_, _ = f.svc.Execute(context.Background(), domain.Intent{Action: "READ", Department: "hr", Table: "Employees"})

	var decoded JSONTraceEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("span line is not json: %v", err)
	}
	if decoded.Operation != "execute_intent" || decoded.Status != "success" {
		t.Fatalf("unexpected decoded span %+v", decoded)
	}
	if len(tracer.Entries()) != 0 {
		t.Fatalf("a writing tracer must not retain spans")
	}
}

func TestLogAuditRecorder(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	rec := NewLogAuditRecorder(zap.New(core))
	rec.Record(context.Background(), AuditEntry{ID: "1", Operation: "execute_intent", Status: AuditStatusError, Kind: "busy", Error: "table is busy"})
	rec.Record(context.Background(), AuditEntry{ID: "2", Operation: "upload_rules", Status: AuditStatusSuccess, Department: "hr"})

	got := logs.FilterLoggerName("audit").All()
	if len(got) != 2 {
		t.Fatalf("expected 2 audit log lines, got %d", len(got))
	}
	if got[0].ContextMap()["kind"] != "busy" {
		t.Fatalf("error entries carry their kind: %v", got[0].ContextMap())
	}
	if got[1].ContextMap()["department"] != "hr" {
		t.Fatalf("department missing: %v", got[1].ContextMap())
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := newFixture(t, WithMetricsRecorder(NewPrometheusMetricsRecorder(reg)))
	ctx := context.Background()
	_, _ = f.svc.Execute(ctx, domain.Intent{Action: "READ", Department: "hr", Table: "Employees"})
	_, _ = f.svc.Execute(ctx, domain.Intent{Action: "READ", Department: "hr", Table: "Employees"})
	_, _ = f.svc.Execute(ctx, domain.Intent{Action: "READ", Department: "legal", Table: "Employees"})

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	counts := map[string]float64{}
	var histograms uint64
	for _, mf := range families {
		switch mf.GetName() {
		case "workpal_engine_operations_total":
			for _, m := range mf.GetMetric() {
				var status string
				for _, l := range m.GetLabel() {
					if l.GetName() == "status" {
						status = l.GetValue()
					}
				}
				counts[status] += m.GetCounter().GetValue()
			}
		case "workpal_engine_operation_duration_seconds":
			for _, m := range mf.GetMetric() {
				histograms += m.GetHistogram().GetSampleCount()
			}
		}
	}
	if counts["success"] != 2 || counts["error"] != 1 {
		t.Fatalf("unexpected counters %v", counts)
	}
	if histograms != 3 {
		t.Fatalf("expected 3 latency samples, got %d", histograms)
	}
}

func TestOTelTracer(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	f := newFixture(t, WithTracer(NewOTelTracer(tp)), WithLockTimeout(10*time.Millisecond))
	ctx := context.Background()
	_, _ = f.svc.Execute(ctx, domain.Intent{Action: "READ", Department: "hr", Table: "Employees"})

	release, _ := f.svc.Guard().Acquire(ctx, keyFor("hr", "Employees"))
	_, err := f.svc.Execute(ctx, domain.Intent{Action: "READ", Department: "hr", Table: "Employees"})
	release()
	if !errors.Is(err, domain.ErrBusy) {
		t.Fatalf("expected busy, got %v", err)
	}

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "execute_intent" || spans[0].Status().Code != codes.Ok {
		t.Fatalf("unexpected first span %s %v", spans[0].Name(), spans[0].Status())
	}
	if spans[1].Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", spans[1].Status())
	}
	var kind string
	for _, kv := range spans[1].Attributes() {
		if kv.Key == "workpal.error_kind" {
			kind = kv.Value.AsString()
		}
	}
	if kind != string(domain.ErrKindBusy) {
		t.Fatalf("expected busy error kind attribute, got %q", kind)
	}
}

func TestLogTracerProviderExportsThroughZap(t *testing.T) {
	obs, logs := observer.New(zapcore.InfoLevel)
	tp := NewLogTracerProvider(zap.New(obs), 0)
	f := newFixture(t, WithTracer(NewOTelTracer(tp)))
	ctx := context.Background()
	_, _ = f.svc.Execute(ctx, domain.Intent{Action: "READ", Department: "hr", Table: "Employees"})
	_, _ = f.svc.Execute(ctx, domain.Intent{Action: "READ", Department: "nowhere"})
	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	got := logs.FilterLoggerName("trace").All()
	if len(got) != 2 {
		t.Fatalf("expected 2 exported spans, got %d", len(got))
	}
	first, second := got[0].ContextMap(), got[1].ContextMap()
	if first["span"] != "execute_intent" || first["status"] != "Ok" || first["trace_id"] == "" {
		t.Fatalf("unexpected first span %v", first)
	}
	if second["status"] != "Error" || second["workpal.error_kind"] != string(domain.ErrKindUnknownDepartment) {
		t.Fatalf("unexpected failed span %v", second)
	}
}

func TestLogSpanExporterDropsAfterShutdown(t *testing.T) {
	obs, logs := observer.New(zapcore.InfoLevel)
	exp := NewLogSpanExporter(zap.New(obs))
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	_, span := tp.Tracer("t").Start(context.Background(), "late")
	span.End()
	_ = exp.Shutdown(context.Background())
	if err := exp.ExportSpans(context.Background(), sr.Ended()); err != nil {
		t.Fatalf("export after shutdown: %v", err)
	}
	if logs.Len() != 0 {
		t.Fatalf("expected no log lines after shutdown, got %d", logs.Len())
	}
}
