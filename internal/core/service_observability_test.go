package core

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type captureLogger struct{ calls []string }

func (c *captureLogger) Debug(msg string, _ ...any) { c.calls = append(c.calls, "d:"+msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.calls = append(c.calls, "i:"+msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.calls = append(c.calls, "w:"+msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.calls = append(c.calls, "e:"+msg) }

func (c *captureLogger) has(prefix string) bool {
	for _, call := range c.calls {
		if strings.HasPrefix(call, prefix) {
			return true
		}
	}
	return false
}

type captureAuditRecorder struct{ entries []AuditEntry }

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus) bool {
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			return true
		}
	}
	return false
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct{ calls []metricsCall }

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct{ ended []spanRecord }

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

func TestServiceObservabilitySignals(t *testing.T) {
	ctx := context.Background()
	audit := &captureAuditRecorder{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	fixed := time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC)

	svc := NewInMemoryService(NewRulesEngine(),
		WithAuditRecorder(audit),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithClock(ClockFunc(func() time.Time { return fixed })),
	)

	client, _, err := svc.CreateClient(ctx, Client{Name: "Acme"})
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	if !audit.has("create_client", AuditStatusSuccess) {
		t.Fatalf("expected audit success for create_client")
	}
	for _, entry := range audit.entries {
		if entry.Operation == "create_client" {
			if entry.EntityID != client.ID || entry.Entity != EntityClient || entry.Action != ActionCreate {
				t.Fatalf("unexpected audit metadata: %+v", entry)
			}
			if !entry.Timestamp.Equal(fixed) {
				t.Fatalf("expected clock-driven timestamp, got %v", entry.Timestamp)
			}
		}
	}
	if !metrics.has("create_client", true) {
		t.Fatalf("expected metrics success for create_client")
	}

	if _, _, err := svc.UpdateProject(ctx, "ghost", func(*Project) {}); err == nil {
		t.Fatalf("expected update of unknown project to fail")
	}
	if !audit.has("update_project", AuditStatusError) {
		t.Fatalf("expected audit error for update_project")
	}
	if !metrics.has("update_project", false) {
		t.Fatalf("expected metrics error for update_project")
	}
	var failed bool
	for _, record := range tracer.ended {
		if record.op == "update_project" && record.err != nil {
			failed = true
		}
	}
	if !failed {
		t.Fatalf("expected failed trace span for update_project")
	}
}

func TestServiceErrorLogging(t *testing.T) {
	log := &captureLogger{}
	svc := NewInMemoryService(NewRulesEngine(), WithLogger(log))
	if _, _, err := svc.UpdateJob(context.Background(), "missing", func(*Job) {}); err == nil {
		t.Fatalf("expected error updating missing job")
	}
	if !log.has("e:") {
		t.Fatalf("expected error log entry, got %v", log.calls)
	}
}

func TestNoopDefaults(t *testing.T) {
	opts := defaultServiceOptions()
	if opts.clock == nil || opts.logger == nil || opts.audit == nil || opts.metrics == nil || opts.tracer == nil {
		t.Fatalf("expected defaults populated")
	}
	if opts.debounce != defaultTextDebounce {
		t.Fatalf("unexpected default debounce %v", opts.debounce)
	}
	opts.logger.Debug("d")
	opts.logger.Info("i")
	opts.logger.Warn("w")
	opts.logger.Error("e")
	opts.audit.Record(context.Background(), AuditEntry{})
	opts.metrics.Observe(context.Background(), "noop", true, 0)
	_, span := opts.tracer.Start(context.Background(), "noop")
	span.End(nil)
}

func TestClockFuncFallsBackToUTCNow(t *testing.T) {
	got := ClockFunc(nil).Now()
	if got.IsZero() || got.Location() != time.UTC {
		t.Fatalf("unexpected fallback time %v", got)
	}
	fixed := time.Date(2026, 7, 4, 12, 0, 0, 0, time.FixedZone("offset", -5*3600))
	if got := ClockFunc(func() time.Time { return fixed }).Now(); !got.Equal(fixed) || got.Location() != time.UTC {
		t.Fatalf("expected UTC-normalized delegate, got %v", got)
	}
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	rec.Observe(context.Background(), "create_client", true, 10*time.Millisecond)
	rec.Observe(context.Background(), "create_client", false, 5*time.Millisecond)
	rec.Observe(context.Background(), "", true, time.Millisecond)

	snap := rec.Snapshot()
	if snap.Results["create_client"]["success"] != 1 || snap.Results["create_client"]["error"] != 1 {
		t.Fatalf("unexpected results: %+v", snap.Results)
	}
	if snap.DurationsMS["create_client"] < 14 {
		t.Fatalf("unexpected durations: %+v", snap.DurationsMS)
	}
	if rec.Name() == "" {
		t.Fatalf("expected generated name")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	rec.Observe(context.Background(), "create_client", true, 20*time.Millisecond)
	rec.Observe(context.Background(), "create_client", false, 5*time.Millisecond)

	if got := testutil.ToFloat64(rec.results.WithLabelValues("create_client", "success")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(rec.results.WithLabelValues("create_client", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}

	// Double registration is rejected by the registry.
	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)

	_, span := tracer.Start(context.Background(), "create_client")
	span.End(nil)
	_, span = tracer.Start(context.Background(), "update_client")
	span.End(context.DeadlineExceeded)

	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(entries))
	}
	if entries[0].Status != "success" || entries[1].Status != "error" {
		t.Fatalf("unexpected statuses: %+v", entries)
	}
	if !strings.Contains(buf.String(), `"operation":"update_client"`) {
		t.Fatalf("expected encoded span, got %q", buf.String())
	}
}
