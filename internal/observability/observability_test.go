package observability

import (
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.ObserveRequest("simulate", "ok", 20*time.Millisecond)
	c.ObserveRequest("simulate", "status_error", time.Millisecond)
	c.ObserveRecompute("factors", "ok")
	c.ObserveStale("routes")
	c.SetLedgerSize(7)

	if got := testutil.ToFloat64(c.GatewayRequests.WithLabelValues("simulate", "ok")); got != 1 {
		t.Fatalf("gateway ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Recomputes.WithLabelValues("factors", "ok")); got != 1 {
		t.Fatalf("recomputes = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.StaleTransitions.WithLabelValues("routes")); got != 1 {
		t.Fatalf("stale = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.LedgerEntries); got != 7 {
		t.Fatalf("ledger gauge = %v, want 7", got)
	}
}

func TestCollectorReRegisterReusesExisting(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second registration failed: %v", err)
	}
	second.ObserveStale("factors")
	if got := testutil.ToFloat64(first.StaleTransitions.WithLabelValues("factors")); got != 1 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveRequest("routes", "ok", time.Millisecond)
	c.ObserveRecompute("geo_action", "error")
	c.SetClients(2)
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, _ := NewCollector(reg)
	c.ObserveRecompute("route_mode", "ok")

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rr.Body.String(), "tradesim_recomputes_total") {
		t.Fatalf("metrics output missing counter: %s", rr.Body.String())
	}
}

func TestInitTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := InitTracing(context.Background(), TracingConfig{
		Enabled: true, ServiceName: "tradesim-test", Exporter: "stdout", SampleRatio: 1, Writer: &buf,
	}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := otel.Tracer("test").Start(context.Background(), "gateway.routes")
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)
	if !strings.Contains(buf.String(), "gateway.routes") {
		t.Fatalf("expected span in exporter output, got %q", buf.String())
	}

	if _, err := InitTracing(context.Background(), TracingConfig{Enabled: true, Exporter: "zipkin", Writer: io.Discard}, nil); err == nil {
		t.Fatalf("expected unsupported exporter error")
	}
	noopShutdown, err := InitTracing(context.Background(), TracingConfig{}, nil)
	if err != nil || noopShutdown(context.Background()) != nil {
		t.Fatalf("disabled tracing should be a noop")
	}
}
