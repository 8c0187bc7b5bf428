package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestNewMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordTurn(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTurn(ctx, "reply", OutcomeCompleted, 2*time.Second)
	m.RecordTurn(ctx, "reply", OutcomeCompleted, 3*time.Second)
	m.RecordTurn(ctx, "reply", OutcomeInterrupted, time.Second)

	rm := collect(t, reader)

	turns := findMetric(rm, "ezs2t.turns")
	if turns == nil {
		t.Fatal("ezs2t.turns not found")
	}
	sum, ok := turns.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("Expected Sum[int64], got %T", turns.Data)
	}

	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
		counts[outcome.AsString()] = dp.Value
	}
	if counts[OutcomeCompleted] != 2 {
		t.Errorf("Expected 2 completed turns, got %d", counts[OutcomeCompleted])
	}
	if counts[OutcomeInterrupted] != 1 {
		t.Errorf("Expected 1 interrupted turn, got %d", counts[OutcomeInterrupted])
	}

	dur := findMetric(rm, "ezs2t.turn.duration")
	if dur == nil {
		t.Fatal("ezs2t.turn.duration not found")
	}
	hist, ok := dur.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("Expected Histogram[float64], got %T", dur.Data)
	}
	var total uint64
	for _, dp := range hist.DataPoints {
		total += dp.Count
	}
	if total != 3 {
		t.Errorf("Expected 3 duration observations, got %d", total)
	}
}

func TestCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.DegradedResponses.Add(ctx, 1)
	m.RemoteErrors.Add(ctx, 2)
	m.TransportFailures.Add(ctx, 3)
	m.ActiveTurns.Add(ctx, 1)
	m.ActiveTurns.Add(ctx, -1)

	rm := collect(t, reader)

	tests := []struct {
		name     string
		expected int64
	}{
		{"ezs2t.responses.degraded", 1},
		{"ezs2t.remote.errors", 2},
		{"ezs2t.transport.failures", 3},
		{"ezs2t.turns.active", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			met := findMetric(rm, tt.name)
			if met == nil {
				t.Fatalf("%s not found", tt.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok || len(sum.DataPoints) != 1 {
				t.Fatalf("Unexpected data: %T", met.Data)
			}
			if sum.DataPoints[0].Value != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, sum.DataPoints[0].Value)
			}
		})
	}
}

func TestWithTrace(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	// No span: logger unchanged
	if WithTrace(context.Background(), log) != log {
		t.Error("Expected the same logger without an active span")
	}

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	ctx, span := tp.Tracer("test").Start(context.Background(), "turn")
	defer span.End()

	WithTrace(ctx, log).Info("hello")

	out := buf.String()
	if !strings.Contains(out, "trace_id="+span.SpanContext().TraceID().String()) {
		t.Errorf("Expected trace_id in %q", out)
	}
	if !strings.Contains(out, "span_id=") {
		t.Errorf("Expected span_id in %q", out)
	}
}
