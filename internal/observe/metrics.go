// Package observe provides OpenTelemetry metrics and tracing for voice turns.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus via [InitProvider]; the status server serves them on /metrics.
// Tests should use [NewMetrics] with a ManualReader-backed provider.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/yok-tottii/EzS2T-Realtime"

// Turn outcomes recorded on the turns counter.
const (
	OutcomeCompleted   = "completed"
	OutcomeInterrupted = "interrupted"
	OutcomeNoInput     = "no_input"
	OutcomeFailed      = "failed"
)

// Metrics holds all metric instruments. Safe for concurrent use.
type Metrics struct {
	// TurnDuration spans from listening to the end of the response
	TurnDuration metric.Float64Histogram

	// UtteranceDuration is the captured audio length
	UtteranceDuration metric.Float64Histogram

	// ResponseLatency is submit to first response event
	ResponseLatency metric.Float64Histogram

	// Turns counts finished turns. Use with attributes:
	//   attribute.String("strategy", ...), attribute.String("outcome", ...)
	Turns metric.Int64Counter

	// DegradedResponses counts responses missing text or audio
	DegradedResponses metric.Int64Counter

	// RemoteErrors counts error events sent by the server
	RemoteErrors metric.Int64Counter

	// TransportFailures counts dropped or failed connections
	TransportFailures metric.Int64Counter

	// ActiveTurns is 1 while a turn is running
	ActiveTurns metric.Int64UpDownCounter
}

// latencyBuckets in seconds, sized for speech turns.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates all instruments on mp
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnDuration, err = m.Float64Histogram("ezs2t.turn.duration",
		metric.WithDescription("Wall time of a voice turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.UtteranceDuration, err = m.Float64Histogram("ezs2t.utterance.duration",
		metric.WithDescription("Length of captured utterances."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ResponseLatency, err = m.Float64Histogram("ezs2t.response.latency",
		metric.WithDescription("Time from submit to the first response event."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Turns, err = m.Int64Counter("ezs2t.turns",
		metric.WithDescription("Finished turns by strategy and outcome."),
	); err != nil {
		return nil, err
	}
	if met.DegradedResponses, err = m.Int64Counter("ezs2t.responses.degraded",
		metric.WithDescription("Responses that finished without text or audio."),
	); err != nil {
		return nil, err
	}
	if met.RemoteErrors, err = m.Int64Counter("ezs2t.remote.errors",
		metric.WithDescription("Error events received from the realtime server."),
	); err != nil {
		return nil, err
	}
	if met.TransportFailures, err = m.Int64Counter("ezs2t.transport.failures",
		metric.WithDescription("Realtime connection failures."),
	); err != nil {
		return nil, err
	}

	if met.ActiveTurns, err = m.Int64UpDownCounter("ezs2t.turns.active",
		metric.WithDescription("Turns currently in progress."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordTurn counts a finished turn and its duration
func (m *Metrics) RecordTurn(ctx context.Context, strategy, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	)
	m.Turns.Add(ctx, 1, attrs)
	m.TurnDuration.Record(ctx, d.Seconds(), attrs)
}
