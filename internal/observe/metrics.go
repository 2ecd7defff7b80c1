// Package observe holds the OpenTelemetry instruments recorded by the bridge.
//
// Tests should use [NewMetrics] with their own [metric.MeterProvider] so
// counts do not leak between tests.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope name used for all bridge metrics.
const meterName = "github.com/rbright/dsnbridge"

// Instrument names.
const (
	MetricProtocolLines      = "dsnbridge.protocol.lines"
	MetricRecognitions       = "dsnbridge.recognition.outcomes"
	MetricConfidence         = "dsnbridge.recognition.confidence"
	MetricDeviceLosses       = "dsnbridge.audio.device_losses"
	MetricRecognizerRestarts = "dsnbridge.recognizer.restarts"
)

// Outcome labels for RecordRecognition.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeDropped  = "dropped"
)

// Metrics holds all instruments. A nil *Metrics records nothing.
type Metrics struct {
	// ProtocolLines counts stdio lines. Attributes: direction (in|out), kind.
	ProtocolLines metric.Int64Counter

	// Recognitions counts engine results. Attributes: mode, outcome.
	Recognitions metric.Int64Counter

	// Confidence records the confidence of every engine result.
	Confidence metric.Float64Histogram

	DeviceLosses       metric.Int64Counter
	RecognizerRestarts metric.Int64Counter
}

var confidenceBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ProtocolLines, err = m.Int64Counter(MetricProtocolLines,
		metric.WithDescription("Protocol lines read from stdin and written to stdout by kind."),
	); err != nil {
		return nil, err
	}
	if met.Recognitions, err = m.Int64Counter(MetricRecognitions,
		metric.WithDescription("Recognition results by mode and outcome."),
	); err != nil {
		return nil, err
	}
	if met.Confidence, err = m.Float64Histogram(MetricConfidence,
		metric.WithDescription("Confidence of recognition results."),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DeviceLosses, err = m.Int64Counter(MetricDeviceLosses,
		metric.WithDescription("Audio stream stops that sent the recognizer into device wait."),
	); err != nil {
		return nil, err
	}
	if met.RecognizerRestarts, err = m.Int64Counter(MetricRecognizerRestarts,
		metric.WithDescription("Recognition restarts replayed after a device came back."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Nop returns instruments backed by a no-op provider.
func Nop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

// RecordLine counts one protocol line.
func (m *Metrics) RecordLine(ctx context.Context, direction, kind string) {
	if m == nil {
		return
	}
	m.ProtocolLines.Add(ctx, 1, metric.WithAttributes(
		attribute.String("direction", direction),
		attribute.String("kind", kind),
	))
}

// RecordRecognition counts one engine result and its confidence.
func (m *Metrics) RecordRecognition(ctx context.Context, mode, outcome string, confidence float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	m.Recognitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("outcome", outcome),
	))
	m.Confidence.Record(ctx, confidence, attrs)
}

func (m *Metrics) RecordDeviceLoss(ctx context.Context) {
	if m == nil {
		return
	}
	m.DeviceLosses.Add(ctx, 1)
}

func (m *Metrics) RecordRestart(ctx context.Context) {
	if m == nil {
		return
	}
	m.RecognizerRestarts.Add(ctx, 1)
}
