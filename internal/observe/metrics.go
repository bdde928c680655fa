// Package observe provides observability for the visualizer: OpenTelemetry
// metrics for the analysis loop, a Prometheus exporter bridge, and an HTTP
// server exposing /metrics, /healthz and /readyz.
//
// Tests should build [Metrics] with [NewMetrics] over an SDK MeterProvider
// backed by a ManualReader to inspect recorded values.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"visualizer/internal/analysis"
	"visualizer/internal/frame"
)

// meterName is the instrumentation scope name used for all visualizer metrics.
const meterName = "visualizer"

var (
	energyAttrs = metric.WithAttributeSet(attribute.NewSet(attribute.String("detector", "energy")))
	fluxAttrs   = metric.WithAttributeSet(attribute.NewSet(attribute.String("detector", "flux")))
)

// cycleBuckets are histogram boundaries in seconds. A cycle at 60Hz has a
// 16.7ms budget.
var cycleBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.0167, 0.025, 0.05,
}

// Metrics holds the instruments for the analysis loop. It implements
// analysis.CycleRecorder.
type Metrics struct {
	meter metric.Meter

	Cycles          metric.Int64Counter
	IdleTicks       metric.Int64Counter
	Beats           metric.Int64Counter // detector=energy|flux
	CycleDuration   metric.Float64Histogram
	BPM             metric.Float64Gauge
	TempoConfidence metric.Float64Gauge
	Amplitude       metric.Float64Gauge
}

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{meter: m}

	if met.Cycles, err = m.Int64Counter("visualizer.analysis.cycles",
		metric.WithDescription("Analysis cycles that consumed a sample block."),
	); err != nil {
		return nil, err
	}
	if met.IdleTicks, err = m.Int64Counter("visualizer.analysis.idle_ticks",
		metric.WithDescription("Consumer ticks that found no sample block waiting."),
	); err != nil {
		return nil, err
	}
	if met.Beats, err = m.Int64Counter("visualizer.analysis.beats",
		metric.WithDescription("Detected onsets by detector."),
	); err != nil {
		return nil, err
	}
	if met.CycleDuration, err = m.Float64Histogram("visualizer.analysis.cycle.duration",
		metric.WithDescription("Time spent analysing one sample block."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(cycleBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BPM, err = m.Float64Gauge("visualizer.tempo.bpm",
		metric.WithDescription("Current tempo estimate."),
	); err != nil {
		return nil, err
	}
	if met.TempoConfidence, err = m.Float64Gauge("visualizer.tempo.confidence",
		metric.WithDescription("Confidence of the tempo estimate in [0, 1]."),
	); err != nil {
		return nil, err
	}
	if met.Amplitude, err = m.Float64Gauge("visualizer.analysis.amplitude",
		metric.WithDescription("RMS amplitude of the last analysed block."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// RecordCycle implements analysis.CycleRecorder.
func (m *Metrics) RecordCycle(ctx context.Context, p *analysis.AudioParameters, elapsed time.Duration) {
	m.Cycles.Add(ctx, 1)
	m.CycleDuration.Record(ctx, elapsed.Seconds())
	if p.Beat {
		m.Beats.Add(ctx, 1, energyAttrs)
	}
	if p.BeatFlux {
		m.Beats.Add(ctx, 1, fluxAttrs)
	}
	m.BPM.Record(ctx, p.BPM)
	m.TempoConfidence.Record(ctx, p.TempoConfidence)
	m.Amplitude.Record(ctx, p.Amplitude)
}

// RecordIdle implements analysis.CycleRecorder.
func (m *Metrics) RecordIdle(ctx context.Context) {
	m.IdleTicks.Add(ctx, 1)
}

// ObserveChannel exports the frame channel's push and overwrite counters,
// read at collection time.
func (m *Metrics) ObserveChannel(ch *frame.Channel) error {
	pushed, err := m.meter.Int64ObservableCounter("visualizer.capture.blocks",
		metric.WithDescription("Sample blocks published by the capture side."),
	)
	if err != nil {
		return err
	}
	overwrites, err := m.meter.Int64ObservableCounter("visualizer.capture.overwrites",
		metric.WithDescription("Unread sample blocks overwritten because the consumer fell behind."),
	)
	if err != nil {
		return err
	}
	depth, err := m.meter.Int64ObservableGauge("visualizer.capture.queue_depth",
		metric.WithDescription("Unread sample blocks waiting for the consumer."),
	)
	if err != nil {
		return err
	}

	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(pushed, int64(ch.Pushed()))
		o.ObserveInt64(overwrites, int64(ch.Overwrites()))
		o.ObserveInt64(depth, int64(ch.Len()))
		return nil
	}, pushed, overwrites, depth)
	return err
}

var _ analysis.CycleRecorder = (*Metrics)(nil)
