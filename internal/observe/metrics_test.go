package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"visualizer/internal/analysis"
	"visualizer/internal/frame"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
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

func sumInt(t *testing.T, rm metricdata.ResourceMetrics, name string) map[attribute.Distinct]int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is %T, want Sum[int64]", name, m.Data)
	}
	out := make(map[attribute.Distinct]int64)
	for _, dp := range sum.DataPoints {
		out[dp.Attributes.Equivalent()] = dp.Value
	}
	return out
}

func gaugeValue(t *testing.T, rm metricdata.ResourceMetrics, name string) float64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		t.Fatalf("metric %q not found", name)
	}
	g, ok := m.Data.(metricdata.Gauge[float64])
	if !ok || len(g.DataPoints) != 1 {
		t.Fatalf("metric %q = %#v", name, m.Data)
	}
	return g.DataPoints[0].Value
}

// distinct returns the equivalence key of the set built from kvs.
func distinct(kvs ...attribute.KeyValue) attribute.Distinct {
	s := attribute.NewSet(kvs...)
	return s.Equivalent()
}

func TestRecordCycle(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCycle(ctx, &analysis.AudioParameters{Amplitude: 0.1, BPM: 120}, 2*time.Millisecond)
	m.RecordCycle(ctx, &analysis.AudioParameters{Beat: true, BeatFlux: true, BPM: 124, TempoConfidence: 0.8, Amplitude: 0.4}, 3*time.Millisecond)
	m.RecordCycle(ctx, &analysis.AudioParameters{BeatFlux: true, BPM: 126, TempoConfidence: 0.9, Amplitude: 0.3}, time.Millisecond)
	m.RecordIdle(ctx)

	rm := collect(t, reader)

	cycles := sumInt(t, rm, "visualizer.analysis.cycles")
	if got := cycles[distinct()]; got != 3 {
		t.Errorf("cycles = %d, want 3", got)
	}
	idle := sumInt(t, rm, "visualizer.analysis.idle_ticks")
	if got := idle[distinct()]; got != 1 {
		t.Errorf("idle ticks = %d, want 1", got)
	}

	beats := sumInt(t, rm, "visualizer.analysis.beats")
	energy := distinct(attribute.String("detector", "energy"))
	flux := distinct(attribute.String("detector", "flux"))
	if beats[energy] != 1 || beats[flux] != 2 {
		t.Errorf("beats = energy %d flux %d, want 1 and 2", beats[energy], beats[flux])
	}

	if got := gaugeValue(t, rm, "visualizer.tempo.bpm"); got != 126 {
		t.Errorf("bpm gauge = %v, want last value 126", got)
	}
	if got := gaugeValue(t, rm, "visualizer.tempo.confidence"); got != 0.9 {
		t.Errorf("confidence gauge = %v", got)
	}

	hm := findMetric(rm, "visualizer.analysis.cycle.duration")
	if hm == nil {
		t.Fatal("cycle duration histogram not found")
	}
	hist := hm.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 3 {
		t.Fatalf("histogram datapoints = %+v", hist.DataPoints)
	}
	if got := hist.DataPoints[0].Sum; got < 0.0059 || got > 0.0061 {
		t.Errorf("histogram sum = %v, want 0.006", got)
	}
}

func TestObserveChannel(t *testing.T) {
	m, reader := newTestMetrics(t)
	ch := frame.MustNewChannel(2)
	if err := m.ObserveChannel(ch); err != nil {
		t.Fatalf("ObserveChannel: %v", err)
	}

	block := &frame.SampleBlock{Samples: make([]float32, 4), SampleRate: 8000, Channels: 1}
	for range 5 {
		ch.Push(block)
	}

	rm := collect(t, reader)
	none := distinct()
	if got := sumInt(t, rm, "visualizer.capture.blocks")[none]; got != 5 {
		t.Errorf("blocks = %d, want 5", got)
	}
	if got := sumInt(t, rm, "visualizer.capture.overwrites")[none]; got != 3 {
		t.Errorf("overwrites = %d, want 3", got)
	}
	depth := findMetric(rm, "visualizer.capture.queue_depth")
	if depth == nil {
		t.Fatal("queue depth not found")
	}
	if g := depth.Data.(metricdata.Gauge[int64]); len(g.DataPoints) != 1 || g.DataPoints[0].Value != 2 {
		t.Errorf("queue depth = %+v, want 2", g.DataPoints)
	}
}

func TestRunnerReportsToMetrics(t *testing.T) {
	m, reader := newTestMetrics(t)

	ch := frame.MustNewChannel(4)
	p, err := analysis.NewPipeline(analysis.DefaultPipelineConfig())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	r, err := analysis.NewRunner(ch, p, analysis.DefaultFrameRate, nil, analysis.WithRecorder(m))
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}

	ch.Push(&frame.SampleBlock{Samples: make([]float32, 1024), SampleRate: 44100, Channels: 1})
	r.Step(context.Background())
	r.Step(context.Background())

	rm := collect(t, reader)
	none := distinct()
	if got := sumInt(t, rm, "visualizer.analysis.cycles")[none]; got != 1 {
		t.Errorf("cycles = %d, want 1", got)
	}
	if got := sumInt(t, rm, "visualizer.analysis.idle_ticks")[none]; got != 1 {
		t.Errorf("idle = %d, want 1", got)
	}
}
