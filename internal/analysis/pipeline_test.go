// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"visualizer/internal/frame"
	"visualizer/pkg/utils"
)

func newTestPipeline(t *testing.T, mutate func(*PipelineConfig)) *Pipeline {
	t.Helper()
	cfg := DefaultPipelineConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return p
}

func TestNewPipeline_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PipelineConfig)
		want   error
	}{
		{"window size", func(c *PipelineConfig) { c.WindowSize = 1000 }, ErrWindowSize},
		{"sample rate", func(c *PipelineConfig) { c.SampleRate = 0 }, ErrSampleRate},
		{"energy sensitivity", func(c *PipelineConfig) { c.EnergySensitivity = 0 }, ErrSensitivity},
		{"flux cooldown", func(c *PipelineConfig) { c.FluxCooldown = -1 }, ErrCooldown},
		{"tempo range", func(c *PipelineConfig) { c.MinBPM, c.MaxBPM = 200, 60 }, ErrTempoRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPipelineConfig()
			tt.mutate(&cfg)
			if _, err := NewPipeline(cfg); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPipeline_QuietThenLoudIsABeat(t *testing.T) {
	p := newTestPipeline(t, nil)
	quiet := utils.SineBlock(testWindowSize, testSampleRate, 440, 0.1, 1)
	loud := utils.SineBlock(testWindowSize, testSampleRate, 440, 1.0, 1)

	for i := range 5 {
		params := p.Cycle(at(i*16), quiet)
		if params.Beat {
			t.Fatalf("quiet cycle %d reported a beat", i)
		}
	}

	params := p.Cycle(at(5*16), loud)
	if !params.Beat {
		t.Fatal("loud block after quiet run did not register a beat")
	}
	if params.TempoConfidence != 0 {
		t.Errorf("TempoConfidence = %v after a single beat, want 0", params.TempoConfidence)
	}
	if params.BPM != DefaultBPM {
		t.Errorf("BPM = %v, want default %v", params.BPM, DefaultBPM)
	}
	if params.Sequence != 6 {
		t.Errorf("Sequence = %d, want 6", params.Sequence)
	}
	if !params.Timestamp.Equal(at(80)) {
		t.Errorf("Timestamp = %v, want %v", params.Timestamp, at(80))
	}
}

func TestPipeline_SilenceWarmUpThenLoud(t *testing.T) {
	tests := []struct {
		frames int
		step   int // Milliseconds between cycles.
	}{
		{1024, 16},
		{1024, 23},
		{2048, 16},
		{2048, 23},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d frames every %dms", tt.frames, tt.step), func(t *testing.T) {
			p := newTestPipeline(t, nil)
			silent := utils.SilentBlock(tt.frames, testSampleRate, 1)
			quiet := utils.SineBlock(tt.frames, testSampleRate, 440, 0.1, 1)
			loud := utils.SineBlock(tt.frames, testSampleRate, 440, 0.5, 1)

			blocks := make([]*frame.SampleBlock, 0, 16)
			for range 10 {
				blocks = append(blocks, silent)
			}
			for range 5 {
				blocks = append(blocks, quiet)
			}
			blocks = append(blocks, loud)

			var params AudioParameters
			for i, b := range blocks {
				params = p.Cycle(at(i*tt.step), b)
			}

			if !params.Beat {
				t.Fatal("loud block after warm-up did not register a beat")
			}
			// The first quiet block is a spectral onset after silence.
			if got := p.tempo.Beats(); got != 2 {
				t.Errorf("tempo estimator holds %d beats, want 2", got)
			}
			if params.TempoConfidence != 0 {
				t.Errorf("TempoConfidence = %v with fewer than 3 beats, want 0", params.TempoConfidence)
			}
			if params.BPM != DefaultBPM {
				t.Errorf("BPM = %v, want default %v", params.BPM, DefaultBPM)
			}
		})
	}
}

func TestPipeline_ReturnsIndependentSlices(t *testing.T) {
	p := newTestPipeline(t, nil)
	first := p.Cycle(at(0), utils.SineBlock(testWindowSize, testSampleRate, 1000, 0.8, 2))
	snapshot := append([]float64(nil), first.Spectrum...)

	p.Cycle(at(16), utils.SineBlock(testWindowSize, testSampleRate, 8000, 0.8, 2))

	for i := range snapshot {
		if first.Spectrum[i] != snapshot[i] {
			t.Fatalf("Spectrum[%d] changed after the next cycle", i)
		}
	}
	if len(first.Waveform) != DefaultWaveformLength {
		t.Errorf("len(Waveform) = %d, want %d", len(first.Waveform), DefaultWaveformLength)
	}
}

func TestPipeline_RegularBeatsBuildTempo(t *testing.T) {
	p := newTestPipeline(t, nil)
	quiet := utils.SilentBlock(1024, testSampleRate, 1)
	loud := utils.SineBlock(1024, testSampleRate, 100, 1.0, 1)

	// 60Hz cycles with a hit every 30 cycles: 500ms apart, 120 BPM.
	var last AudioParameters
	beats := 0
	for i := range 30 * 6 {
		block := quiet
		if i%30 == 29 {
			block = loud
		}
		last = p.Cycle(epoch.Add(time.Duration(i)*time.Second/60), block)
		if last.Beat {
			beats++
		}
	}

	if beats < 3 {
		t.Fatalf("only %d beats detected", beats)
	}
	if last.BPM < 119 || last.BPM > 121 {
		t.Errorf("BPM = %v, want ~120", last.BPM)
	}
	if last.TempoConfidence < 0.99 {
		t.Errorf("TempoConfidence = %v, want ~1", last.TempoConfidence)
	}
}

func TestPipeline_GateSilencesQuietBlocks(t *testing.T) {
	p := newTestPipeline(t, func(c *PipelineConfig) { c.GateThreshold = 0.2 })
	block := utils.SineBlock(testWindowSize, testSampleRate, 1000, 0.1, 2)

	params := p.Cycle(at(0), block)
	if params.Amplitude != 0 || params.Mid != 0 {
		t.Errorf("gated block produced amplitude=%v mid=%v", params.Amplitude, params.Mid)
	}
	if len(params.Waveform) != DefaultWaveformLength {
		t.Errorf("len(Waveform) = %d, want %d", len(params.Waveform), DefaultWaveformLength)
	}

	p.Gate().Disable()
	if params := p.Cycle(at(16), block); params.Amplitude == 0 {
		t.Error("disabled gate still silenced the block")
	}
}

func TestPipeline_NilBlock(t *testing.T) {
	p := newTestPipeline(t, nil)
	params := p.Cycle(at(0), nil)
	if params.Beat || params.Amplitude != 0 || len(params.Spectrum) != DefaultWindowSize/2 {
		t.Errorf("unexpected params for nil block: %+v", params)
	}
}

func TestNoiseGate(t *testing.T) {
	quiet := utils.GenerateSineWave(256, testSampleRate, 440, 0.05)
	loud := utils.GenerateSineWave(256, testSampleRate, 440, 0.8)

	tests := []struct {
		desc      string
		samples   []float32
		enabled   bool
		threshold float64
		want      bool
	}{
		{"Gate disabled/Quiet signal", quiet, false, 0.1, true},
		{"Gate enabled/Zero threshold", quiet, true, 0, true},
		{"Gate enabled/Quiet signal/Mid threshold", quiet, true, 0.1, false},
		{"Gate enabled/Loud signal/Mid threshold", loud, true, 0.1, true},
		{"Gate enabled/Loud signal/Max threshold", loud, true, 1.0, false},
		{"Gate enabled/Negative peak", []float32{0, -0.5, 0}, true, 0.3, true},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			g := NewNoiseGate(tt.threshold)
			if !tt.enabled {
				g.Disable()
			}
			if got := g.Open(tt.samples); got != tt.want {
				t.Errorf("Open() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNoiseGateThresholdBoundaries(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{-0.1, 0.0},
		{0.0, 0.0},
		{0.5, 0.5},
		{1.0, 1.0},
		{1.5, 1.0},
	}

	g := NewNoiseGate(0)
	for _, tt := range tests {
		g.SetThreshold(tt.input)
		if got := g.Threshold(); got < tt.expected-0.001 || got > tt.expected+0.001 {
			t.Errorf("SetThreshold(%v): got %.3f, want %.3f", tt.input, got, tt.expected)
		}
	}
}

type recordingRecorder struct {
	mu     sync.Mutex
	cycles int
	idle   int
	beats  int
}

func (r *recordingRecorder) RecordCycle(_ context.Context, p *AudioParameters, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles++
	if p.Beat {
		r.beats++
	}
}

func (r *recordingRecorder) RecordIdle(context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idle++
}

type failingSink struct{ calls int }

func (f *failingSink) Send(any) error {
	f.calls++
	return errors.New("renderer unavailable")
}

func TestRunner_Step(t *testing.T) {
	ch := frame.MustNewChannel(4)
	sink := &utils.MockTransport{}
	broken := &failingSink{}
	rec := &recordingRecorder{}

	r, err := NewRunner(ch, newTestPipeline(t, nil), DefaultFrameRate, []Sink{broken, sink},
		WithRecorder(rec), WithClock(func() time.Time { return epoch }))
	if err != nil {
		t.Fatal(err)
	}

	if r.Step(context.Background()) {
		t.Fatal("Step on empty channel reported work")
	}
	if r.Latest() != nil {
		t.Error("Latest() should be nil before the first cycle")
	}

	ch.Push(utils.SineBlock(1024, testSampleRate, 440, 0.5, 2))
	ch.Push(utils.SineBlock(1024, testSampleRate, 440, 0.5, 2))
	if !r.Step(context.Background()) || !r.Step(context.Background()) {
		t.Fatal("Step did not process queued blocks")
	}
	r.Step(context.Background())

	if r.Cycles() != 2 || r.IdleTicks() != 2 {
		t.Errorf("Cycles() = %d, IdleTicks() = %d; want 2, 2", r.Cycles(), r.IdleTicks())
	}
	if rec.cycles != 2 || rec.idle != 2 {
		t.Errorf("recorder saw %d cycles, %d idle; want 2, 2", rec.cycles, rec.idle)
	}
	if broken.calls != 2 {
		t.Errorf("failing sink called %d times, want 2", broken.calls)
	}

	sent := sink.Sent()
	if len(sent) != 2 {
		t.Fatalf("sink received %d values, want 2", len(sent))
	}
	for i, v := range sent {
		params, ok := v.(*AudioParameters)
		if !ok {
			t.Fatalf("sink received %T, want *AudioParameters", v)
		}
		if params.Sequence != uint64(i+1) {
			t.Errorf("Sequence = %d, want %d", params.Sequence, i+1)
		}
	}
	if r.Latest().Sequence != 2 {
		t.Errorf("Latest().Sequence = %d, want 2", r.Latest().Sequence)
	}
}

func TestRunner_RunStopsOnCancel(t *testing.T) {
	ch := frame.MustNewChannel(2)
	r, err := NewRunner(ch, newTestPipeline(t, nil), 1000, nil)
	if err != nil {
		t.Fatal(err)
	}
	ch.Push(utils.SineBlock(512, testSampleRate, 440, 0.5, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for r.Cycles() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if r.Cycles() != 1 {
		t.Errorf("Cycles() = %d, want 1", r.Cycles())
	}
}

func TestNewRunner_Invalid(t *testing.T) {
	p := newTestPipeline(t, nil)
	if _, err := NewRunner(nil, p, 60, nil); err == nil {
		t.Error("nil channel accepted")
	}
	if _, err := NewRunner(frame.MustNewChannel(1), p, 0, nil); err == nil {
		t.Error("zero frame rate accepted")
	}
}
