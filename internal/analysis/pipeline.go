// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"time"

	"visualizer/internal/frame"
)

// PipelineConfig holds everything needed to build a Pipeline.
type PipelineConfig struct {
	SampleRate     float64
	WindowSize     int
	WaveformLength int
	Window         WindowFunc

	EnergySensitivity float64
	EnergyCooldown    time.Duration
	FluxSensitivity   float64
	FluxCooldown      time.Duration

	MinBPM          float64
	MaxBPM          float64
	ConfidenceScale float64

	// GateThreshold is the peak level below which a block is analysed as
	// silence. Zero leaves the gate open.
	GateThreshold float64
}

// DefaultPipelineConfig returns the standard configuration at 44.1kHz.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		SampleRate:        44100,
		WindowSize:        DefaultWindowSize,
		WaveformLength:    DefaultWaveformLength,
		Window:            Hann,
		EnergySensitivity: DefaultSensitivity,
		EnergyCooldown:    DefaultCooldown,
		FluxSensitivity:   DefaultSensitivity,
		FluxCooldown:      DefaultCooldown,
		MinBPM:            DefaultMinBPM,
		MaxBPM:            DefaultMaxBPM,
		ConfidenceScale:   DefaultConfidenceScale,
	}
}

// Pipeline runs one analysis cycle per sample block: spectral analysis, both
// onset detectors, beat combination and tempo tracking. It is owned by the
// consumer goroutine and is not safe for concurrent use.
type Pipeline struct {
	analyzer *SpectralAnalyzer
	energy   *EnergyOnsetDetector
	flux     *SpectralFluxOnsetDetector
	tempo    *TempoEstimator
	gate     *NoiseGate

	silence  frame.SampleBlock // Stand-in for blocks the gate rejects.
	sequence uint64
}

// NewPipeline validates cfg and builds every stage.
func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	analyzer, err := NewSpectralAnalyzer(cfg.SampleRate, cfg.WindowSize, cfg.WaveformLength, WithWindow(cfg.Window))
	if err != nil {
		return nil, fmt.Errorf("spectral analyzer: %w", err)
	}
	energy, err := NewEnergyOnsetDetector(cfg.EnergySensitivity, cfg.EnergyCooldown)
	if err != nil {
		return nil, err
	}
	flux, err := NewSpectralFluxOnsetDetector(cfg.FluxSensitivity, cfg.FluxCooldown)
	if err != nil {
		return nil, err
	}
	tempo, err := NewTempoEstimator(cfg.MinBPM, cfg.MaxBPM, cfg.ConfidenceScale)
	if err != nil {
		return nil, fmt.Errorf("tempo estimator: %w", err)
	}

	return &Pipeline{
		analyzer: analyzer,
		energy:   energy,
		flux:     flux,
		tempo:    tempo,
		gate:     NewNoiseGate(cfg.GateThreshold),
	}, nil
}

// Cycle analyses block as observed at now and returns a fresh parameter
// record. A nil block is analysed as empty input. The returned slices are
// copies and may be handed to another goroutine.
func (p *Pipeline) Cycle(now time.Time, block *frame.SampleBlock) AudioParameters {
	if block != nil && !p.gate.Open(block.Samples) {
		block = p.silenceLike(block)
	}

	res := p.analyzer.Process(block)
	energyBeat := p.energy.DetectAt(now, res.Amplitude)
	fluxBeat := p.flux.DetectAt(now, res.Spectrum)
	beat := CombineBeats(energyBeat, fluxBeat)
	if beat.Beat {
		p.tempo.RegisterBeat(now)
	}

	p.sequence++
	return AudioParameters{
		Bass:            res.Bass,
		Mid:             res.Mid,
		Treble:          res.Treble,
		Amplitude:       res.Amplitude,
		Beat:            beat.Beat,
		BeatFlux:        beat.Flux,
		BPM:             p.tempo.BPM(),
		TempoConfidence: p.tempo.Confidence(),
		Spectrum:        append([]float64(nil), res.Spectrum...),
		Waveform:        append([]float64(nil), res.Waveform...),
		Timestamp:       now,
		Sequence:        p.sequence,
	}
}

// silenceLike returns a zeroed block with the same shape as b.
func (p *Pipeline) silenceLike(b *frame.SampleBlock) *frame.SampleBlock {
	n := len(b.Samples)
	if cap(p.silence.Samples) < n {
		p.silence.Samples = make([]float32, n)
	}
	p.silence.Samples = p.silence.Samples[:n]
	p.silence.SampleRate = b.SampleRate
	p.silence.Channels = b.Channels
	return &p.silence
}

// Reset clears analyzer, detector and tempo state, as after a track change.
func (p *Pipeline) Reset() {
	p.analyzer.Reset()
	p.energy.Reset()
	p.flux.Reset()
	p.tempo.Reset()
}

// Gate exposes the noise gate for runtime adjustment from the consumer goroutine.
func (p *Pipeline) Gate() *NoiseGate { return p.gate }

// Analyzer returns the spectral analyzer.
func (p *Pipeline) Analyzer() *SpectralAnalyzer { return p.analyzer }

// LastFlux returns the spectral flux of the most recent cycle.
func (p *Pipeline) LastFlux() float64 { return p.flux.LastFlux() }
