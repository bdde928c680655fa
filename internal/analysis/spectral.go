// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"visualizer/internal/frame"
	"visualizer/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	DefaultWindowSize     = 2048
	DefaultWaveformLength = 512
)

var (
	ErrWindowSize     = errors.New("window size must be a power of two")
	ErrSampleRate     = errors.New("sample rate must be positive")
	ErrWaveformLength = errors.New("waveform length must be positive")
)

// Analysis is the result of processing one sample block.
//
// Spectrum and Waveform alias the analyzer's workspace and are only valid
// until the next call to Process. Copy them before handing them to another
// goroutine.
type Analysis struct {
	Bass      float64   // Mean magnitude in BassBand, [0,1].
	Mid       float64   // Mean magnitude in MidBand, [0,1].
	Treble    float64   // Mean magnitude in TrebleBand, [0,1].
	Amplitude float64   // RMS of the raw interleaved samples.
	Spectrum  []float64 // windowSize/2 normalised magnitudes, [0,1].
	Waveform  []float64 // Downsampled mono signal, [-1,1].
}

// Pre-allocated buffers for the analysis hot path.
type spectralWorkspace struct {
	mono      []float64    // Mono mix of the current block. Grows to the largest block seen.
	recent    []float64    // Last windowSize mono samples across blocks, oldest first.
	input     []float64    // Windowed FFT input.
	fftOutput []complex128 // windowSize/2+1 complex coefficients.
	magnitude []float64    // windowSize/2 normalised magnitudes.
	window    []float64    // Pre-calculated window coefficients.
	waveform  []float64    // Downsampled waveform.
}

// SpectralAnalyzer turns sample blocks into band energies, a normalised
// magnitude spectrum, an RMS amplitude and a display waveform.
//
// The spectrum always covers the most recent windowSize mono samples, which
// may span several blocks when blocks are shorter than the window. Amplitude
// and waveform describe the current block only.
//
// A SpectralAnalyzer is owned by the consumer goroutine and is not safe for
// concurrent use. Process does not allocate once its mono buffer has grown to
// the block size in use.
type SpectralAnalyzer struct {
	fftCalculator  *fourier.FFT
	windowSize     int
	sampleRate     float64
	waveformLength int
	windowType     WindowFunc
	norm           float64 // Coherent gain correction, 2/sum(window).

	bass, mid, treble binRange
	workspace         spectralWorkspace
}

// AnalyzerOption customises a SpectralAnalyzer.
type AnalyzerOption func(*SpectralAnalyzer)

// WithWindow selects the FFT window. The default is Hann.
func WithWindow(w WindowFunc) AnalyzerOption {
	return func(a *SpectralAnalyzer) { a.windowType = w }
}

// NewSpectralAnalyzer creates an analyzer for blocks at sampleRate, using a
// windowSize-point FFT and reducing waveforms to waveformLength points.
func NewSpectralAnalyzer(sampleRate float64, windowSize, waveformLength int, opts ...AnalyzerOption) (*SpectralAnalyzer, error) {
	if !bitint.IsPowerOfTwo(windowSize) || windowSize < 2 {
		return nil, fmt.Errorf("%w, got %d", ErrWindowSize, windowSize)
	}
	if !(sampleRate > 0) || math.IsInf(sampleRate, 0) {
		return nil, fmt.Errorf("%w, got %f", ErrSampleRate, sampleRate)
	}
	if waveformLength <= 0 {
		return nil, fmt.Errorf("%w, got %d", ErrWaveformLength, waveformLength)
	}

	a := &SpectralAnalyzer{
		fftCalculator:  fourier.NewFFT(windowSize),
		windowSize:     windowSize,
		sampleRate:     sampleRate,
		waveformLength: waveformLength,
		windowType:     Hann,
	}
	for _, opt := range opts {
		opt(a)
	}

	coeffs, sum := windowCoefficients(windowSize, a.windowType)
	if sum > 0 {
		a.norm = 2 / sum
	}

	bins := windowSize / 2
	a.bass = newBinRange(BassBand, windowSize, bins, sampleRate)
	a.mid = newBinRange(MidBand, windowSize, bins, sampleRate)
	a.treble = newBinRange(TrebleBand, windowSize, bins, sampleRate)

	a.workspace = spectralWorkspace{
		mono:      make([]float64, 0, windowSize),
		recent:    make([]float64, windowSize),
		input:     make([]float64, windowSize),
		fftOutput: make([]complex128, bins+1),
		magnitude: make([]float64, bins),
		window:    coeffs,
		waveform:  make([]float64, waveformLength),
	}
	return a, nil
}

// Process analyses one block. A nil or empty block yields all zeros.
//
// Performance Critical (Hot Path): no allocations in steady state.
func (a *SpectralAnalyzer) Process(block *frame.SampleBlock) Analysis {
	var samples []float32
	channels := 1
	if block != nil {
		samples = block.Samples
		if block.Channels > 0 {
			channels = block.Channels
		}
	}

	mono := a.mixToMono(samples, channels)
	a.computeSpectrum(mono)
	mag := a.workspace.magnitude

	return Analysis{
		Bass:      a.bass.mean(mag),
		Mid:       a.mid.mean(mag),
		Treble:    a.treble.mean(mag),
		Amplitude: rms(samples),
		Spectrum:  mag,
		Waveform:  a.downsample(mono),
	}
}

// mixToMono averages each interleaved frame into the mono workspace.
// Trailing samples that do not form a whole frame are ignored.
func (a *SpectralAnalyzer) mixToMono(samples []float32, channels int) []float64 {
	frames := len(samples) / channels
	if cap(a.workspace.mono) < frames {
		a.workspace.mono = make([]float64, frames)
	}
	mono := a.workspace.mono[:frames]

	scale := 1.0 / float64(channels)
	for f := range frames {
		var sum float64
		for _, s := range samples[f*channels : (f+1)*channels] {
			sum += finite(float64(s))
		}
		mono[f] = sum * scale
	}
	a.workspace.mono = mono
	return mono
}

// computeSpectrum slides mono into the rolling window, applies the window
// function and fills the magnitude workspace. Until windowSize samples have
// been seen the oldest part of the window is silence.
func (a *SpectralAnalyzer) computeSpectrum(mono []float64) {
	ws := &a.workspace

	if n := len(mono); n >= a.windowSize {
		copy(ws.recent, mono[n-a.windowSize:])
	} else if n > 0 {
		copy(ws.recent, ws.recent[n:])
		copy(ws.recent[a.windowSize-n:], mono)
	}
	for i, v := range ws.recent {
		ws.input[i] = v * ws.window[i]
	}

	a.fftCalculator.Coefficients(ws.fftOutput, ws.input)

	for i := range ws.magnitude {
		ws.magnitude[i] = clamp(finite(cmplx.Abs(ws.fftOutput[i])*a.norm), 0, 1)
	}
}

// downsample reduces mono to at most waveformLength points by averaging each
// point's neighbourhood. Shorter signals are copied unchanged apart from
// clamping to [-1,1].
func (a *SpectralAnalyzer) downsample(mono []float64) []float64 {
	n := len(mono)
	target := a.waveformLength
	if n <= target {
		out := a.workspace.waveform[:n]
		for i, v := range mono {
			out[i] = clamp(v, -1, 1)
		}
		return out
	}

	out := a.workspace.waveform[:target]
	for i := range target {
		start := i * n / target
		end := (i + 1) * n / target
		var sum float64
		for _, v := range mono[start:end] {
			sum += v
		}
		out[i] = clamp(sum/float64(end-start), -1, 1)
	}
	return out
}

// Reset forgets the sample history so the next window starts from silence.
func (a *SpectralAnalyzer) Reset() {
	clear(a.workspace.recent)
}

// FrequencyForBin returns the centre frequency (Hz) of a spectrum bin, or 0 if
// the index is out of range.
func (a *SpectralAnalyzer) FrequencyForBin(binIndex int) float64 {
	if binIndex < 0 || binIndex >= len(a.workspace.magnitude) {
		return 0
	}
	return float64(binIndex) * a.sampleRate / float64(a.windowSize)
}

// WindowSize returns the configured FFT size.
func (a *SpectralAnalyzer) WindowSize() int { return a.windowSize }

// SampleRate returns the configured sample rate (Hz).
func (a *SpectralAnalyzer) SampleRate() float64 { return a.sampleRate }

// Bins returns the number of spectrum bins, windowSize/2.
func (a *SpectralAnalyzer) Bins() int { return len(a.workspace.magnitude) }

// WaveformLength returns the maximum waveform length.
func (a *SpectralAnalyzer) WaveformLength() int { return a.waveformLength }

// rms calculates the Root Mean Square of the samples, 0 for empty input.
func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquare float64
	for _, s := range samples {
		v := finite(float64(s))
		sumSquare += v * v
	}
	return finite(math.Sqrt(sumSquare / float64(len(samples))))
}

// finite maps NaN and ±Inf to 0.
func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
