// SPDX-License-Identifier: MIT
//
// Package utils holds signal generators and test doubles shared by the
// analysis, transport and audio tests.
package utils

import (
	"math"
	"sync"

	"visualizer/internal/frame"
)

// MockTransport records every value passed to Send. It is safe for use from
// the analysis runner goroutine while a test inspects it.
type MockTransport struct {
	mu     sync.Mutex
	sent   []any
	closed bool
}

// Send stores data for later inspection instead of transmitting it.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	m.sent = append(m.sent, data)
	m.mu.Unlock()
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Sent returns a copy of everything sent so far.
func (m *MockTransport) Sent() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.sent))
	copy(out, m.sent)
	return out
}

// Closed reports whether Close was called.
func (m *MockTransport) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// GenerateSineWave returns frames mono samples of a sine at frequency Hz with
// the given peak amplitude.
func GenerateSineWave(frames int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, frames)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// GenerateComplexWave returns a 440Hz fundamental with two harmonics, peaking
// just under full scale.
func GenerateComplexWave(frames int, sampleRate float64) []float32 {
	buffer := make([]float32, frames)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// Interleave duplicates a mono signal across channels.
func Interleave(mono []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(mono))
		copy(out, mono)
		return out
	}
	out := make([]float32, len(mono)*channels)
	for i, s := range mono {
		for c := range channels {
			out[i*channels+c] = s
		}
	}
	return out
}

// SineBlock builds a SampleBlock holding a sine on every channel.
func SineBlock(frames int, sampleRate, frequency, amplitude float64, channels int) *frame.SampleBlock {
	return &frame.SampleBlock{
		Samples:    Interleave(GenerateSineWave(frames, sampleRate, frequency, amplitude), channels),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// SilentBlock builds a SampleBlock of zeros.
func SilentBlock(frames int, sampleRate float64, channels int) *frame.SampleBlock {
	return &frame.SampleBlock{
		Samples:    make([]float32, frames*channels),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// FindPeakBin returns the index of the largest magnitude in [startBin, endBin].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
