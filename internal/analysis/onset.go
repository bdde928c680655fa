// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	DefaultSensitivity = 1.0
	DefaultCooldown    = 100 * time.Millisecond

	onsetHistorySize = 10  // Values kept for the running average.
	onsetMinHistory  = 3   // Below this many values no beat is reported.
	onsetRatio       = 1.5 // Threshold multiple of the running average at sensitivity 1.
	energyFloor      = 0.1
	fluxFloor        = 0.01
)

var (
	ErrSensitivity = errors.New("onset sensitivity must be a positive finite number")
	ErrCooldown    = errors.New("onset cooldown must not be negative")
)

// onsetGate is the dynamic-threshold decision shared by both detectors. A
// value fires when it exceeds the mean of the previous values scaled by
// onsetRatio/sensitivity and also exceeds an absolute floor, provided the
// cooldown since the last fire has elapsed.
type onsetGate struct {
	history     *history[float64]
	sensitivity float64
	cooldown    time.Duration
	floor       float64
	lastBeat    time.Time // Zero until the first beat.
}

func newOnsetGate(sensitivity float64, cooldown time.Duration, floor float64) (onsetGate, error) {
	if !(sensitivity > 0) || math.IsInf(sensitivity, 0) {
		return onsetGate{}, fmt.Errorf("%w, got %v", ErrSensitivity, sensitivity)
	}
	if cooldown < 0 {
		return onsetGate{}, fmt.Errorf("%w, got %v", ErrCooldown, cooldown)
	}
	return onsetGate{
		history:     newHistory[float64](onsetHistorySize),
		sensitivity: sensitivity,
		cooldown:    cooldown,
		floor:       floor,
	}, nil
}

// evaluate reports whether value is an onset at time now. Values arriving
// during the cooldown are neither judged nor recorded.
func (g *onsetGate) evaluate(now time.Time, value float64) bool {
	if !g.lastBeat.IsZero() && now.Sub(g.lastBeat) < g.cooldown {
		return false
	}

	value = finite(value)
	g.history.push(value)
	if g.history.len() < onsetMinHistory {
		return false
	}

	threshold := meanExceptNewest(g.history) * (onsetRatio / g.sensitivity)
	if value > threshold && value > g.floor {
		g.lastBeat = now
		return true
	}
	return false
}

func (g *onsetGate) reset() {
	g.history.reset()
	g.lastBeat = time.Time{}
}

// EnergyOnsetDetector reports a beat when the RMS amplitude jumps well above
// its recent average.
type EnergyOnsetDetector struct {
	gate onsetGate
}

// NewEnergyOnsetDetector returns a detector with the given sensitivity (higher
// is more sensitive) and minimum time between beats.
func NewEnergyOnsetDetector(sensitivity float64, cooldown time.Duration) (*EnergyOnsetDetector, error) {
	gate, err := newOnsetGate(sensitivity, cooldown, energyFloor)
	if err != nil {
		return nil, fmt.Errorf("energy onset detector: %w", err)
	}
	return &EnergyOnsetDetector{gate: gate}, nil
}

// Detect is DetectAt using the wall clock.
func (d *EnergyOnsetDetector) Detect(energy float64) bool {
	return d.DetectAt(time.Now(), energy)
}

// DetectAt reports whether energy observed at now is an onset.
func (d *EnergyOnsetDetector) DetectAt(now time.Time, energy float64) bool {
	return d.gate.evaluate(now, energy)
}

// Reset clears the history and cooldown.
func (d *EnergyOnsetDetector) Reset() {
	d.gate.reset()
}

// SpectralFluxOnsetDetector reports a beat when the summed positive change
// between consecutive spectra jumps well above its recent average. It is more
// responsive than the energy detector to onsets that add high-frequency
// content without raising the overall level much.
type SpectralFluxOnsetDetector struct {
	gate        onsetGate
	previous    []float64 // Spectrum from the previous call.
	hasPrevious bool
	lastFlux    float64
}

// NewSpectralFluxOnsetDetector returns a detector with the given sensitivity
// and minimum time between beats.
func NewSpectralFluxOnsetDetector(sensitivity float64, cooldown time.Duration) (*SpectralFluxOnsetDetector, error) {
	gate, err := newOnsetGate(sensitivity, cooldown, fluxFloor)
	if err != nil {
		return nil, fmt.Errorf("spectral flux onset detector: %w", err)
	}
	return &SpectralFluxOnsetDetector{gate: gate}, nil
}

// Detect is DetectAt using the wall clock.
func (d *SpectralFluxOnsetDetector) Detect(spectrum []float64) bool {
	return d.DetectAt(time.Now(), spectrum)
}

// DetectAt reports whether spectrum observed at now is an onset. The spectrum
// is copied as the reference for the next call whatever the outcome, so the
// caller may reuse it.
func (d *SpectralFluxOnsetDetector) DetectAt(now time.Time, spectrum []float64) bool {
	flux := d.flux(spectrum)
	d.snapshot(spectrum)
	d.lastFlux = flux
	return d.gate.evaluate(now, flux)
}

// LastFlux returns the flux computed by the most recent DetectAt call.
func (d *SpectralFluxOnsetDetector) LastFlux() float64 {
	return d.lastFlux
}

// Reset clears the history, cooldown and reference spectrum.
func (d *SpectralFluxOnsetDetector) Reset() {
	d.gate.reset()
	d.previous = d.previous[:0]
	d.hasPrevious = false
	d.lastFlux = 0
}

// flux sums the positive bin-wise increase over the previous spectrum. With
// no previous spectrum there is nothing to compare against and flux is 0.
// Bins missing from the previous spectrum count as 0.
func (d *SpectralFluxOnsetDetector) flux(spectrum []float64) float64 {
	if !d.hasPrevious {
		return 0
	}
	var sum float64
	for i, cur := range spectrum {
		var prev float64
		if i < len(d.previous) {
			prev = d.previous[i]
		}
		if diff := finite(cur - prev); diff > 0 {
			sum += diff
		}
	}
	return sum
}

func (d *SpectralFluxOnsetDetector) snapshot(spectrum []float64) {
	if cap(d.previous) < len(spectrum) {
		d.previous = make([]float64, len(spectrum))
	}
	d.previous = d.previous[:len(spectrum)]
	copy(d.previous, spectrum)
	d.hasPrevious = true
}
