// SPDX-License-Identifier: MIT
package analysis

import "math"

// NoiseGate decides whether a block is loud enough to be analysed. A closed
// gate makes the pipeline treat the block as silence so background hiss does
// not animate the display or feed the detectors.
//
// The threshold is a peak level in the range 0.0-1.0 where 0=always open,
// 1=always closed.
type NoiseGate struct {
	enabled   bool
	threshold float32
}

// NewNoiseGate returns an enabled gate at the given threshold.
func NewNoiseGate(threshold float64) *NoiseGate {
	g := &NoiseGate{enabled: true}
	g.SetThreshold(threshold)
	return g
}

func (g *NoiseGate) Enable() {
	g.enabled = true
}

func (g *NoiseGate) Disable() {
	g.enabled = false
}

// Enabled reports whether the gate is active.
func (g *NoiseGate) Enabled() bool {
	return g.enabled
}

// SetThreshold adjusts the gate threshold, clamped to 0.0-1.0.
func (g *NoiseGate) SetThreshold(threshold float64) {
	if math.IsNaN(threshold) || threshold < 0.0 {
		threshold = 0.0
	}
	if threshold > 1.0 {
		threshold = 1.0
	}
	g.threshold = float32(threshold)
}

// Threshold returns the current threshold.
func (g *NoiseGate) Threshold() float64 {
	return float64(g.threshold)
}

// Open reports whether samples should be analysed. A disabled gate or a zero
// threshold is always open.
//
// Performance Critical (Hot Path): no allocations.
func (g *NoiseGate) Open(samples []float32) bool {
	if !g.enabled || g.threshold == 0 {
		return true
	}
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak > g.threshold
}
