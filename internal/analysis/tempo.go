// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

const (
	DefaultMinBPM          = 60.0
	DefaultMaxBPM          = 200.0
	DefaultBPM             = 120.0
	DefaultConfidenceScale = 100.0

	beatHistorySize  = 8
	minBeatsForTempo = 3
)

var ErrTempoRange = errors.New("invalid tempo range")

// TempoEstimator derives a BPM figure from the spacing of recent beats.
//
// The median inter-onset interval is used so that a single missed or spurious
// beat does not move the estimate, and intervals implying a tempo outside
// [minBPM, maxBPM] are discarded before anything is computed. Confidence falls
// as the surviving intervals spread out:
//
//	confidence = 1 / (1 + variance*scale)
//
// where variance is the population variance of the intervals in seconds².
// At the default scale a beat with ±10ms jitter reads about 0.99 while
// intervals alternating between 0.4s and 0.6s read 0.5.
type TempoEstimator struct {
	beats      *history[time.Time]
	minBPM     float64
	maxBPM     float64
	scale      float64
	bpm        float64
	confidence float64

	intervals []float64 // Scratch, reused across calls.
	sorted    []float64
}

// NewTempoEstimator returns an estimator reporting DefaultBPM with zero
// confidence until enough beats arrive.
func NewTempoEstimator(minBPM, maxBPM, confidenceScale float64) (*TempoEstimator, error) {
	if !(minBPM > 0) || !(maxBPM > minBPM) || math.IsInf(maxBPM, 0) {
		return nil, fmt.Errorf("%w: [%v, %v]", ErrTempoRange, minBPM, maxBPM)
	}
	if !(confidenceScale >= 0) || math.IsInf(confidenceScale, 0) {
		return nil, fmt.Errorf("tempo confidence scale must be a non-negative finite number, got %v", confidenceScale)
	}
	return &TempoEstimator{
		beats:     newHistory[time.Time](beatHistorySize),
		minBPM:    minBPM,
		maxBPM:    maxBPM,
		scale:     confidenceScale,
		bpm:       DefaultBPM,
		intervals: make([]float64, 0, beatHistorySize-1),
		sorted:    make([]float64, 0, beatHistorySize-1),
	}, nil
}

// RegisterBeat records a beat at ts and re-estimates the tempo.
func (t *TempoEstimator) RegisterBeat(ts time.Time) {
	t.beats.push(ts)
	if t.beats.len() < minBeatsForTempo {
		return
	}

	t.intervals = t.intervals[:0]
	for i := 1; i < t.beats.len(); i++ {
		interval := t.beats.at(i).Sub(t.beats.at(i - 1)).Seconds()
		if interval <= 0 {
			continue
		}
		if bpm := 60 / interval; bpm >= t.minBPM && bpm <= t.maxBPM {
			t.intervals = append(t.intervals, interval)
		}
	}

	if len(t.intervals) == 0 {
		t.confidence = 0
		return
	}

	t.bpm = 60 / t.median()
	variance := stat.PopVariance(t.intervals, nil)
	t.confidence = clamp(finite(1/(1+variance*t.scale)), 0, 1)
}

// median of t.intervals, which must be non-empty.
func (t *TempoEstimator) median() float64 {
	t.sorted = append(t.sorted[:0], t.intervals...)
	slices.Sort(t.sorted)
	n := len(t.sorted)
	if n%2 == 1 {
		return t.sorted[n/2]
	}
	return (t.sorted[n/2-1] + t.sorted[n/2]) / 2
}

// BPM returns the current tempo estimate.
func (t *TempoEstimator) BPM() float64 { return t.bpm }

// Confidence returns how consistent the recent beat spacing is, in [0,1].
func (t *TempoEstimator) Confidence() float64 { return t.confidence }

// Beats returns how many beats are held for estimation, at most 8.
func (t *TempoEstimator) Beats() int { return t.beats.len() }

// Reset forgets all beats and returns to the default tempo.
func (t *TempoEstimator) Reset() {
	t.beats.reset()
	t.bpm = DefaultBPM
	t.confidence = 0
}
