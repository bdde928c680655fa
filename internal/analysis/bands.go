// SPDX-License-Identifier: MIT
package analysis

import "math"

// FrequencyBand defines the name and frequency range for an energy band.
type FrequencyBand struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// The three bands reported to the renderer.
var (
	BassBand   = FrequencyBand{Name: "bass", LowHz: 20, HighHz: 250}
	MidBand    = FrequencyBand{Name: "mid", LowHz: 250, HighHz: 4000}
	TrebleBand = FrequencyBand{Name: "treble", LowHz: 4000, HighHz: 20000}
)

// binRange is an inclusive range of spectrum bins. It is empty when lo > hi.
type binRange struct {
	lo, hi int
}

// newBinRange maps a band onto the bins of a windowSize-point FFT. The lower
// edge rounds up and the upper edge rounds down so that only bins whose
// centre lies inside the band are counted. The upper edge is clamped to the
// last bin of a spectrum with numBins entries.
func newBinRange(band FrequencyBand, windowSize, numBins int, sampleRate float64) binRange {
	lo := int(math.Ceil(band.LowHz * float64(windowSize) / sampleRate))
	hi := int(math.Floor(band.HighHz * float64(windowSize) / sampleRate))
	if lo < 0 {
		lo = 0
	}
	if hi > numBins-1 {
		hi = numBins - 1
	}
	return binRange{lo: lo, hi: hi}
}

func (r binRange) empty() bool { return r.lo > r.hi }

// mean returns the average magnitude over the range, or 0 when it is empty.
func (r binRange) mean(magnitudes []float64) float64 {
	if r.empty() {
		return 0
	}
	var sum float64
	for _, m := range magnitudes[r.lo : r.hi+1] {
		sum += m
	}
	return sum / float64(r.hi-r.lo+1)
}
