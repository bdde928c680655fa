// SPDX-License-Identifier: MIT
package analysis

// HybridBeat is the combined verdict of the two onset detectors for one cycle.
type HybridBeat struct {
	Beat bool // Either detector fired.
	Flux bool // The spectral flux detector fired.
}

// CombineBeats merges the detector outputs. Energy catches loud hits, flux
// catches onsets that change timbre more than level, so either is a beat.
func CombineBeats(energy, flux bool) HybridBeat {
	return HybridBeat{Beat: energy || flux, Flux: flux}
}
