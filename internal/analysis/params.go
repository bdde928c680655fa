// SPDX-License-Identifier: MIT
package analysis

import "time"

// AudioParameters is everything the renderer needs for one frame. Values are
// produced fresh each cycle; the slices are owned by the receiver.
type AudioParameters struct {
	Bass            float64   `json:"bass"`
	Mid             float64   `json:"mid"`
	Treble          float64   `json:"treble"`
	Amplitude       float64   `json:"amplitude"`
	Beat            bool      `json:"beat"`
	BeatFlux        bool      `json:"beatFlux"`
	BPM             float64   `json:"bpm"`
	TempoConfidence float64   `json:"tempoConfidence"`
	Spectrum        []float64 `json:"spectrum"`
	Waveform        []float64 `json:"waveform"`

	Timestamp time.Time `json:"timestamp"` // When the cycle ran.
	Sequence  uint64    `json:"sequence"`  // Cycle counter, starting at 1.
}
