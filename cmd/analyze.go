// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"visualizer/internal/analysis"
	"visualizer/internal/audio"
	"visualizer/internal/config"
)

// Summary is the outcome of replaying a file through the pipeline.
type Summary struct {
	Duration        time.Duration
	Blocks          int
	Beats           int // Combined beats registered with the tempo estimator.
	FluxBeats       int
	BPM             float64
	TempoConfidence float64
	PeakAmplitude   float64
}

// Analyze decodes path block by block and runs each block through a fresh
// pipeline as fast as it decodes. Each cycle is stamped with the block's
// position in the file rather than the wall clock, so results do not depend
// on machine speed. If beats is set every beat is written to w as it is found.
func Analyze(path string, cfg *config.Config, w io.Writer, beats bool) (Summary, error) {
	var sum Summary

	src, err := audio.OpenWAV(path, cfg.Audio.FramesPerBuffer)
	if err != nil {
		return sum, err
	}
	defer src.Close()

	pc := cfg.Pipeline()
	pc.SampleRate = src.SampleRate()
	pipeline, err := analysis.NewPipeline(pc)
	if err != nil {
		return sum, fmt.Errorf("failed to build pipeline: %w", err)
	}

	epoch := time.Unix(0, 0)
	var last analysis.AudioParameters
	for {
		block, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return sum, err
		}

		last = pipeline.Cycle(epoch.Add(sum.Duration), block)
		sum.Duration += block.Duration()
		sum.Blocks++
		sum.PeakAmplitude = max(sum.PeakAmplitude, last.Amplitude)
		if last.Beat {
			sum.Beats++
			if last.BeatFlux {
				sum.FluxBeats++
			}
			if beats {
				fmt.Fprintf(w, "%10.3fs  beat  flux=%-5t  bpm %6.1f  confidence %.2f\n",
					last.Timestamp.Sub(epoch).Seconds(), last.BeatFlux, last.BPM, last.TempoConfidence)
			}
		}
	}

	sum.BPM = last.BPM
	sum.TempoConfidence = last.TempoConfidence
	if sum.Blocks == 0 {
		sum.BPM = analysis.DefaultBPM
	}
	return sum, nil
}

// Print writes a human-readable summary.
func (s Summary) Print(w io.Writer) {
	fmt.Fprintf(w, "Duration:         %s (%d blocks)\n", s.Duration.Round(time.Millisecond), s.Blocks)
	fmt.Fprintf(w, "Beats:            %d (%d with spectral flux)\n", s.Beats, s.FluxBeats)
	fmt.Fprintf(w, "Tempo:            %.1f BPM (confidence %.2f)\n", s.BPM, s.TempoConfidence)
	fmt.Fprintf(w, "Peak amplitude:   %.3f\n", s.PeakAmplitude)
}
