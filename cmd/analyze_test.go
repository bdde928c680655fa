// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"visualizer/internal/config"
	"visualizer/pkg/utils"
)

// writeClickTrack writes a mono 16-bit WAV of silence with a one-block sine
// burst every period blocks, starting at block offset.
func writeClickTrack(t *testing.T, sampleRate, blockFrames, blocks, offset, period int) string {
	t.Helper()
	burst := utils.GenerateSineWave(blockFrames, float64(sampleRate), 441, 0.5)
	data := make([]int, blocks*blockFrames)
	for b := offset; b < blocks; b += period {
		for i, v := range burst {
			data[b*blockFrames+i] = int(math.Round(float64(v) * 32767))
		}
	}

	path := filepath.Join(t.TempDir(), "clicks.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, sampleRate, 16, 1, 1)
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyze_ClickTrack(t *testing.T) {
	const (
		rate   = 44100
		frames = 1024
		period = 22 // Blocks between bursts.
	)
	path := writeClickTrack(t, rate, frames, 350, 11, period)

	cfg := config.Default()
	cfg.Audio.FramesPerBuffer = frames

	var out bytes.Buffer
	sum, err := Analyze(path, cfg, &out, true)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if sum.Blocks != 350 {
		t.Errorf("Blocks = %d, want 350", sum.Blocks)
	}
	wantBeats := (350-11+period-1)/period
	if sum.Beats != wantBeats {
		t.Errorf("Beats = %d, want %d", sum.Beats, wantBeats)
	}
	wantBPM := 60 / (float64(period*frames) / rate)
	if math.Abs(sum.BPM-wantBPM) > 0.01 {
		t.Errorf("BPM = %.3f, want %.3f", sum.BPM, wantBPM)
	}
	if sum.TempoConfidence < 0.99 {
		t.Errorf("TempoConfidence = %.3f, want ~1 for a steady click", sum.TempoConfidence)
	}
	if lines := strings.Count(out.String(), "beat"); lines != wantBeats {
		t.Errorf("printed %d beat lines, want %d", lines, wantBeats)
	}

	var report bytes.Buffer
	sum.Print(&report)
	if !strings.Contains(report.String(), "117.5 BPM") {
		t.Errorf("summary = %q", report.String())
	}
}

func TestAnalyze_Silence(t *testing.T) {
	path := writeClickTrack(t, 8000, 256, 40, 40, 1) // No bursts.
	cfg := config.Default()
	cfg.Audio.FramesPerBuffer = 256

	sum, err := Analyze(path, cfg, &bytes.Buffer{}, false)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if sum.Beats != 0 || sum.BPM != 120 || sum.TempoConfidence != 0 || sum.PeakAmplitude != 0 {
		t.Errorf("summary = %+v, want no beats and default tempo", sum)
	}
}

func TestAnalyze_MissingFile(t *testing.T) {
	if _, err := Analyze(filepath.Join(t.TempDir(), "nope.wav"), config.Default(), &bytes.Buffer{}, false); err == nil {
		t.Error("expected error for missing file")
	}
}
