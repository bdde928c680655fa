// SPDX-License-Identifier: MIT
package utils

import (
	"math"
	"os"
	"testing"
)

const (
	testSize       = 1024
	testSampleRate = 44100
	testFrequency  = 440.0 // A4 note
)

var testMagnitudes []float64

func TestMain(m *testing.M) {
	testMagnitudes = make([]float64, testSize)

	// Creates a "hill" with peak at position testSize/4.
	for i := range testMagnitudes {
		testMagnitudes[i] = math.Exp(-0.01 * math.Pow(float64(i-testSize/4), 2))
	}

	os.Exit(m.Run())
}

func TestMockTransport(t *testing.T) {
	mt := &MockTransport{}

	for i := range 3 {
		if err := mt.Send(i); err != nil {
			t.Fatalf("MockTransport.Send() error = %v", err)
		}
	}

	sent := mt.Sent()
	if len(sent) != 3 {
		t.Fatalf("Sent() len = %d, want 3", len(sent))
	}
	for i, v := range sent {
		if v.(int) != i {
			t.Errorf("Sent()[%d] = %v, want %d", i, v, i)
		}
	}

	sent[0] = 99
	if mt.Sent()[0] != 0 {
		t.Error("Sent() returned a reference to internal storage instead of a copy")
	}

	if mt.Closed() {
		t.Error("Closed() = true before Close")
	}
	_ = mt.Close()
	if !mt.Closed() {
		t.Error("Closed() = false after Close")
	}
}

func TestGenerateSineWave(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		sampleRate float64
		frequency  float64
	}{
		{"A4 Note", 1024, 44100, 440.0},
		{"Middle C", 1024, 44100, 261.63},
		{"High Sample Rate", 1024, 192000, 440.0},
		{"Low Sample Rate", 1024, 8000, 440.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GenerateSineWave(tt.size, tt.sampleRate, tt.frequency, 0.5)

			if len(result) != tt.size {
				t.Fatalf("GenerateSineWave() buffer size = %d, want %d", len(result), tt.size)
			}

			for i, v := range result {
				if math.Abs(float64(v)) > 0.5+1e-6 {
					t.Fatalf("sample %d = %v exceeds amplitude 0.5", i, v)
				}
			}

			samplesPerCycle := tt.sampleRate / tt.frequency
			crossCount := 0
			for i := 1; i < tt.size; i++ {
				if (result[i-1] < 0 && result[i] >= 0) ||
					(result[i-1] >= 0 && result[i] < 0) {
					crossCount++
				}
			}

			// Two crossings per cycle, 20% margin for phase alignment.
			expectedCrossings := float64(tt.size) / (samplesPerCycle / 2)
			tolerance := 0.2 * expectedCrossings
			if math.Abs(float64(crossCount)-expectedCrossings) > tolerance {
				t.Errorf("zero crossings = %d, expected approximately %.1f±%.1f",
					crossCount, expectedCrossings, tolerance)
			}
		})
	}
}

func TestGenerateComplexWave(t *testing.T) {
	result := GenerateComplexWave(testSize, testSampleRate)
	if len(result) != testSize {
		t.Fatalf("GenerateComplexWave() size = %d, want %d", len(result), testSize)
	}
	hasNonZero := false
	for _, v := range result {
		if v != 0 {
			hasNonZero = true
		}
		if math.Abs(float64(v)) > 1 {
			t.Fatalf("sample %v outside [-1, 1]", v)
		}
	}
	if !hasNonZero {
		t.Error("GenerateComplexWave() produced all zeros")
	}
}

func TestInterleaveAndBlocks(t *testing.T) {
	mono := []float32{0.1, -0.2, 0.3}
	stereo := Interleave(mono, 2)
	want := []float32{0.1, 0.1, -0.2, -0.2, 0.3, 0.3}
	if len(stereo) != len(want) {
		t.Fatalf("Interleave() len = %d, want %d", len(stereo), len(want))
	}
	for i := range want {
		if stereo[i] != want[i] {
			t.Errorf("Interleave()[%d] = %v, want %v", i, stereo[i], want[i])
		}
	}

	b := SineBlock(256, testSampleRate, testFrequency, 0.5, 2)
	if b.Frames() != 256 || b.Channels != 2 || len(b.Samples) != 512 {
		t.Errorf("SineBlock shape = %d frames, %d channels, %d samples", b.Frames(), b.Channels, len(b.Samples))
	}

	s := SilentBlock(128, testSampleRate, 1)
	for _, v := range s.Samples {
		if v != 0 {
			t.Fatal("SilentBlock contains non-zero samples")
		}
	}
}

func TestFindPeakBin(t *testing.T) {
	tests := []struct {
		name     string
		mags     []float64
		start    int
		end      int
		expected int
	}{
		{"Full Range", testMagnitudes, 0, testSize - 1, testSize / 4},
		{"Partial Range Start", testMagnitudes, testSize / 8, testSize - 1, testSize / 4},
		{"Negative Start", testMagnitudes, -10, testSize - 1, testSize / 4},
		{"Out of Range End", testMagnitudes, 0, testSize * 2, testSize / 4},
		{"Empty Slice", []float64{}, 0, 10, 0},
		{"Single Value", []float64{1.0}, 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := FindPeakBin(tt.mags, tt.start, tt.end); result != tt.expected {
				t.Errorf("FindPeakBin() = %d, want %d", result, tt.expected)
			}
		})
	}

	allocs := testing.AllocsPerRun(100, func() {
		FindPeakBin(testMagnitudes, 0, len(testMagnitudes)-1)
	})
	if allocs > 0 {
		t.Errorf("FindPeakBin allocated memory: got %.1f allocs, want 0", allocs)
	}
}

func BenchmarkGenerateSineWave(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		GenerateSineWave(testSize, testSampleRate, testFrequency, 0.9)
	}
}
