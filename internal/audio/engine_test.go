// SPDX-License-Identifier: MIT
package audio

import (
	"testing"

	"visualizer/internal/config"
	"visualizer/internal/frame"
)

func newTestEngine(t testing.TB, capacity, frames, channels int) (*Engine, *frame.Channel) {
	t.Helper()
	ch := frame.MustNewChannel(capacity)
	cfg := config.Default().Audio
	cfg.FramesPerBuffer = frames
	cfg.InputChannels = channels
	e, err := newEngine(cfg, ch, nil)
	if err != nil {
		t.Fatalf("newEngine() error = %v", err)
	}
	return e, ch
}

func TestNewEngine_Invalid(t *testing.T) {
	cfg := config.Default().Audio
	if _, err := newEngine(cfg, nil, nil); err == nil {
		t.Error("expected error for nil channel")
	}
	cfg.InputChannels = 0
	if _, err := newEngine(cfg, frame.MustNewChannel(2), nil); err == nil {
		t.Error("expected error for zero channels")
	}
}

func TestProcessInputStream_PublishesCopy(t *testing.T) {
	e, ch := newTestEngine(t, 4, 4, 2)

	in := []float32{0.1, -0.1, 0.2, -0.2, 0.3, -0.3, 0.4, -0.4}
	e.processInputStream(in)
	in[0] = 9 // The device buffer is reused by PortAudio after the callback.

	block, ok := ch.Pop()
	if !ok {
		t.Fatal("no block published")
	}
	if block.Channels != 2 || block.Frames() != 4 || block.SampleRate != config.DefaultSampleRate {
		t.Errorf("block shape = %d ch, %d frames, %v Hz", block.Channels, block.Frames(), block.SampleRate)
	}
	if block.Samples[0] != 0.1 || block.Samples[7] != -0.4 {
		t.Errorf("samples = %v", block.Samples)
	}
	if e.Callbacks() != 1 {
		t.Errorf("Callbacks() = %d, want 1", e.Callbacks())
	}
}

func TestProcessInputStream_ShortBuffer(t *testing.T) {
	e, ch := newTestEngine(t, 2, 8, 1)
	e.processInputStream([]float32{1, 2, 3})
	block, _ := ch.Pop()
	if len(block.Samples) != 3 {
		t.Errorf("len(Samples) = %d, want 3", len(block.Samples))
	}

	// A later full callback reuses pool blocks at full capacity again.
	for range e.pool.Len() {
		e.processInputStream(make([]float32, 8))
	}
	for {
		b, ok := ch.Pop()
		if !ok {
			break
		}
		if len(b.Samples) != 8 {
			t.Errorf("len(Samples) = %d, want 8", len(b.Samples))
		}
	}
}

func TestProcessInputStream_OverwritesWhenConsumerStalls(t *testing.T) {
	e, ch := newTestEngine(t, 2, 4, 1)
	for i := range 5 {
		e.processInputStream([]float32{float32(i), 0, 0, 0})
	}

	if ch.Overwrites() != 3 {
		t.Errorf("Overwrites() = %d, want 3", ch.Overwrites())
	}
	// The consumer sees the newest two blocks, intact.
	for _, want := range []float32{3, 4} {
		b, ok := ch.Pop()
		if !ok || b.Samples[0] != want {
			t.Fatalf("Pop() = %v, %t; want first sample %v", b, ok, want)
		}
	}
}

func TestProcessInputStreamZeroAllocs(t *testing.T) {
	e, ch := newTestEngine(t, 4, 1024, 2)
	in := make([]float32, 2048)

	allocs := testing.AllocsPerRun(100, func() {
		e.processInputStream(in)
		ch.Pop()
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in capture hot path, got %.1f", allocs)
	}
}

// BenchmarkHotPath benchmarks one capture callback plus the consumer's pop.
func BenchmarkHotPath(b *testing.B) {
	e, ch := newTestEngine(b, 4, 1024, 2)
	in := make([]float32, 2048)
	for i := range in {
		in[i] = float32(i%100) / 100
	}

	for b.Loop() {
		e.processInputStream(in)
		ch.Pop()
	}
}
