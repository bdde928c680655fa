// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"visualizer/internal/frame"
)

// FileSource reads PCM blocks from a WAV file and normalizes them to [-1, 1].
type FileSource struct {
	file     *os.File
	decoder  *wav.Decoder
	buf      *goaudio.IntBuffer
	pool     *frame.BlockPool
	frames   int
	channels int
	rate     float64
	scale    float32
	offset   int // Subtracted before scaling; non-zero for unsigned 8-bit PCM.
}

// OpenWAV opens path and prepares to read blocks of framesPerBuffer frames.
func OpenWAV(path string, framesPerBuffer int) (*FileSource, error) {
	if framesPerBuffer <= 0 {
		return nil, fmt.Errorf("audio: frames per buffer must be positive, got %d", framesPerBuffer)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open WAV file: %w", err)
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s is not a valid WAV file", path)
	}
	if dec.WavAudioFormat != 1 {
		f.Close()
		return nil, fmt.Errorf("%s: unsupported WAV format %d, only PCM is supported", path, dec.WavAudioFormat)
	}

	channels := int(dec.NumChans)
	depth := int(dec.BitDepth)
	if channels < 1 || depth < 8 || depth > 32 {
		f.Close()
		return nil, fmt.Errorf("%s: unsupported layout %d channels x %d bits", path, channels, depth)
	}

	s := &FileSource{
		file:     f,
		decoder:  dec,
		frames:   framesPerBuffer,
		channels: channels,
		rate:     float64(dec.SampleRate),
		scale:    1 / float32(int64(1)<<(depth-1)),
		buf: &goaudio.IntBuffer{
			Format:         dec.Format(),
			Data:           make([]int, framesPerBuffer*channels),
			SourceBitDepth: depth,
		},
	}
	if depth == 8 {
		s.offset = 128
	}
	s.pool = frame.NewBlockPool(1, framesPerBuffer, channels, s.rate)

	d, _ := dec.Duration()
	logger.Infof("Opened %s: %d ch @ %.0f Hz, %d-bit, %s", path, channels, s.rate, depth, d.Round(time.Millisecond))
	return s, nil
}

// SampleRate returns the file's sample rate in Hz.
func (s *FileSource) SampleRate() float64 { return s.rate }

// Channels returns the file's channel count.
func (s *FileSource) Channels() int { return s.channels }

// Next returns the next block, or io.EOF once the file is exhausted. The final
// block may be short. The returned block is reused by later calls unless the
// source is streaming into a channel.
func (s *FileSource) Next() (*frame.SampleBlock, error) {
	n, err := s.decoder.PCMBuffer(s.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode PCM: %w", err)
	}
	n -= n % s.channels
	if n == 0 {
		return nil, io.EOF
	}

	block := s.pool.Next()
	block.Samples = block.Samples[:n]
	for i, v := range s.buf.Data[:n] {
		block.Samples[i] = float32(v-s.offset) * s.scale
	}
	return block, nil
}

// Stream pushes blocks into ch at the pace they would arrive from a capture
// device. It returns nil at end of file and ctx.Err() if cancelled.
func (s *FileSource) Stream(ctx context.Context, ch *frame.Channel) error {
	s.pool = frame.NewBlockPool(ch.Cap()+poolHeadroom, s.frames, s.channels, s.rate)

	interval := time.Duration(float64(s.frames) / s.rate * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var blocks int
	for {
		block, err := s.Next()
		if errors.Is(err, io.EOF) {
			logger.Infof("End of file after %d blocks", blocks)
			return nil
		}
		if err != nil {
			return err
		}
		ch.Push(block)
		blocks++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close releases the underlying file.
func (s *FileSource) Close() error {
	return s.file.Close()
}
