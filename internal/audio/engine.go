// SPDX-License-Identifier: MIT
/*
Package audio captures sample blocks and hands them to the analysis consumer:
- Live capture from a PortAudio input device
- WAV file playback paced at real time, or drained as fast as possible
- Device discovery and listing

Thread Safety:
- The capture callback is the single producer of the frame channel
- Pre-allocates a block pool so the hot path never allocates
- Counters are atomic and safe to read from any goroutine
*/
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"visualizer/internal/config"
	"visualizer/internal/frame"
	applog "visualizer/internal/log"
)

var logger = applog.Component("audio")

// poolHeadroom is how many blocks the pool keeps beyond the channel capacity:
// one being filled by the producer and one held by the consumer.
const poolHeadroom = 2

type Engine struct {
	// Core configuration.
	config config.AudioConfig

	// Audio input handling.
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream

	// Hand-off to the analysis consumer.
	channel *frame.Channel
	pool    *frame.BlockPool

	callbacks atomic.Uint64
}

// NewEngine resolves the configured input device and prepares a block pool
// sized for ch. PortAudio must already be initialized.
func NewEngine(cfg config.AudioConfig, ch *frame.Channel) (*Engine, error) {
	inputDevice, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, err
	}
	return newEngine(cfg, ch, inputDevice)
}

func newEngine(cfg config.AudioConfig, ch *frame.Channel, device *portaudio.DeviceInfo) (*Engine, error) {
	if ch == nil {
		return nil, errors.New("audio: frame channel cannot be nil")
	}
	if cfg.FramesPerBuffer <= 0 || cfg.InputChannels <= 0 {
		return nil, fmt.Errorf("audio: invalid block shape %d frames x %d channels", cfg.FramesPerBuffer, cfg.InputChannels)
	}

	engine := &Engine{
		config:      cfg,
		inputDevice: device,
		channel:     ch,
		pool:        frame.NewBlockPool(ch.Cap()+poolHeadroom, cfg.FramesPerBuffer, cfg.InputChannels, cfg.SampleRate),
	}

	if device != nil {
		if cfg.LowLatency {
			engine.inputLatency = device.DefaultLowInputLatency
		} else {
			engine.inputLatency = device.DefaultHighInputLatency
		}
	}
	return engine, nil
}

func (e *Engine) StartInputStream() error {
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.config.InputChannels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.config.FramesPerBuffer,
		SampleRate:      e.config.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	logger.Infof("Capturing from %q: %d ch @ %.0f Hz, %d frames/buffer, latency %s",
		e.inputDevice.Name, e.config.InputChannels, e.config.SampleRate, e.config.FramesPerBuffer, e.inputLatency)
	return nil
}

func (e *Engine) StopInputStream() error {
	if e.inputStream != nil {
		if err := e.inputStream.Stop(); err != nil {
			return err
		}

		if err := e.inputStream.Close(); err != nil {
			return err
		}

		e.inputStream = nil
		logger.Infof("Capture stopped after %d callbacks", e.callbacks.Load())
	}

	return nil
}

// Run captures until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.StartInputStream(); err != nil {
		return err
	}
	<-ctx.Done()
	return e.StopInputStream()
}

// processInputStream is the capture callback. It copies the device buffer
// into the next pooled block and publishes it.
// Performance Critical (Hot Path):
// - Runs on the PortAudio thread
// - Uses pre-allocated buffers only
// - No allocations, locks or logging
func (e *Engine) processInputStream(in []float32) {
	block := e.pool.Next()
	n := copy(block.Samples, in)
	block.Samples = block.Samples[:n]
	e.channel.Push(block)
	e.callbacks.Add(1)
}

// Callbacks returns the number of capture callbacks delivered so far.
func (e *Engine) Callbacks() uint64 {
	return e.callbacks.Load()
}
