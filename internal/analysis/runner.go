// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"visualizer/internal/frame"
	applog "visualizer/internal/log"
)

// DefaultFrameRate is the consumer cadence in cycles per second.
const DefaultFrameRate = 60

var logger = applog.Component("analysis")

// Runner is the consumer side of the capture hand-off. On every tick it pops
// at most one block, runs a pipeline cycle on it and fans the result out to
// its sinks. A tick that finds the channel empty produces nothing.
type Runner struct {
	channel  *frame.Channel
	pipeline *Pipeline
	sinks    []Sink
	interval time.Duration
	recorder CycleRecorder
	now      func() time.Time

	failing []bool // Per sink, so a failing sink is logged once per outage.

	cycles atomic.Uint64
	idle   atomic.Uint64
	latest atomic.Pointer[AudioParameters]
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithRecorder reports every cycle and idle tick to rec.
func WithRecorder(rec CycleRecorder) RunnerOption {
	return func(r *Runner) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// WithClock replaces the wall clock used to timestamp cycles.
func WithClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

// NewRunner builds a consumer loop ticking frameRate times per second.
func NewRunner(channel *frame.Channel, pipeline *Pipeline, frameRate float64, sinks []Sink, opts ...RunnerOption) (*Runner, error) {
	if channel == nil || pipeline == nil {
		return nil, fmt.Errorf("runner requires a channel and a pipeline")
	}
	if !(frameRate > 0) {
		return nil, fmt.Errorf("frame rate must be positive, got %v", frameRate)
	}
	r := &Runner{
		channel:  channel,
		pipeline: pipeline,
		sinks:    sinks,
		interval: time.Duration(float64(time.Second) / frameRate),
		recorder: nopRecorder{},
		now:      time.Now,
		failing:  make([]bool, len(sinks)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run ticks until ctx is cancelled. It returns nil on cancellation.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logger.Infof("Consumer loop started (interval: %s, sinks: %d)", r.interval, len(r.sinks))
	for {
		select {
		case <-ctx.Done():
			logger.Infof("Consumer loop stopped after %d cycles (%d idle ticks)", r.cycles.Load(), r.idle.Load())
			return nil
		case <-ticker.C:
			r.Step(ctx)
		}
	}
}

// Step runs a single tick and reports whether a block was processed.
func (r *Runner) Step(ctx context.Context) bool {
	block, ok := r.channel.Pop()
	if !ok {
		r.idle.Add(1)
		r.recorder.RecordIdle(ctx)
		return false
	}

	start := time.Now()
	params := r.pipeline.Cycle(r.now(), block)
	elapsed := time.Since(start)

	r.latest.Store(&params)
	r.cycles.Add(1)
	r.recorder.RecordCycle(ctx, &params, elapsed)
	r.publish(&params)
	return true
}

func (r *Runner) publish(params *AudioParameters) {
	for i, s := range r.sinks {
		err := s.Send(params)
		switch {
		case err != nil && !r.failing[i]:
			r.failing[i] = true
			logger.Warnf("Sink %d (%T) failed: %v", i, s, err)
		case err == nil && r.failing[i]:
			r.failing[i] = false
			logger.Infof("Sink %d (%T) recovered", i, s)
		}
	}
}

// Latest returns the most recent parameters, or nil before the first cycle.
// Safe to call from any goroutine.
func (r *Runner) Latest() *AudioParameters {
	return r.latest.Load()
}

// Cycles returns the number of ticks that processed a block.
func (r *Runner) Cycles() uint64 { return r.cycles.Load() }

// IdleTicks returns the number of ticks that found the channel empty.
func (r *Runner) IdleTicks() uint64 { return r.idle.Load() }
