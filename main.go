package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"visualizer/cmd"
	"visualizer/internal/analysis"
	"visualizer/internal/audio"
	"visualizer/internal/config"
	"visualizer/internal/frame"
	applog "visualizer/internal/log"
	"visualizer/internal/observe"
	"visualizer/internal/transport"
	"visualizer/internal/transport/udp"
	"visualizer/pkg/build"
)

// main is the entry point for the visualizer's analysis process.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested (list, analyze)
//   - Build the channel, pipeline, transports and metrics
//
// 2. Concurrent Phase (Hot Path):
//   - Capture (or replay) pushes sample blocks into the channel
//   - The runner pops one block per tick and publishes parameters
//   - WebSocket and metrics servers serve clients
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop capture and the consumer loop
//   - Close transports and flush metrics
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Link-time flags in release builds, VCS stamps otherwise.
	build.InitializeOrDefault()

	// Parse command line arguments and build configuration
	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("%v", err)
	}
	if opts.Command == "" {
		return // Help or version was printed.
	}
	cfg := opts.Config
	applog.SetLevel(cfg.Level())
	applog.Debugf("%s", build.GetBuildFlags())

	// Handle one-off commands that don't require the consumer loop.
	switch opts.Command {
	case cmd.CommandAnalyze:
		sum, err := cmd.Analyze(opts.File, cfg, os.Stdout, opts.Beats)
		if err != nil {
			applog.Fatalf("%v", err)
		}
		sum.Print(os.Stdout)
		return

	case cmd.CommandList:
		if err := audio.Initialize(); err != nil {
			applog.Fatalf("%v", err)
		}
		defer audio.Terminate()
		if err := cmd.List(os.Stdout, opts.Interactive); err != nil {
			applog.Errorf("%v", err)
		}
		return
	}

	if err := run(cfg, opts.File); err != nil {
		applog.Fatalf("%v", err)
	}
}

// run wires capture, analysis and outputs together and blocks until a
// termination signal arrives or a component fails.
func run(cfg *config.Config, replay string) error {
	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	channel, err := frame.NewChannel(cfg.Audio.ChannelCapacity)
	if err != nil {
		return err
	}

	// Producer: a WAV file paced at real time, or a live device.
	var produce func(context.Context) error
	pipelineCfg := cfg.Pipeline()
	if replay != "" {
		src, err := audio.OpenWAV(replay, cfg.Audio.FramesPerBuffer)
		if err != nil {
			return err
		}
		defer src.Close()
		pipelineCfg.SampleRate = src.SampleRate()
		produce = func(ctx context.Context) error {
			if err := src.Stream(ctx, channel); err != nil {
				return err
			}
			cancel() // End of file; wind everything down.
			return nil
		}
	} else {
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
		engine, err := audio.NewEngine(cfg.Audio, channel)
		if err != nil {
			return err
		}
		produce = engine.Run
	}

	pipeline, err := analysis.NewPipeline(pipelineCfg)
	if err != nil {
		return err
	}

	// Outputs.
	var (
		transports []transport.Transport
		servers    []func(context.Context) error
	)
	defer func() {
		if err := transport.CloseAll(transports...); err != nil {
			applog.Errorf("Closing transports: %v", err)
		}
	}()

	if cfg.Transport.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress, cfg.Transport.WebSocketPath)
		transports = append(transports, ws)
		servers = append(servers, ws.ListenAndServe)
	}
	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		pub, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender)
		if err != nil {
			sender.Close()
			return err
		}
		transports = append(transports, pub)
	}
	if cfg.Transport.LogEnabled {
		transports = append(transports, transport.NewLoggingTransport())
	}

	sinks := make([]analysis.Sink, len(transports))
	for i, t := range transports {
		sinks[i] = t
	}

	var runnerOpts []analysis.RunnerOption
	var provider *observe.Provider
	if cfg.Metrics.Enabled {
		provider, err = observe.InitProvider(ctx, observe.ProviderConfig{
			ServiceName:    build.GetBuildFlags().Name,
			ServiceVersion: build.GetBuildFlags().Version,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				applog.Errorf("Shutting down metrics: %v", err)
			}
		}()

		metrics, err := observe.NewMetrics(provider.MeterProvider)
		if err != nil {
			return err
		}
		if err := metrics.ObserveChannel(channel); err != nil {
			return err
		}
		runnerOpts = append(runnerOpts, analysis.WithRecorder(metrics))
	}

	runner, err := analysis.NewRunner(channel, pipeline, cfg.Analysis.FrameRate, sinks, runnerOpts...)
	if err != nil {
		return err
	}

	if provider != nil {
		health := observe.NewHealth(
			observe.ProgressCheck("capture", channel.Pushed),
			observe.ProgressCheck("analysis", runner.Cycles),
		)
		servers = append(servers, observe.NewServer(cfg.Metrics.Address, provider.Registry, health).ListenAndServe)
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return produce(gctx) })
	g.Go(func() error { return runner.Run(gctx) })
	for _, serve := range servers {
		g.Go(func() error { return serve(gctx) })
	}

	applog.Infof("Running: %d transport(s), %.0f cycles/s", len(transports), cfg.Analysis.FrameRate)
	err = g.Wait()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	applog.Infof("Stopped after %d cycles (%d idle ticks, %d blocks overwritten)",
		runner.Cycles(), runner.IdleTicks(), channel.Overwrites())
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
