package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the visualizer.
const (
	// Audio capture defaults.
	DefaultDeviceID        = MinDeviceID // System default input device.
	DefaultSampleRate      = 44100       // CD-quality audio.
	DefaultFramesPerBuffer = 1024        // ~23ms per block at 44.1kHz.
	DefaultInputChannels   = 2           // Stereo capture, mixed to mono for analysis.
	DefaultLowLatency      = false       // Standard latency mode.
	DefaultChannelCapacity = 4           // Blocks buffered between capture and analysis.

	// Analysis defaults.
	DefaultWindowSize     = 2048
	DefaultWindowFunction = "hann"
	DefaultWaveformLength = 512
	DefaultFrameRate      = 60.0 // Consumer cycles per second.
	DefaultGateThreshold  = 0.0  // Gate open.

	// Onset and tempo defaults.
	DefaultSensitivity     = 1.0
	DefaultCooldown        = 100 * time.Millisecond
	DefaultMinBPM          = 60.0
	DefaultMaxBPM          = 200.0
	DefaultConfidenceScale = 100.0

	// Transport and metrics defaults.
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultWebSocketAddress = ":8080"
	DefaultWebSocketPath    = "/ws"
	DefaultMetricsAddress   = ":9464"

	// Hardware and processing limits.
	MinDeviceID     = -1     // -1 represents system default device.
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz).
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz).
	MaxBufferFrames = 8192   // Maximum frames per buffer.
	MaxWindowSize   = 32768
)

// Default returns a configuration populated with built-in defaults. This is
// the base onto which a config file and environment overrides are applied.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
			InputChannels:   DefaultInputChannels,
			ChannelCapacity: DefaultChannelCapacity,
		},
		Analysis: AnalysisConfig{
			WindowSize:     DefaultWindowSize,
			WindowFunction: DefaultWindowFunction,
			WaveformLength: DefaultWaveformLength,
			FrameRate:      DefaultFrameRate,
			GateThreshold:  DefaultGateThreshold,
		},
		Onset: OnsetConfig{
			Energy: DetectorConfig{Sensitivity: DefaultSensitivity, Cooldown: DefaultCooldown},
			Flux:   DetectorConfig{Sensitivity: DefaultSensitivity, Cooldown: DefaultCooldown},
		},
		Tempo: TempoConfig{
			MinBPM:          DefaultMinBPM,
			MaxBPM:          DefaultMaxBPM,
			ConfidenceScale: DefaultConfidenceScale,
		},
		Transport: TransportConfig{
			UDPEnabled:       false,
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  0, // Every cycle.
			WebSocketEnabled: true,
			WebSocketAddress: DefaultWebSocketAddress,
			WebSocketPath:    DefaultWebSocketPath,
			LogEnabled:       false,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: DefaultMetricsAddress,
		},
	}
}
