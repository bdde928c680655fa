// SPDX-License-Identifier: MIT
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"visualizer/internal/analysis"
	applog "visualizer/internal/log"
	"visualizer/pkg/bitint"

	"gopkg.in/yaml.v3"
)

var logger = applog.Component("config")

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Forces the debug log level.
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`     // Capture settings.
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Spectral analysis and consumer loop.
	Onset     OnsetConfig     `yaml:"onset"`     // Beat detector tuning.
	Tempo     TempoConfig     `yaml:"tempo"`     // Tempo estimation.
	Transport TransportConfig `yaml:"transport"` // Renderer transports.
	Metrics   MetricsConfig   `yaml:"metrics"`   // Prometheus endpoint.
}

// AudioConfig holds settings related to audio input.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for audio input (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz (e.g., 44100, 48000).
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per capture callback.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
	InputChannels   int     `yaml:"input_channels"`    // Number of input channels to capture (e.g., 1 for mono, 2 for stereo).
	ChannelCapacity int     `yaml:"channel_capacity"`  // Blocks held between capture and analysis.
}

// AnalysisConfig holds spectral analysis and consumer loop settings.
type AnalysisConfig struct {
	WindowSize     int     `yaml:"window_size"`     // FFT size, a power of two.
	WindowFunction string  `yaml:"window_function"` // FFT window name (e.g., "hann", "hamming").
	WaveformLength int     `yaml:"waveform_length"` // Points in the display waveform.
	FrameRate      float64 `yaml:"frame_rate"`      // Consumer cycles per second.
	GateThreshold  float64 `yaml:"gate_threshold"`  // Peak level below which blocks count as silence, 0-1.
}

// DetectorConfig tunes one onset detector.
type DetectorConfig struct {
	Sensitivity float64       `yaml:"sensitivity"` // Higher fires more easily. Must be positive.
	Cooldown    time.Duration `yaml:"cooldown"`    // Minimum time between beats.
}

// OnsetConfig holds both onset detectors.
type OnsetConfig struct {
	Energy DetectorConfig `yaml:"energy"`
	Flux   DetectorConfig `yaml:"flux"`
}

// TempoConfig holds tempo estimation settings.
type TempoConfig struct {
	MinBPM          float64 `yaml:"min_bpm"`
	MaxBPM          float64 `yaml:"max_bpm"`
	ConfidenceScale float64 `yaml:"confidence_scale"` // How fast confidence falls with interval variance.
}

// TransportConfig holds settings related to sending parameters to the renderer.
type TransportConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending parameters over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Minimum interval between UDP packets, 0 sends every cycle.

	WebSocketEnabled bool   `yaml:"websocket_enabled"` // Serve parameters as JSON over WebSocket.
	WebSocketAddress string `yaml:"websocket_address"` // Listen address (e.g., ":8080").
	WebSocketPath    string `yaml:"websocket_path"`    // Upgrade path (e.g., "/ws").

	LogEnabled bool `yaml:"log_enabled"` // Log every beat at debug level.
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // Listen address for /metrics, /healthz and /readyz.
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		// Define potential locations for the config file.
		candidates := []string{
			"config.yaml",
			"visualizer.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger.Infof("Loaded configuration from %s", path)
	return cfg, nil
}

// decode overlays YAML from r onto cfg. Unknown keys are rejected so typos do
// not silently fall back to defaults.
func (cfg *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks that the configuration is coherent. It returns a joined
// error listing every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		add("log_level %q is invalid; valid values: debug, info, warn, error", c.LogLevel)
	}

	// Audio
	if c.Audio.InputDevice < MinDeviceID {
		add("audio.input_device %d is invalid; use -1 for the system default", c.Audio.InputDevice)
	}
	if !(c.Audio.SampleRate >= MinSampleRate && c.Audio.SampleRate <= MaxSampleRate) {
		add("audio.sample_rate %v outside [%d, %d]", c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Audio.FramesPerBuffer <= 0 || c.Audio.FramesPerBuffer > MaxBufferFrames {
		add("audio.frames_per_buffer %d outside [1, %d]", c.Audio.FramesPerBuffer, MaxBufferFrames)
	}
	if c.Audio.InputChannels < 1 {
		add("audio.input_channels must be at least 1, got %d", c.Audio.InputChannels)
	}
	if c.Audio.ChannelCapacity <= 0 {
		add("audio.channel_capacity must be greater than zero, got %d", c.Audio.ChannelCapacity)
	}

	// Analysis
	if !bitint.IsPowerOfTwo(c.Analysis.WindowSize) || c.Analysis.WindowSize < 2 || c.Analysis.WindowSize > MaxWindowSize {
		try := min(max(bitint.NextPowerOfTwo(c.Analysis.WindowSize), 2), MaxWindowSize)
		add("analysis.window_size %d must be a power of two in [2, %d] (try %d)", c.Analysis.WindowSize, MaxWindowSize, try)
	}
	if _, err := analysis.ParseWindowFunc(c.Analysis.WindowFunction); err != nil {
		add("analysis.window_function: %v", err)
	}
	if c.Analysis.WaveformLength <= 0 {
		add("analysis.waveform_length must be positive, got %d", c.Analysis.WaveformLength)
	}
	if !(c.Analysis.FrameRate > 0) || math.IsInf(c.Analysis.FrameRate, 0) {
		add("analysis.frame_rate must be positive, got %v", c.Analysis.FrameRate)
	}
	if !(c.Analysis.GateThreshold >= 0 && c.Analysis.GateThreshold <= 1) {
		add("analysis.gate_threshold %v outside [0, 1]", c.Analysis.GateThreshold)
	}

	// Onset
	detectors := []struct {
		name string
		cfg  DetectorConfig
	}{
		{"energy", c.Onset.Energy},
		{"flux", c.Onset.Flux},
	}
	for _, d := range detectors {
		if !(d.cfg.Sensitivity > 0) || math.IsInf(d.cfg.Sensitivity, 0) {
			add("onset.%s.sensitivity must be positive, got %v", d.name, d.cfg.Sensitivity)
		}
		if d.cfg.Cooldown < 0 {
			add("onset.%s.cooldown must not be negative, got %s", d.name, d.cfg.Cooldown)
		}
	}

	// Tempo
	if !(c.Tempo.MinBPM > 0) || !(c.Tempo.MaxBPM > c.Tempo.MinBPM) {
		add("tempo range [%v, %v] is invalid; need 0 < min_bpm < max_bpm", c.Tempo.MinBPM, c.Tempo.MaxBPM)
	}
	if !(c.Tempo.ConfidenceScale >= 0) {
		add("tempo.confidence_scale must not be negative, got %v", c.Tempo.ConfidenceScale)
	}

	// Transport
	if c.Transport.UDPEnabled {
		if _, _, err := net.SplitHostPort(c.Transport.UDPTargetAddress); err != nil {
			add("transport.udp_target_address %q appears invalid: %v", c.Transport.UDPTargetAddress, err)
		}
		if c.Transport.UDPSendInterval < 0 {
			add("transport.udp_send_interval must not be negative, got %s", c.Transport.UDPSendInterval)
		}
	}
	if c.Transport.WebSocketEnabled {
		if c.Transport.WebSocketAddress == "" {
			add("transport.websocket_address must be set when the WebSocket transport is enabled")
		}
		if !strings.HasPrefix(c.Transport.WebSocketPath, "/") {
			add("transport.websocket_path %q must start with /", c.Transport.WebSocketPath)
		}
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		add("metrics.address must be set when metrics are enabled")
	}

	return errors.Join(errs...)
}

// applyEnvOverrides applies ENV_* variables on top of file and default values.
// Malformed values are logged and ignored.
func (cfg *Config) applyEnvOverrides() {
	// ENV_{...}
	// These are general overrides.
	envBool("ENV_DEBUG", &cfg.Debug)
	envString("ENV_LOG_LEVEL", &cfg.LogLevel)

	// ENV_AUDIO_{...}
	envInt("ENV_INPUT_DEVICE", &cfg.Audio.InputDevice)
	envFloat("ENV_SAMPLE_RATE", &cfg.Audio.SampleRate)

	// ENV_UDP_{...}
	// These are specific to the transport layer.
	envBool("ENV_UDP_ENABLED", &cfg.Transport.UDPEnabled)
	envString("ENV_UDP_TARGET_ADDRESS", &cfg.Transport.UDPTargetAddress)
	envDuration("ENV_UDP_SEND_INTERVAL", &cfg.Transport.UDPSendInterval)

	// ENV_WEBSOCKET_{...}
	envBool("ENV_WEBSOCKET_ENABLED", &cfg.Transport.WebSocketEnabled)
	envString("ENV_WEBSOCKET_ADDRESS", &cfg.Transport.WebSocketAddress)

	// ENV_METRICS_{...}
	envBool("ENV_METRICS_ENABLED", &cfg.Metrics.Enabled)
	envString("ENV_METRICS_ADDRESS", &cfg.Metrics.Address)
}

func envString(key string, dst *string) {
	if val, ok := os.LookupEnv(key); ok {
		*dst = val
		logger.Infof("Overriding %s from env: %s", key, val)
	}
}

func envBool(key string, dst *bool) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		logger.Warnf("Ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = b
	logger.Infof("Overriding %s from env: %v", key, b)
}

func envInt(key string, dst *int) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		logger.Warnf("Ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = n
	logger.Infof("Overriding %s from env: %d", key, n)
}

func envFloat(key string, dst *float64) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		logger.Warnf("Ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = f
	logger.Infof("Overriding %s from env: %v", key, f)
}

func envDuration(key string, dst *time.Duration) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		logger.Warnf("Ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = d
	logger.Infof("Overriding %s from env: %s", key, d)
}
