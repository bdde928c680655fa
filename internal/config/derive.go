package config

import (
	"time"

	"visualizer/internal/analysis"
	applog "visualizer/internal/log"
)

// Level returns the effective log level. Debug overrides log_level.
func (c *Config) Level() applog.LogLevel {
	if c.Debug {
		return applog.LevelDebug
	}
	level, _ := applog.ParseLevel(c.LogLevel)
	return level
}

// Pipeline returns the analysis settings. The config must have passed Validate.
func (c *Config) Pipeline() analysis.PipelineConfig {
	window, _ := analysis.ParseWindowFunc(c.Analysis.WindowFunction)
	return analysis.PipelineConfig{
		SampleRate:        c.Audio.SampleRate,
		WindowSize:        c.Analysis.WindowSize,
		WaveformLength:    c.Analysis.WaveformLength,
		Window:            window,
		EnergySensitivity: c.Onset.Energy.Sensitivity,
		EnergyCooldown:    c.Onset.Energy.Cooldown,
		FluxSensitivity:   c.Onset.Flux.Sensitivity,
		FluxCooldown:      c.Onset.Flux.Cooldown,
		MinBPM:            c.Tempo.MinBPM,
		MaxBPM:            c.Tempo.MaxBPM,
		ConfidenceScale:   c.Tempo.ConfidenceScale,
		GateThreshold:     c.Analysis.GateThreshold,
	}
}

// FrameInterval returns the time between consumer cycles.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.Analysis.FrameRate)
}
