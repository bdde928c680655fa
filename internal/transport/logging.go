package transport

import (
	"visualizer/internal/analysis"
)

// LoggingTransport logs beat frames instead of sending them anywhere. It is
// handy when no renderer is attached and the output only needs eyeballing.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	logger.Infof("Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs frames that carry a beat. Everything else is discarded.
func (lt *LoggingTransport) Send(data any) error {
	var p *analysis.AudioParameters
	switch v := data.(type) {
	case *analysis.AudioParameters:
		p = v
	case analysis.AudioParameters:
		p = &v
	default:
		logger.Debugf("Ignoring frame of type %T", data)
		return nil
	}
	if p == nil || (!p.Beat && !p.BeatFlux) {
		return nil
	}
	logger.Debugf("beat seq=%d energy=%t flux=%t bpm=%.1f confidence=%.2f amplitude=%.3f",
		p.Sequence, p.Beat, p.BeatFlux, p.BPM, p.TempoConfidence, p.Amplitude)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
