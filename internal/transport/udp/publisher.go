// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"visualizer/internal/analysis"
)

// UDPPublisher packs analysis frames into the binary packet format and sends
// them over UDP using a UDPSender. Frames arriving sooner than interval after
// the last sent packet are skipped, which lets a low-rate renderer ride along
// with a 60Hz consumer.
type UDPPublisher struct {
	sender   *UDPSender
	interval time.Duration

	mu          sync.Mutex
	lastSent    time.Time
	sequenceNum uint32 // Monotonically increasing sequence number for packets.
	buf         []byte // Reused packet buffer.
	skipped     uint64
}

// NewUDPPublisher creates a publisher over sender. An interval of zero sends
// every frame.
func NewUDPPublisher(interval time.Duration, sender *UDPSender) (*UDPPublisher, error) {
	if sender == nil {
		return nil, errors.New("UDPPublisher: UDP sender cannot be nil")
	}
	if interval < 0 {
		return nil, fmt.Errorf("UDPPublisher: negative interval %s", interval)
	}
	logger.Infof("Publishing analysis frames (interval: %s)", interval)
	return &UDPPublisher{
		sender:   sender,
		interval: interval,
		buf:      make([]byte, 0, 16*1024),
	}, nil
}

// Send encodes and transmits one frame. Values other than AudioParameters are
// rejected.
func (p *UDPPublisher) Send(data any) error {
	var params *analysis.AudioParameters
	switch v := data.(type) {
	case *analysis.AudioParameters:
		params = v
	case analysis.AudioParameters:
		params = &v
	default:
		return fmt.Errorf("UDPPublisher: unsupported payload %T", data)
	}
	if params == nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.interval > 0 && !p.lastSent.IsZero() && params.Timestamp.Sub(p.lastSent) < p.interval {
		p.skipped++
		return nil
	}

	p.sequenceNum++
	p.buf = AppendPacket(p.buf[:0], p.sequenceNum, params)
	if err := p.sender.Send(p.buf); err != nil {
		return err
	}
	p.lastSent = params.Timestamp
	return nil
}

// Sequence returns the sequence number of the most recent packet.
func (p *UDPPublisher) Sequence() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sequenceNum
}

// Skipped returns the number of frames dropped by the rate limit.
func (p *UDPPublisher) Skipped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skipped
}

// Close closes the underlying sender.
func (p *UDPPublisher) Close() error {
	return p.sender.Close()
}
