// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"visualizer/internal/analysis"
)

// Packet layout, big-endian:
//
//	uint32  sequence
//	int64   timestamp (unix nanoseconds)
//	uint8   flags (bit 0 energy beat, bit 1 flux beat)
//	float32 bass, mid, treble, amplitude, bpm, tempo confidence
//	uint16  spectrum length, then that many float32
//	uint16  waveform length, then that many float32
const (
	headerSize    = 4 + 8 + 1 + 6*4
	flagBeat      = 1 << 0
	flagBeatFlux  = 1 << 1
	maxSeriesSize = math.MaxUint16
)

// ErrShortPacket is returned by ParsePacket when the datagram is truncated.
var ErrShortPacket = errors.New("udp: short packet")

// Packet is the decoded form of a datagram written by AppendPacket.
type Packet struct {
	Sequence        uint32
	Timestamp       time.Time
	Beat            bool
	BeatFlux        bool
	Bass            float32
	Mid             float32
	Treble          float32
	Amplitude       float32
	BPM             float32
	TempoConfidence float32
	Spectrum        []float32
	Waveform        []float32
}

// PacketSize returns the encoded size of p.
func PacketSize(p *analysis.AudioParameters) int {
	return headerSize + 2 + 4*min(len(p.Spectrum), maxSeriesSize) + 2 + 4*min(len(p.Waveform), maxSeriesSize)
}

// AppendPacket encodes p with the given sequence number and appends it to dst.
// Series longer than 65535 values are truncated.
func AppendPacket(dst []byte, seq uint32, p *analysis.AudioParameters) []byte {
	var flags uint8
	if p.Beat {
		flags |= flagBeat
	}
	if p.BeatFlux {
		flags |= flagBeatFlux
	}

	dst = binary.BigEndian.AppendUint32(dst, seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(p.Timestamp.UnixNano()))
	dst = append(dst, flags)
	for _, v := range [...]float64{p.Bass, p.Mid, p.Treble, p.Amplitude, p.BPM, p.TempoConfidence} {
		dst = appendFloat32(dst, float32(v))
	}
	dst = appendSeries(dst, p.Spectrum)
	dst = appendSeries(dst, p.Waveform)
	return dst
}

func appendSeries(dst []byte, values []float64) []byte {
	n := min(len(values), maxSeriesSize)
	dst = binary.BigEndian.AppendUint16(dst, uint16(n))
	for _, v := range values[:n] {
		dst = appendFloat32(dst, float32(v))
	}
	return dst
}

func appendFloat32(dst []byte, v float32) []byte {
	return binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
}

// ParsePacket decodes a datagram produced by AppendPacket.
func ParsePacket(b []byte) (Packet, error) {
	var p Packet
	if len(b) < headerSize {
		return p, fmt.Errorf("%w: %d bytes, header needs %d", ErrShortPacket, len(b), headerSize)
	}

	p.Sequence = binary.BigEndian.Uint32(b[0:])
	p.Timestamp = time.Unix(0, int64(binary.BigEndian.Uint64(b[4:])))
	flags := b[12]
	p.Beat = flags&flagBeat != 0
	p.BeatFlux = flags&flagBeatFlux != 0

	off := 13
	for _, dst := range []*float32{&p.Bass, &p.Mid, &p.Treble, &p.Amplitude, &p.BPM, &p.TempoConfidence} {
		*dst = math.Float32frombits(binary.BigEndian.Uint32(b[off:]))
		off += 4
	}

	var err error
	if p.Spectrum, off, err = readSeries(b, off); err != nil {
		return p, fmt.Errorf("spectrum: %w", err)
	}
	if p.Waveform, _, err = readSeries(b, off); err != nil {
		return p, fmt.Errorf("waveform: %w", err)
	}
	return p, nil
}

func readSeries(b []byte, off int) ([]float32, int, error) {
	if len(b) < off+2 {
		return nil, off, ErrShortPacket
	}
	n := int(binary.BigEndian.Uint16(b[off:]))
	off += 2
	if len(b) < off+4*n {
		return nil, off, fmt.Errorf("%w: want %d values", ErrShortPacket, n)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(b[off:]))
		off += 4
	}
	return out, off, nil
}
