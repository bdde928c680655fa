// SPDX-License-Identifier: MIT
package frame

import "time"

// SampleBlock is one capture callback's worth of interleaved audio samples.
type SampleBlock struct {
	Samples    []float32 // Interleaved samples in the range [-1, 1].
	SampleRate float64   // Sample rate in Hz.
	Channels   int       // Number of interleaved channels (1=mono, 2=stereo).
}

// Frames returns the number of sample frames in the block (samples per channel).
func (b *SampleBlock) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the wall-clock length of the block.
func (b *SampleBlock) Duration() time.Duration {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(b.Frames()) / b.SampleRate * float64(time.Second))
}

// BlockPool is a fixed ring of pre-allocated blocks owned by a single producer.
// Next hands out blocks round-robin so the producer can fill one without
// allocating. The pool must be larger than the channel it feeds so a block is
// never refilled while it can still be sitting unread in that channel.
type BlockPool struct {
	blocks []SampleBlock
	next   int
}

// NewBlockPool allocates size blocks, each able to hold frames*channels samples.
func NewBlockPool(size, frames, channels int, sampleRate float64) *BlockPool {
	if size < 1 {
		size = 1
	}
	p := &BlockPool{blocks: make([]SampleBlock, size)}
	for i := range p.blocks {
		p.blocks[i] = SampleBlock{
			Samples:    make([]float32, frames*channels),
			SampleRate: sampleRate,
			Channels:   channels,
		}
	}
	return p
}

// Next returns the next block in the ring. Its Samples slice is resliced to
// full capacity; callers shrink it if they fill fewer samples.
func (p *BlockPool) Next() *SampleBlock {
	b := &p.blocks[p.next]
	p.next++
	if p.next == len(p.blocks) {
		p.next = 0
	}
	b.Samples = b.Samples[:cap(b.Samples)]
	return b
}

// Len returns the number of blocks in the pool.
func (p *BlockPool) Len() int {
	return len(p.blocks)
}
