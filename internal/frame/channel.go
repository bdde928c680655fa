// SPDX-License-Identifier: MIT
/*
Package frame implements the hand-off between the audio capture thread and the
analysis thread.

Channel is a fixed-capacity single-producer/single-consumer queue of sample
blocks. It never blocks and never allocates after construction:

  - Push always stores the newest block. When the queue is full the oldest
    unread block is overwritten instead of the new one being rejected.
  - Pop returns immediately with ok=false when the queue is empty.

Thread Safety:
  - Exactly one goroutine may call Push and exactly one may call Pop.
  - Len, IsEmpty, IsFull, Pushed and Overwrites may be called from anywhere.
  - No locks: positions are monotonically increasing atomic counters and every
    slot carries a sequence number so the consumer can detect a slot that the
    producer lapped while it was being read.
*/
package frame

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// ErrZeroCapacity is returned by NewChannel when asked for an empty queue.
var ErrZeroCapacity = errors.New("frame channel capacity must be greater than zero")

type slot struct {
	seq   atomic.Uint64 // index+1 of the block stored here, 0 while being written.
	block atomic.Pointer[SampleBlock]
}

// Channel is a lock-free overwrite-on-full SPSC ring of *SampleBlock.
type Channel struct {
	slots    []slot
	capacity uint64

	_    cpu.CacheLinePad
	tail atomic.Uint64 // Next write index. Producer-owned.
	_    cpu.CacheLinePad
	head atomic.Uint64 // Next read index. Consumer-owned.
	_    cpu.CacheLinePad

	// Statistics for monitoring.
	pushed     atomic.Uint64
	overwrites atomic.Uint64
}

// NewChannel allocates a channel holding at most capacity blocks.
func NewChannel(capacity int) (*Channel, error) {
	if capacity <= 0 {
		return nil, ErrZeroCapacity
	}
	return &Channel{
		slots:    make([]slot, capacity),
		capacity: uint64(capacity),
	}, nil
}

// MustNewChannel is like NewChannel but panics on an invalid capacity.
func MustNewChannel(capacity int) *Channel {
	c, err := NewChannel(capacity)
	if err != nil {
		panic(err)
	}
	return c
}

// Push enqueues b. It returns true if the block was enqueued cleanly and false
// if the queue was full and the oldest unread block was overwritten. Either
// way b is stored. Under a concurrent Pop of the oldest slot the result is a
// best-effort report.
//
// Performance Critical (Hot Path): no allocations, no locks, no syscalls.
func (c *Channel) Push(b *SampleBlock) bool {
	t := c.tail.Load()
	s := &c.slots[t%c.capacity]

	s.seq.Store(0)
	s.block.Store(b)
	s.seq.Store(t + 1)
	c.tail.Store(t + 1)
	c.pushed.Add(1)

	if t-c.head.Load() >= c.capacity {
		c.overwrites.Add(1)
		return false
	}
	return true
}

// Pop dequeues the oldest unread block in FIFO order. It returns ok=false
// immediately if the queue is empty. Blocks that were overwritten before being
// read are skipped.
//
// Performance Critical (Hot Path): no allocations, no locks. The retry loop
// only spins while the producer is in the middle of rewriting the slot being
// read, which is three atomic stores.
func (c *Channel) Pop() (block *SampleBlock, ok bool) {
	for {
		h := c.head.Load()
		t := c.tail.Load()
		if h == t {
			return nil, false
		}
		if t-h > c.capacity {
			h = t - c.capacity
		}

		s := &c.slots[h%c.capacity]
		before := s.seq.Load()
		b := s.block.Load()
		after := s.seq.Load()
		if before == h+1 && after == h+1 {
			c.head.Store(h + 1)
			return b, true
		}
	}
}

// Len returns the number of unread blocks.
func (c *Channel) Len() int {
	t := c.tail.Load()
	h := c.head.Load()
	n := t - h
	if n > c.capacity {
		n = c.capacity
	}
	return int(n)
}

// Cap returns the fixed capacity.
func (c *Channel) Cap() int {
	return int(c.capacity)
}

// IsEmpty reports whether there is nothing to pop.
func (c *Channel) IsEmpty() bool {
	return c.Len() == 0
}

// IsFull reports whether the next Push will overwrite an unread block.
func (c *Channel) IsFull() bool {
	return c.Len() == int(c.capacity)
}

// Pushed returns the total number of blocks ever pushed.
func (c *Channel) Pushed() uint64 {
	return c.pushed.Load()
}

// Overwrites returns how many pushes replaced an unread block.
func (c *Channel) Overwrites() uint64 {
	return c.overwrites.Load()
}
