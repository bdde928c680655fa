// SPDX-License-Identifier: MIT
package analysis

// history is a fixed-capacity FIFO backed by a ring buffer. Pushing into a
// full history evicts the oldest entry. It never allocates after creation.
type history[T any] struct {
	buf   []T
	start int // Index of the oldest entry.
	n     int
}

func newHistory[T any](capacity int) *history[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &history[T]{buf: make([]T, capacity)}
}

func (h *history[T]) push(v T) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = v
		h.n++
		return
	}
	h.buf[h.start] = v
	h.start = (h.start + 1) % len(h.buf)
}

// at returns the i-th entry, 0 being the oldest.
func (h *history[T]) at(i int) T {
	return h.buf[(h.start+i)%len(h.buf)]
}

func (h *history[T]) len() int { return h.n }

func (h *history[T]) reset() {
	var zero T
	for i := range h.buf {
		h.buf[i] = zero
	}
	h.start, h.n = 0, 0
}

// meanExceptNewest averages every entry but the most recent one.
func meanExceptNewest(h *history[float64]) float64 {
	if h.n < 2 {
		return 0
	}
	var sum float64
	for i := range h.n - 1 {
		sum += h.at(i)
	}
	return sum / float64(h.n-1)
}
