/*
Package bitint provides the power-of-two helpers used to validate and size FFT
windows.

Design Principles:
- Zero Allocations: all operations use stack memory only
- O(1): a single bits.Len or mask per call
- Real-Time Safe: no locks, syscalls, or blocking operations

Usage:

	if !bitint.IsPowerOfTwo(windowSize) {
		return fmt.Errorf("window size %d is not a power of two (try %d)",
			windowSize, bitint.NextPowerOfTwo(windowSize))
	}

NextPowerOfTwo subtracts one before taking the bit length so that exact powers
of two map to themselves: for 8, bits.Len(7) = 3 and 1<<3 = 8, whereas
bits.Len(8) = 4 would double it to 16.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of two. Powers of two have
// exactly one bit set, so n&(n-1) clears it to zero.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
