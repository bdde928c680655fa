// SPDX-License-Identifier: MIT
package analysis

import (
	"context"
	"time"
)

// Sink receives one AudioParameters value per analysis cycle. It is the
// boundary to the renderer; transports implement it.
type Sink interface {
	// Send delivers data. It is called from the consumer loop, so
	// implementations should return quickly and must not retain data beyond
	// what they own (the slices in AudioParameters are already copies).
	Send(data any) error
}

// CycleRecorder observes the consumer loop. Implementations must not block.
type CycleRecorder interface {
	RecordCycle(ctx context.Context, params *AudioParameters, elapsed time.Duration)
	RecordIdle(ctx context.Context)
}

type nopRecorder struct{}

func (nopRecorder) RecordCycle(context.Context, *AudioParameters, time.Duration) {}
func (nopRecorder) RecordIdle(context.Context)                                   {}
