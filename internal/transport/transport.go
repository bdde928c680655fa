// SPDX-License-Identifier: MIT
package transport

import (
	"errors"

	applog "visualizer/internal/log"
)

var logger = applog.Component("transport")

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("transport closed")
	// ErrQueueFull is returned when a frame is dropped because the transport
	// is not keeping up.
	ErrQueueFull = errors.New("transport queue full, frame dropped")
)

// Transport delivers analysis output to the renderer. It satisfies
// analysis.Sink. Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// CloseAll closes every transport and joins their errors.
func CloseAll(transports ...Transport) error {
	var errs []error
	for _, t := range transports {
		if t == nil {
			continue
		}
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
