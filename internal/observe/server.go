// SPDX-License-Identifier: MIT
package observe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	applog "visualizer/internal/log"
)

var logger = applog.Component("observe")

// Server exposes /metrics, /healthz and /readyz.
type Server struct {
	addr string
	mux  *http.ServeMux
}

// NewServer builds the mux. reg may be nil, in which case /metrics is not
// mounted.
func NewServer(addr string, reg *prometheus.Registry, health *Health) *Server {
	mux := http.NewServeMux()
	if reg != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	if health != nil {
		health.Register(mux)
	}
	return &Server{addr: addr, mux: mux}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Serving metrics and health on %s", s.addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ProgressCheck returns a readiness check that fails unless counter has moved
// since the previous probe. The first probe only records a baseline and
// passes. It suits monotonically increasing counters such as pushed blocks or
// analysis cycles.
func ProgressCheck(name string, counter func() uint64) Checker {
	var last atomic.Uint64
	var seen atomic.Bool
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			now := counter()
			prev := last.Swap(now)
			if !seen.Swap(true) {
				return nil
			}
			if now == prev {
				return fmt.Errorf("%s stalled at %d", name, now)
			}
			return nil
		},
	}
}
