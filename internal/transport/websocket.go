// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	broadcastQueueSize = 8
	writeTimeout       = 250 * time.Millisecond
)

// WebSocketTransport broadcasts every frame as JSON to all connected
// WebSocket clients. Send never blocks: frames are queued for a single
// broadcaster goroutine and dropped when the queue is full.
type WebSocketTransport struct {
	addr      string
	path      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWebSocketTransport creates a transport that will serve upgrades on path
// when ListenAndServe is called with addr. It can also be mounted on an
// existing mux via ServeHTTP.
func NewWebSocketTransport(addr, path string) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		path: path,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024, // One frame of spectrum and waveform.
			CheckOrigin: func(r *http.Request) bool {
				return true // Renderers are local tools, often served from file://.
			},
		},
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan any, broadcastQueueSize),
		done:      make(chan struct{}),
	}

	wst.wg.Add(1)
	go wst.handleBroadcasts()
	return wst
}

// ListenAndServe serves the WebSocket endpoint until ctx is cancelled.
func (wst *WebSocketTransport) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(wst.path, wst)

	server := &http.Server{
		Addr:              wst.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting WebSocket server on %s%s", wst.addr, wst.path)
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

// ServeHTTP upgrades the request and registers the client.
func (wst *WebSocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("Upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	select {
	case <-wst.done:
		wst.clientsMu.Unlock()
		conn.Close()
		return
	default:
	}
	wst.clients[conn] = struct{}{}
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	logger.Infof("Client %s connected, total: %d", conn.RemoteAddr(), total)

	// Clients never send anything meaningful; reading only detects the close.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				wst.drop(conn)
				return
			}
		}
	}()
}

func (wst *WebSocketTransport) drop(conn *websocket.Conn) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[conn]
	delete(wst.clients, conn)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	if ok {
		conn.Close()
		logger.Infof("Client %s disconnected, total: %d", conn.RemoteAddr(), total)
	}
}

// handleBroadcasts encodes each frame once and writes it to every client.
func (wst *WebSocketTransport) handleBroadcasts() {
	defer wst.wg.Done()
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			payload, err := json.Marshal(data)
			if err != nil {
				logger.Errorf("Encoding frame: %v", err)
				continue
			}
			for _, conn := range wst.snapshot() {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					logger.Warnf("Error sending to client %s: %v", conn.RemoteAddr(), err)
					wst.drop(conn)
				}
			}
		}
	}
}

func (wst *WebSocketTransport) snapshot() []*websocket.Conn {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	conns := make([]*websocket.Conn, 0, len(wst.clients))
	for c := range wst.clients {
		conns = append(conns, c)
	}
	return conns
}

// Send queues data for broadcast to all connected clients.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return ErrClosed
	default:
	}
	select {
	case wst.broadcast <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Close stops the broadcaster and disconnects every client. It does not stop
// a running ListenAndServe; cancel its context for that.
func (wst *WebSocketTransport) Close() error {
	wst.closeOnce.Do(func() {
		logger.Infof("Closing WebSocket transport")
		wst.clientsMu.Lock()
		close(wst.done)
		for client := range wst.clients {
			client.Close()
		}
		clear(wst.clients)
		wst.clientsMu.Unlock()
		wst.wg.Wait()
	})
	return nil
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
