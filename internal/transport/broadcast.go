// Package transport streams simulation snapshots to observers over
// websockets. The simulation publishes frames; slow observers drop frames
// rather than stall the publisher, and the next frame supersedes anything
// missed.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/talgya/villagers/internal/snapshot"
)

const (
	writeTimeout    = 5 * time.Second
	readTimeout     = 60 * time.Second
	clientQueueSize = 8
)

// Broadcaster fans snapshot frames out to connected observers.
type Broadcaster struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]chan []byte
	last    []byte // most recent frame, sent to new observers on connect
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: make(map[string]chan []byte),
	}
}

// Publish marshals a frame once and queues it to every observer. Observers
// whose queue is full drop the frame.
func (b *Broadcaster) Publish(frame snapshot.Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		slog.Error("snapshot marshal failed", "error", err)
		return
	}

	b.mu.Lock()
	b.last = payload
	for sid, ch := range b.clients {
		select {
		case ch <- payload:
		default:
			slog.Debug("observer lagging, frame dropped", "session", sid)
		}
	}
	b.mu.Unlock()
}

// ObserverCount returns the number of connected observers.
func (b *Broadcaster) ObserverCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broadcaster) register(sid string) chan []byte {
	ch := make(chan []byte, clientQueueSize)
	b.mu.Lock()
	if b.last != nil {
		ch <- b.last
	}
	b.clients[sid] = ch
	b.mu.Unlock()
	return ch
}

func (b *Broadcaster) unregister(sid string) {
	b.mu.Lock()
	delete(b.clients, sid)
	b.mu.Unlock()
}

// WSHandler upgrades the request and streams frames until the observer
// disconnects.
func (b *Broadcaster) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := b.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sid := uuid.NewString()
		frames := b.register(sid)
		defer b.unregister(sid)

		slog.Info("observer connected", "session", sid, "remote", r.RemoteAddr)

		// Writer goroutine.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for payload := range frames {
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
		}()

		// Reader loop: observers send nothing meaningful, but reading keeps
		// close and ping frames processed.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		b.unregister(sid)
		close(frames)
		<-done

		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))

		slog.Info("observer disconnected", "session", sid)
	}
}

// Serve runs an HTTP server exposing the stream at /ws until ctx is
// cancelled.
func (b *Broadcaster) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", b.WSHandler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("observer stream starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
