// Package hub fans messages out to the live push connections of one canvas.
package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Conn is one push connection. Send must not block on network I/O for long; an error means
// the connection is gone and it will be dropped from the hub.
type Conn interface {
	Send(msg []byte) error
	Close() error
}

// Observer is told about membership changes, mostly for metrics.
type Observer interface {
	Registered()
	Unregistered()
	Pruned()
}

type Option func(*Hub)

func WithObserver(o Observer) Option {
	return func(h *Hub) {
		h.observer = o
	}
}

// Hub holds the set of registered connections. Its lock is independent of any canvas lock and
// is never held while sending.
type Hub struct {
	mu       sync.Mutex
	conns    map[Conn]struct{}
	observer Observer
}

func New(opts ...Option) *Hub {
	h := &Hub{conns: make(map[Conn]struct{})}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	_, exists := h.conns[c]
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	if !exists && h.observer != nil {
		h.observer.Registered()
	}
}

func (h *Hub) Unregister(c Conn) {
	if h.remove(c) && h.observer != nil {
		h.observer.Unregistered()
	}
}

func (h *Hub) remove(c Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return false
	}
	delete(h.conns, c)
	return true
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *Hub) snapshot() []Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		out = append(out, c)
	}
	return out
}

// Broadcast encodes message as JSON and sends it to every registered connection. Connections
// that fail are closed and removed in the same pass. It returns the number of successful sends.
func (h *Hub) Broadcast(message any) (int, error) {
	raw, err := json.Marshal(message)
	if err != nil {
		return 0, fmt.Errorf("failed to encode broadcast: %w", err)
	}
	return h.BroadcastRaw(raw), nil
}

func (h *Hub) BroadcastRaw(raw []byte) int {
	var delivered int
	var dead []Conn
	for _, c := range h.snapshot() {
		if err := c.Send(raw); err != nil {
			slog.Debug("pruning push connection", "err", err)
			dead = append(dead, c)
			continue
		}
		delivered++
	}
	for _, c := range dead {
		_ = c.Close()
		if h.remove(c) && h.observer != nil {
			h.observer.Pruned()
		}
	}
	return delivered
}

// CloseAll closes and forgets every connection.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[Conn]struct{})
	h.mu.Unlock()
	for c := range conns {
		_ = c.Close()
		if h.observer != nil {
			h.observer.Unregistered()
		}
	}
}
