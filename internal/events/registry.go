// Package events serves the demos over WebSocket, pushing processing
// progress as typed JSON events.
package events

import (
	"log/slog"
	"sync"

	"github.com/ashureev/promptlab/internal/metrics"
	"github.com/coder/websocket"
)

// Registry tracks open connections by connection id.
type Registry struct {
	mu      sync.RWMutex
	active  map[string]*websocket.Conn
	metrics *metrics.Metrics
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		active:  make(map[string]*websocket.Conn),
		metrics: m,
	}
}

// Register adds a connection. An existing connection with the same id is
// closed and replaced.
func (r *Registry) Register(connID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.active[connID]; ok && existing != conn {
		_ = existing.Close(websocket.StatusNormalClosure, "connection replaced")
	}
	r.active[connID] = conn
	r.metrics.SetEventConnections(len(r.active))
	slog.Debug("Event connection registered", "conn_id", connID)
}

// Unregister removes conn if it is still the one registered under connID.
func (r *Registry) Unregister(connID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.active[connID]; ok && current == conn {
		delete(r.active, connID)
		r.metrics.SetEventConnections(len(r.active))
		slog.Debug("Event connection unregistered", "conn_id", connID)
	}
}

// Len returns the number of open connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// CloseAll closes every open connection, for shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, conn := range r.active {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(r.active, id)
	}
	r.metrics.SetEventConnections(0)
}
