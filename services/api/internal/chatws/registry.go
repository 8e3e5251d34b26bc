// Package chatws serves the WebSocket chat and upload gateways.
package chatws

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"surfsense/internal/metrics"
	"surfsense/internal/util"
)

// ErrUnknownConnection is returned by Send for ids not in the registry.
var ErrUnknownConnection = errors.New("unknown connection")

type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

// Registry tracks open connections by id. Writes to one connection are
// serialized.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*conn)}
}

// Add registers ws and returns its connection id.
func (r *Registry) Add(ws *websocket.Conn) string {
	id := util.NewID()
	r.mu.Lock()
	r.conns[id] = &conn{ws: ws}
	r.mu.Unlock()
	metrics.WSOpened()
	return id
}

// Remove drops the connection. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, ok := r.conns[id]
	delete(r.conns, id)
	r.mu.Unlock()
	if ok {
		metrics.WSClosed()
	}
}

// Send writes v as JSON to the connection.
func (r *Registry) Send(id string, v any) error {
	r.mu.RLock()
	c, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownConnection
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
