// Package registry tracks live real-time client connections.
package registry

import "sync"

// Conn is the transport handle owned by a registry entry. gorilla
// websocket connections satisfy it; tests use fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

type entry struct {
	conn Conn

	// mu serializes writes and teardown on this one connection, so a
	// message is never written to a handle after it has been closed.
	mu     sync.Mutex
	closed bool
}

// Registry is a concurrency-safe directory of active connections. Each
// handle is owned by its entry from Register until Unregister.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

func New() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds a connection under the given client id.
func (r *Registry) Register(clientID string, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[clientID] = &entry{conn: conn}
}

// Unregister removes the client and closes its handle. Safe to call for
// ids that were never registered or already removed.
func (r *Registry) Unregister(clientID string) {
	r.mu.Lock()
	e, ok := r.entries[clientID]
	delete(r.entries, clientID)
	r.mu.Unlock()
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		_ = e.conn.Close()
	}
}

// Send delivers a message to the client. Delivery is best-effort: a
// disconnected or unknown client is a no-op, not an error.
func (r *Registry) Send(clientID string, v any) error {
	r.mu.RLock()
	e, ok := r.entries[clientID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	return e.conn.WriteJSON(v)
}

// Len returns the number of active connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
