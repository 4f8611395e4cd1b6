package broadcast

import (
	"sync"

	"github.com/pscheid92/dashpulse/internal/domain"
)

// Registry is the set of currently live connections.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]domain.Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]domain.Connection)}
}

// Register adds conn. Returns domain.ErrDuplicateConnection if it is already present.
func (r *Registry) Register(conn domain.Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn.ID()]; exists {
		return domain.ErrDuplicateConnection
	}
	r.conns[conn.ID()] = conn
	return nil
}

// Unregister removes conn if present and reports whether it was.
func (r *Registry) Unregister(conn domain.Connection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.conns[conn.ID()]; !exists {
		return false
	}
	delete(r.conns, conn.ID())
	return true
}

// Snapshot returns a copy of the current connection set.
func (r *Registry) Snapshot() []domain.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	return out
}

func (r *Registry) Contains(conn domain.Connection) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.conns[conn.ID()]
	return exists
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
