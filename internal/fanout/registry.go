package fanout

import (
	"errors"
	"sync"
)

var ErrDuplicateID = errors.New("member id already registered")
var ErrClosed = errors.New("connection closed")
var ErrBackpressure = errors.New("connection outbox full")

// Conn is a live client connection. Send must not block; Open reports
// whether the connection can still take messages.
type Conn interface {
	Send(payload []byte) error
	Open() bool
}

// Registry tracks live connections by member id. It only holds references;
// connection lifetime belongs to the transport.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register binds id to c. Rebinding the same pair is a no-op; an id held by
// a different connection is refused.
func (r *Registry) Register(id string, c Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.conns[id]; ok && cur != c {
		return ErrDuplicateID
	}
	r.conns[id] = c
	return nil
}

// Unregister removes id only if it still points at c.
func (r *Registry) Unregister(id string, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.conns[id]; ok && cur == c {
		delete(r.conns, id)
	}
}

func (r *Registry) Lookup(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[id]
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
