package stream

import (
	"sync"

	"github.com/google/uuid"

	"github.com/satindergrewal/fxradio/internal/metrics"
)

// Registry tracks the connected listeners, keyed by an opaque id.
// The map is only reachable through Register, Unregister and the fan-out.
type Registry struct {
	mu        sync.Mutex
	listeners map[string]*Listener
	backlog   int
}

// NewRegistry creates an empty registry whose listeners queue up to backlog chunks.
func NewRegistry(backlog int) *Registry {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	return &Registry{
		listeners: make(map[string]*Listener),
		backlog:   backlog,
	}
}

// Register allocates a fresh listener and returns it with its id.
func (r *Registry) Register() (string, *Listener) {
	id := uuid.NewString()
	l := newListener(id, r.backlog)

	r.mu.Lock()
	r.listeners[id] = l
	r.mu.Unlock()

	metrics.ListenersConnected.Inc()
	return id, l
}

// Unregister removes and closes the listener. Unknown ids are ignored.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	l, ok := r.listeners[id]
	if ok {
		delete(r.listeners, id)
	}
	r.mu.Unlock()

	if ok {
		l.Close()
		metrics.ListenersConnected.Dec()
	}
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// forEachLive calls fn for every live listener and removes, in the same
// pass, listeners that are closed or whose write fails. It returns the
// number of listeners removed.
func (r *Registry) forEachLive(fn func(*Listener) error) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for id, l := range r.listeners {
		if l.Closed() {
			delete(r.listeners, id)
			pruned++
			continue
		}
		if err := fn(l); err != nil {
			delete(r.listeners, id)
			l.Close()
			pruned++
		}
	}
	if pruned > 0 {
		metrics.ListenersConnected.Sub(float64(pruned))
		metrics.ListenersPruned.Add(float64(pruned))
	}
	return pruned
}

// Close unregisters and closes every listener, ending their transports.
func (r *Registry) Close() {
	r.mu.Lock()
	listeners := r.listeners
	r.listeners = make(map[string]*Listener)
	r.mu.Unlock()

	for _, l := range listeners {
		l.Close()
	}
	metrics.ListenersConnected.Sub(float64(len(listeners)))
}
