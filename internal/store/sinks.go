package store

import (
	"sync"

	"github.com/gcswan/ding/internal/domain"
)

// Sinks tracks at most one live notification sink per owner. Registering
// replaces the previous sink without closing it; the transport that owns
// the replaced connection tears it down itself.
type Sinks struct {
	mu    sync.RWMutex
	sinks map[string]domain.Sink
}

// NewSinks creates an empty sink registry.
func NewSinks() *Sinks {
	return &Sinks{sinks: make(map[string]domain.Sink)}
}

func (r *Sinks) Register(ownerID string, sink domain.Sink) domain.Sink {
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced := r.sinks[ownerID]
	r.sinks[ownerID] = sink
	return replaced
}

// Unregister removes the owner's sink only if it is still the given one.
// A connection replaced by a newer one is a no-op here.
func (r *Sinks) Unregister(ownerID string, sink domain.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sinks[ownerID] == sink {
		delete(r.sinks, ownerID)
	}
}

func (r *Sinks) Get(ownerID string) (domain.Sink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sink, ok := r.sinks[ownerID]
	return sink, ok
}
