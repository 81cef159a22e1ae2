// Package registry holds the Registry type shared between internal/poolapi
// and internal/poolapi/handlers, kept separate from both to avoid an import
// cycle (the top-level poolapi package wires handlers, and handlers needs
// the same Registry type).
package registry

import (
	"sort"
	"sync"

	"github.com/jroosing/poolnetd/internal/connpool"
	"github.com/jroosing/poolnetd/internal/poolstore"
)

// Registry tracks the named pools a running poolnetd instance owns, plus an
// optional shared poolstore handle. cmd/poolnetd builds one and hands it to
// poolapi.New; poolapi never imports cmd/poolnetd.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*connpool.Pool
	store *poolstore.DB
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]*connpool.Pool)}
}

// Register adds or replaces the pool tracked under name.
func (r *Registry) Register(name string, p *connpool.Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[name] = p
}

// Get returns the pool registered under name, if any.
func (r *Registry) Get(name string) (*connpool.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[name]
	return p, ok
}

// Names returns every registered pool name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.pools))
	for name := range r.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetStore attaches the shared observability store. A nil store (the
// default) means storage is disabled and history endpoints report empty.
func (r *Registry) SetStore(db *poolstore.DB) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store = db
}

// Store returns the attached poolstore.DB, or nil if storage is disabled.
func (r *Registry) Store() *poolstore.DB {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store
}
