package query

import (
	"sort"
	"sync"

	"github.com/sells-group/orgmap/internal/model"
)

// Cache holds at most one mapping. It is the single-tenant convenience:
// hosts serving several tenants use a Registry, which keeps one Cache each.
type Cache struct {
	mu sync.RWMutex
	m  *model.OrgMapping
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Set replaces the resident mapping with a copy of m. A nil m clears it.
func (c *Cache) Set(m *model.OrgMapping) {
	cp := m.Clone()
	c.mu.Lock()
	c.m = cp
	c.mu.Unlock()
}

// Get returns a copy of the resident mapping, or nil.
func (c *Cache) Get() *model.OrgMapping {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.m.Clone()
}

// Clear drops the resident mapping so builders fall back to the defaults.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.m = nil
	c.mu.Unlock()
}

// Builder returns a builder over the mapping resident now. A later Set or
// Clear does not affect it.
func (c *Cache) Builder() *Builder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return NewBuilder(c.m)
}

// Registry keeps one Cache per tenant.
type Registry struct {
	mu     sync.Mutex
	caches map[string]*Cache
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{caches: make(map[string]*Cache)}
}

// For returns the tenant's cache, creating it on first use.
func (r *Registry) For(tenantID string) *Cache {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.caches[tenantID]
	if !ok {
		c = NewCache()
		r.caches[tenantID] = c
	}
	return c
}

// Drop forgets the tenant's cache.
func (r *Registry) Drop(tenantID string) {
	r.mu.Lock()
	delete(r.caches, tenantID)
	r.mu.Unlock()
}

// Tenants returns the tenants with a cache, sorted.
func (r *Registry) Tenants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.caches))
	for id := range r.caches {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
