package registry

import (
	"sync"

	"github.com/alfredjeanlab/moisturizer/internal/typemodel"
)

// Cache holds live models by type id. Entries are dropped on invalidation
// and rebuilt from the stored descriptor on next use.
type Cache struct {
	mu     sync.RWMutex
	models map[string]*typemodel.Model
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{models: make(map[string]*typemodel.Model)}
}

// Get returns the cached model for typeID.
func (c *Cache) Get(typeID string) (*typemodel.Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.models[typeID]
	return m, ok
}

// Put stores m unless another model for the same type got there first,
// and returns the model that ends up cached.
func (c *Cache) Put(m *typemodel.Model) *typemodel.Model {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.models[m.TypeID()]; ok {
		return existing
	}
	c.models[m.TypeID()] = m
	return m
}

// Invalidate drops the model for typeID.
func (c *Cache) Invalidate(typeID string) {
	c.mu.Lock()
	delete(c.models, typeID)
	c.mu.Unlock()
}

// Len returns the number of cached models.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}
