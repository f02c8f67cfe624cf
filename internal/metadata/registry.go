package metadata

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownEntityKind = errors.New("unknown entity kind")

// Registry holds the field catalog. It is loaded once at startup and read
// concurrently afterwards.
type Registry struct {
	mu       sync.RWMutex
	entities map[EntityKind]*Entity
}

func NewRegistry() *Registry {
	return &Registry{entities: make(map[EntityKind]*Entity)}
}

// Load replaces all entities in the registry.
func (r *Registry) Load(entities []*Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entities = make(map[EntityKind]*Entity, len(entities))
	for _, e := range entities {
		r.entities[e.Kind] = e
	}
}

// Entity returns the entity registered for kind.
func (r *Registry) Entity(kind EntityKind) (*Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntityKind, kind)
	}
	return e, nil
}

// Describe returns the fields of kind. The returned slice is a copy.
func (r *Registry) Describe(kind EntityKind) ([]Field, error) {
	e, err := r.Entity(kind)
	if err != nil {
		return nil, err
	}
	fields := make([]Field, len(e.Fields))
	copy(fields, e.Fields)
	return fields, nil
}

// Has reports whether kind is registered.
func (r *Registry) Has(kind EntityKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entities[kind]
	return ok
}

// AllEntities returns all registered entities sorted by kind.
func (r *Registry) AllEntities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i].Kind < entities[j].Kind })
	return entities
}
