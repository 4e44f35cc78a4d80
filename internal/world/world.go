package world

import (
	"log/slog"
	"sync"

	"github.com/udisondev/gemfield/internal/model"
)

// Object is one instantiated gem owned by the registry.
type Object struct {
	ID       model.EntityID
	Category model.Category
	Position model.Slot
	Alive    bool
}

// Registry is an arena of spawned objects keyed by stable ID with an explicit alive flag.
// Any goroutine may destroy an object; holders discover it through IsValid.
type Registry struct {
	mu      sync.RWMutex
	objects map[model.EntityID]*Object
	ids     *ObjectIDGenerator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		objects: make(map[model.EntityID]*Object),
		ids:     NewObjectIDGenerator(),
	}
}

// Instantiate creates a new live object and returns its ID.
func (r *Registry) Instantiate(category model.Category, pos model.Slot) model.EntityID {
	id := r.ids.Next()

	r.mu.Lock()
	r.objects[id] = &Object{ID: id, Category: category, Position: pos, Alive: true}
	r.mu.Unlock()

	return id
}

// Destroy marks object dead and drops it from the arena.
// Returns false if object was unknown or already destroyed.
func (r *Registry) Destroy(id model.EntityID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	obj, ok := r.objects[id]
	if !ok {
		return false
	}
	obj.Alive = false
	delete(r.objects, id)

	slog.Debug("object destroyed", "id", id, "category", obj.Category)
	return true
}

// IsValid reports whether object is alive.
func (r *Registry) IsValid(id model.EntityID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, ok := r.objects[id]
	return ok && obj.Alive
}

// PositionOf returns object position if it is alive.
func (r *Registry) PositionOf(id model.EntityID) (model.Slot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, ok := r.objects[id]
	if !ok || !obj.Alive {
		return model.Slot{}, false
	}
	return obj.Position, true
}

// Get returns a copy of live object.
func (r *Registry) Get(id model.EntityID) (Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	obj, ok := r.objects[id]
	if !ok {
		return Object{}, false
	}
	return *obj, true
}

// Count returns number of live objects.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}
