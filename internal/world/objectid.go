package world

import (
	"sync/atomic"

	"github.com/udisondev/gemfield/internal/model"
)

// ObjectIDGenerator generates unique entity IDs for spawned objects.
// IDs start at 1; 0 is reserved as invalid.
type ObjectIDGenerator struct {
	next atomic.Uint64
}

// NewObjectIDGenerator creates a new ID generator.
func NewObjectIDGenerator() *ObjectIDGenerator {
	return &ObjectIDGenerator{}
}

// Next generates next unique entity ID.
// Thread-safe via atomic increment.
func (g *ObjectIDGenerator) Next() model.EntityID {
	return model.EntityID(g.next.Add(1))
}

// Last returns the most recently issued ID (0 if none).
func (g *ObjectIDGenerator) Last() model.EntityID {
	return model.EntityID(g.next.Load())
}
