package model

import "time"

// EntityID это стабильный идентификатор заспавненного объекта в реестре.
// Нулевой ID невалиден.
type EntityID uint64

// Gem represents one live spawned object.
// Times are offsets on the scheduler's virtual clock.
type Gem struct {
	ID        EntityID
	Category  Category
	Position  Slot
	SpawnedAt time.Duration
	ExpiresAt time.Duration
}

// NewGem creates a gem record with full lifetime starting at now.
func NewGem(id EntityID, category Category, pos Slot, now, lifetime time.Duration) *Gem {
	return &Gem{
		ID:        id,
		Category:  category,
		Position:  pos,
		SpawnedAt: now,
		ExpiresAt: now + lifetime,
	}
}

// Remaining returns lifetime left at now (never negative).
func (g *Gem) Remaining(now time.Duration) time.Duration {
	if now >= g.ExpiresAt {
		return 0
	}
	return g.ExpiresAt - now
}
