package spawn

import (
	"log/slog"

	"github.com/udisondev/gemfield/internal/model"
)

// startLoopLocked starts the scheduling loop: one attempt now, then one per
// SpawnInterval until the population reaches MaxObjects or the pool runs dry.
func (e *Engine) startLoopLocked() {
	if e.spawning {
		return
	}
	e.spawning = true

	slog.Debug("spawn loop started", "spawner", e.name, "active", len(e.live), "pool", len(e.pool))

	if !e.loopStepLocked() {
		return
	}
	e.sched.Every(e.loopGroup, e.cfg.SpawnInterval, e.loopStep)
}

func (e *Engine) loopStep() bool {
	e.mu.Lock()
	defer e.unlock()
	return e.loopStepLocked()
}

// loopStepLocked runs one loop iteration; false ends the loop.
func (e *Engine) loopStepLocked() bool {
	if e.activeCountLocked() >= e.cfg.MaxObjects || len(e.pool) == 0 {
		e.spawning = false
		slog.Debug("spawn loop finished",
			"spawner", e.name,
			"active", len(e.live),
			"pool", len(e.pool))
		return false
	}

	e.attemptSpawnLocked()
	return true
}

// expire despawns a gem whose lifetime ran out and recycles its slot.
// No-op when the gem was already destroyed elsewhere.
func (e *Engine) expire(id model.EntityID) {
	e.mu.Lock()
	defer e.unlock()

	if !e.factory.IsValid(id) {
		return
	}

	idx := -1
	for i, gem := range e.live {
		if gem.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	gem := e.live[idx]
	e.live = append(e.live[:idx], e.live[idx+1:]...)

	pos, ok := e.factory.PositionOf(id)
	if !ok {
		pos = gem.Position
	}
	e.pool = append(e.pool, pos)
	e.factory.Destroy(id)

	slog.Debug("gem expired", "spawner", e.name, "id", id, "category", gem.Category)

	e.emitLocked(Event{Kind: EventExpired, Gem: *gem})
}
