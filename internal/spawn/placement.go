package spawn

import (
	"log/slog"
	"reflect"

	"github.com/udisondev/gemfield/internal/model"
)

// anchorOffset lifts a slot from the cell corner to above the tile's top edge.
var anchorOffset = model.Slot{X: 0.5, Y: 2.0}

// ScanSurface rebuilds the pool from surface: one slot above every markable cell.
func (e *Engine) ScanSurface(surface Surface) {
	e.mu.Lock()
	defer e.unlock()

	if isNil(surface) {
		return
	}
	e.scanLocked(surface)
}

func (e *Engine) scanLocked(surface Surface) {
	e.pool = e.pool[:0]

	bounds := surface.Bounds()
	cells := surface.MarkableCells(bounds)
	start := surface.CellToWorld(bounds.Min)

	width := int(bounds.Width)
	for x := range width {
		for y := range int(bounds.Height) {
			idx := x + y*width
			if idx >= len(cells) || !cells[idx] {
				continue
			}
			offset := model.Slot{X: float64(x), Y: float64(y)}.Add(anchorOffset)
			e.pool = append(e.pool, start.Add(offset))
		}
	}

	slog.Debug("spawn positions gathered", "spawner", e.name, "count", len(e.pool))
}

// AttemptSpawn tries to place one gem. It returns false when the pool ran
// out before a slot passed the adjacency check.
//
// Every candidate drawn is removed from the pool, accepted or not; rejected
// slots come back only with the next rescan.
func (e *Engine) AttemptSpawn() (model.Gem, bool) {
	e.mu.Lock()
	defer e.unlock()

	if e.inert || !e.started {
		return model.Gem{}, false
	}
	gem := e.attemptSpawnLocked()
	if gem == nil {
		return model.Gem{}, false
	}
	return *gem, true
}

func (e *Engine) attemptSpawnLocked() *model.Gem {
	if len(e.pool) == 0 {
		return nil
	}

	var (
		spawnPos model.Slot
		found    bool
	)
	for !found && len(e.pool) > 0 {
		i := e.rng.IntN(len(e.pool))
		candidate := e.pool[i]

		if !e.positionHasObjectLocked(candidate.Left()) && !e.positionHasObjectLocked(candidate.Right()) {
			spawnPos = candidate
			found = true
		}
		e.removeSlotLocked(i)
	}

	if !found {
		slog.Debug("no free spawn position", "spawner", e.name)
		return nil
	}

	category := e.randomCategory()
	id := e.factory.Instantiate(category, spawnPos)
	gem := model.NewGem(id, category, spawnPos, e.sched.Now(), e.cfg.GemLifeTime)
	e.live = append(e.live, gem)

	e.sched.After(e.expiryGroup, e.cfg.GemLifeTime, func() { e.expire(id) })

	slog.Debug("gem spawned",
		"spawner", e.name,
		"id", id,
		"category", category,
		"x", spawnPos.X,
		"y", spawnPos.Y,
		"pool", len(e.pool))

	e.emitLocked(Event{Kind: EventSpawned, Gem: *gem})
	return gem
}

// removeSlotLocked drops pool entry i; pool order is irrelevant.
func (e *Engine) removeSlotLocked(i int) {
	last := len(e.pool) - 1
	e.pool[i] = e.pool[last]
	e.pool = e.pool[:last]
}

// positionHasObjectLocked reports whether a live gem sits within the exclusion distance of pos.
func (e *Engine) positionHasObjectLocked(pos model.Slot) bool {
	for _, gem := range e.live {
		p, ok := e.factory.PositionOf(gem.ID)
		if ok && p.Distance(pos) < e.cfg.ExclusionDistance {
			return true
		}
	}
	return false
}

// randomCategory draws BigGem with BigGemProbability, SmallGem otherwise.
// SmallGemProbability is not consulted.
func (e *Engine) randomCategory() model.Category {
	if e.rng.Float64() <= e.cfg.BigGemProbability {
		return model.BigGem
	}
	return model.SmallGem
}

// isNil also catches typed nil pointers stored in interfaces.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
