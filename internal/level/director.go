// Package level tracks collection progress on the active level and moves the
// spawn engine between levels.
package level

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/udisondev/gemfield/internal/config"
	"github.com/udisondev/gemfield/internal/model"
	"github.com/udisondev/gemfield/internal/spawn"
	"github.com/udisondev/gemfield/internal/world"
)

// ErrNotCollectable is returned by Collect for ids that are not live gems.
var ErrNotCollectable = errors.New("gem is not collectable")

// Engine is the part of spawn.Engine the director drives.
type Engine interface {
	OnSurfaceChanged(surface spawn.Surface)
}

// Destroyer removes a gem from the world.
type Destroyer interface {
	Destroy(id model.EntityID) bool
}

// State is a snapshot of level progress.
type State struct {
	Level     int    `json:"level"`
	Name      string `json:"name"`
	Progress  int    `json:"progress"`
	Target    int    `json:"target"`
	Completed bool   `json:"completed"`
}

// Collected describes one successful Collect.
type Collected struct {
	Gem   model.Gem `json:"gem"`
	Value int       `json:"value"`
	State State     `json:"state"`
}

// Director counts collected gems towards the level target and switches levels.
// It must be subscribed to the engine to learn which gems are collectable.
type Director struct {
	mu        sync.Mutex
	cfg       config.Progress
	catalog   *world.Catalog
	engine    Engine
	destroyer Destroyer

	gems      map[model.EntityID]model.Gem
	progress  int
	completed bool
	listeners []func(State)
}

// NewDirector creates a director for the catalog's current level.
func NewDirector(cfg config.Progress, catalog *world.Catalog, engine Engine, destroyer Destroyer) *Director {
	return &Director{
		cfg:       cfg,
		catalog:   catalog,
		engine:    engine,
		destroyer: destroyer,
		gems:      make(map[model.EntityID]model.Gem),
	}
}

// OnChange registers fn to be called after every progress or level change.
func (d *Director) OnChange(fn func(State)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// OnEvent implements spawn.Observer.
func (d *Director) OnEvent(ev spawn.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Kind {
	case spawn.EventSpawned:
		d.gems[ev.Gem.ID] = ev.Gem
	case spawn.EventExpired, spawn.EventPruned:
		delete(d.gems, ev.Gem.ID)
	case spawn.EventCleared:
		clear(d.gems)
	}
}

// Collect destroys a live gem and adds its value to the level progress.
// Reaching the target completes the level once; with auto advance the next
// level is loaded right away.
func (d *Director) Collect(id model.EntityID) (Collected, error) {
	d.mu.Lock()
	gem, ok := d.gems[id]
	if !ok {
		d.mu.Unlock()
		return Collected{}, fmt.Errorf("collecting gem %d: %w", id, ErrNotCollectable)
	}
	delete(d.gems, id)
	if !d.destroyer.Destroy(id) {
		d.mu.Unlock()
		return Collected{}, fmt.Errorf("collecting gem %d: %w", id, ErrNotCollectable)
	}

	value := d.cfg.GemValues[gem.Category]
	d.progress += value
	justCompleted := !d.completed && d.progress >= d.cfg.Target
	if justCompleted {
		d.completed = true
	}
	state := d.stateLocked()
	listeners := d.listeners
	d.mu.Unlock()

	slog.Debug("gem collected",
		"id", id,
		"category", gem.Category,
		"value", value,
		"progress", state.Progress)
	notify(listeners, state)

	if justCompleted {
		slog.Info("level complete", "level", state.Level, "name", state.Name, "progress", state.Progress)
		if d.cfg.AutoAdvance {
			if _, err := d.NextLevel(); err != nil {
				slog.Error("auto advance failed", "error", err)
			}
		}
	}

	return Collected{Gem: gem, Value: value, State: state}, nil
}

// NextLevel activates the level after the current one, wrapping to the first.
func (d *Director) NextLevel() (State, error) {
	return d.load(d.catalog.NextIndex())
}

// Reset returns to the first level with zero progress.
func (d *Director) Reset() (State, error) {
	return d.load(0)
}

func (d *Director) load(index int) (State, error) {
	surface, err := d.catalog.Activate(index)
	if err != nil {
		return State{}, fmt.Errorf("loading level %d: %w", index, err)
	}

	d.mu.Lock()
	d.progress = 0
	d.completed = false
	clear(d.gems)
	d.mu.Unlock()

	d.engine.OnSurfaceChanged(surface)

	d.mu.Lock()
	state := d.stateLocked()
	listeners := d.listeners
	d.mu.Unlock()

	slog.Info("level loaded", "level", state.Level, "name", state.Name)
	notify(listeners, state)
	return state, nil
}

// State returns the current progress snapshot.
func (d *Director) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stateLocked()
}

// Collectable returns the number of gems that can be collected right now.
func (d *Director) Collectable() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.gems)
}

func (d *Director) stateLocked() State {
	m, idx := d.catalog.Current()
	return State{
		Level:     idx,
		Name:      m.Name(),
		Progress:  d.progress,
		Target:    d.cfg.Target,
		Completed: d.completed,
	}
}

func notify(listeners []func(State), state State) {
	for _, fn := range listeners {
		fn(state)
	}
}
