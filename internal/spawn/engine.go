package spawn

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/udisondev/gemfield/internal/clock"
	"github.com/udisondev/gemfield/internal/config"
	"github.com/udisondev/gemfield/internal/model"
)

// Surface is the placement geometry the pool is scanned from.
type Surface interface {
	Bounds() model.Bounds
	MarkableCells(region model.Bounds) []bool
	CellToWorld(c model.Cell) model.Slot
}

// activeSurface is implemented by surfaces that can be hidden by a level switch.
type activeSurface interface {
	Active() bool
}

// Factory creates and owns gem instances.
type Factory interface {
	Instantiate(category model.Category, pos model.Slot) model.EntityID
	Destroy(id model.EntityID) bool
	IsValid(id model.EntityID) bool
	PositionOf(id model.EntityID) (model.Slot, bool)
}

// Scheduler provides the virtual clock and timers the engine runs on.
type Scheduler interface {
	Now() time.Duration
	After(group clock.Group, delay time.Duration, fn func()) *clock.Task
	Every(group clock.Group, interval time.Duration, fn func() bool) *clock.Task
	CancelGroup(group clock.Group) int
}

// Locator finds the replacement surface after the tracked one went inactive.
type Locator func() (Surface, bool)

// Engine keeps up to MaxObjects gems alive on a surface.
//
// Gems are placed on random free slots, rejected when a live gem sits at the
// immediate left or right neighbour, and despawn after GemLifeTime, returning
// their slot to the pool.
type Engine struct {
	mu sync.Mutex

	name    string
	cfg     config.Spawner
	surface Surface
	factory Factory
	sched   Scheduler
	rng     *rand.Rand
	locator Locator

	pool     []model.Slot
	live     []*model.Gem
	spawning bool
	inert    bool
	started  bool

	// set while a level change could not find a replacement surface
	surfaceMissing bool

	loopGroup   clock.Group
	expiryGroup clock.Group

	observers []subscription
	nextSubID uint64
	pending   []Event
}

// Option configures Engine.
type Option func(*Engine)

// WithRand sets the random source (tests use a seeded one).
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// WithLocator sets the surface locator used on level change.
func WithLocator(locator Locator) Option {
	return func(e *Engine) { e.locator = locator }
}

// WithName sets the engine name used in logs and timer groups.
func WithName(name string) Option {
	return func(e *Engine) { e.name = name }
}

// NewEngine creates new spawn engine. Call Start to scan the surface and begin spawning.
func NewEngine(cfg config.Spawner, surface Surface, factory Factory, sched Scheduler, opts ...Option) *Engine {
	e := &Engine{
		name:    "spawner",
		cfg:     cfg,
		surface: surface,
		factory: factory,
		sched:   sched,
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.loopGroup = clock.Group(e.name + ".loop")
	e.expiryGroup = clock.Group(e.name + ".expiry")
	return e
}

// Start validates collaborators, scans the surface and starts the first scheduling loop.
// A misconfigured engine stays inert for its whole life.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.unlock()

	if e.started {
		return
	}
	e.started = true

	switch {
	case isNil(e.surface):
		slog.Warn("spawner inert: surface is not assigned", "spawner", e.name)
		e.inert = true
		return
	case isNil(e.factory):
		slog.Warn("spawner inert: gem factory is not assigned", "spawner", e.name)
		e.inert = true
		return
	case isNil(e.sched):
		slog.Warn("spawner inert: scheduler is not assigned", "spawner", e.name)
		e.inert = true
		return
	}

	e.scanLocked(e.surface)
	slog.Info("spawner started",
		"spawner", e.name,
		"pool", len(e.pool),
		"maxObjects", e.cfg.MaxObjects,
		"lifetime", e.cfg.GemLifeTime,
		"interval", e.cfg.SpawnInterval)

	e.startLoopLocked()
}

// Tick is the per-frame re-evaluation: it follows a level change when the
// tracked surface went inactive and restarts the scheduling loop when the
// population is below target. A no-op while a loop is already running.
func (e *Engine) Tick() {
	e.mu.Lock()
	defer e.unlock()

	if !e.started || e.inert {
		return
	}

	if s, ok := e.surface.(activeSurface); ok && !s.Active() {
		e.levelChangeLocked()
	}

	if !e.spawning && e.activeCountLocked() < e.cfg.MaxObjects {
		e.startLoopLocked()
	}
}

// levelChangeLocked looks up the new surface and switches to it.
func (e *Engine) levelChangeLocked() {
	if e.locator == nil {
		e.warnSurfaceMissingLocked("no surface locator configured")
		return
	}
	next, ok := e.locator()
	if !ok || isNil(next) {
		e.warnSurfaceMissingLocked("surface not found during level change")
		return
	}
	e.surfaceMissing = false
	e.changeSurfaceLocked(next)
}

func (e *Engine) warnSurfaceMissingLocked(msg string) {
	if e.surfaceMissing {
		return
	}
	e.surfaceMissing = true
	slog.Warn(msg, "spawner", e.name)
}

// OnSurfaceChanged swaps the tracked surface, rescans the pool and
// force-destroys every live gem without recycling its slot.
func (e *Engine) OnSurfaceChanged(surface Surface) {
	e.mu.Lock()
	defer e.unlock()

	if e.inert {
		slog.Debug("surface change ignored by inert spawner", "spawner", e.name)
		return
	}
	if isNil(surface) {
		slog.Warn("surface change ignored: nil surface", "spawner", e.name)
		return
	}
	e.changeSurfaceLocked(surface)
}

func (e *Engine) changeSurfaceLocked(surface Surface) {
	e.surface = surface
	e.scanLocked(surface)

	// pending expiries die with their gems
	e.sched.CancelGroup(e.expiryGroup)

	destroyed := 0
	for _, gem := range e.live {
		if e.factory.IsValid(gem.ID) {
			e.factory.Destroy(gem.ID)
			destroyed++
		}
	}
	e.live = e.live[:0]

	slog.Info("spawner surface changed",
		"spawner", e.name,
		"pool", len(e.pool),
		"destroyed", destroyed)

	e.emitLocked(Event{Kind: EventCleared, Cleared: destroyed})
}

// ActiveCount returns number of live gems, dropping those destroyed by someone else.
func (e *Engine) ActiveCount() int {
	e.mu.Lock()
	defer e.unlock()
	return e.activeCountLocked()
}

// activeCountLocked prunes externally destroyed gems. The pruned gem's slot
// goes back to the pool: the record still knows where it was.
func (e *Engine) activeCountLocked() int {
	if isNil(e.factory) {
		return len(e.live)
	}

	kept := e.live[:0]
	for _, gem := range e.live {
		if e.factory.IsValid(gem.ID) {
			kept = append(kept, gem)
			continue
		}
		e.pool = append(e.pool, gem.Position)
		slog.Debug("gem pruned", "spawner", e.name, "id", gem.ID, "category", gem.Category)
		e.emitLocked(Event{Kind: EventPruned, Gem: *gem})
	}
	clear(e.live[len(kept):])
	e.live = kept
	return len(e.live)
}

// Status tells why the engine is or is not spawning.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.unlock()

	switch {
	case e.inert:
		return StatusInert
	case e.activeCountLocked() >= e.cfg.MaxObjects:
		return StatusAtCapacity
	case len(e.pool) == 0:
		return StatusPoolExhausted
	case e.spawning:
		return StatusSpawning
	default:
		return StatusIdle
	}
}

// Spawning reports whether a scheduling loop is running.
func (e *Engine) Spawning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.spawning
}

// Inert reports whether the engine refused to start.
func (e *Engine) Inert() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inert
}

// Surface returns the tracked surface.
func (e *Engine) Surface() Surface {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surface
}

// Pool returns a copy of the available slots.
func (e *Engine) Pool() []model.Slot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Slot(nil), e.pool...)
}

// PoolSize returns number of available slots.
func (e *Engine) PoolSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pool)
}

// Live returns copies of the tracked gems (not pruned).
func (e *Engine) Live() []model.Gem {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]model.Gem, len(e.live))
	for i, gem := range e.live {
		out[i] = *gem
	}
	return out
}
