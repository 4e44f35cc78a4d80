package spawn

import (
	"sync"
	"testing"
	"time"

	"github.com/udisondev/gemfield/internal/clock"
	"github.com/udisondev/gemfield/internal/config"
	"github.com/udisondev/gemfield/internal/model"
	"github.com/udisondev/gemfield/internal/testutil"
	"github.com/udisondev/gemfield/internal/world"
)

type harness struct {
	engine   *Engine
	registry *world.Registry
	sched    *clock.Scheduler
	events   *eventLog
}

func testConfig() config.Spawner {
	return config.Spawner{
		BigGemProbability:   0.2,
		SmallGemProbability: 0.1,
		MaxObjects:          3,
		GemLifeTime:         10 * time.Second,
		SpawnInterval:       500 * time.Millisecond,
		ExclusionDistance:   1.0,
	}
}

// newHarness wires an engine to a real registry and scheduler; the engine is not started.
func newHarness(t *testing.T, cfg config.Spawner, surface Surface, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		registry: world.NewRegistry(),
		sched:    clock.NewScheduler(time.Millisecond),
		events:   &eventLog{},
	}
	opts = append([]Option{WithRand(testutil.Rand(42))}, opts...)
	h.engine = NewEngine(cfg, surface, h.registry, h.sched, opts...)
	h.engine.Subscribe(h.events)
	h.sched.OnFrame(h.engine.Tick)
	return h
}

// run steps the scheduler frame by frame for total virtual time.
func (h *harness) run(total, frame time.Duration) {
	for elapsed := time.Duration(0); elapsed < total; elapsed += frame {
		h.sched.Step(frame)
	}
}

// checkPartition asserts pool and live positions never overlap and never repeat.
func (h *harness) checkPartition(t *testing.T) {
	t.Helper()

	seen := make(map[model.Slot]string)
	for _, s := range h.engine.Pool() {
		if prev, dup := seen[s]; dup {
			t.Fatalf("slot %+v in pool twice (first seen in %s)", s, prev)
		}
		seen[s] = "pool"
	}
	for _, g := range h.engine.Live() {
		if prev, dup := seen[g.Position]; dup {
			t.Fatalf("slot %+v of gem %d also in %s", g.Position, g.ID, prev)
		}
		seen[g.Position] = "live"
	}
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) OnEvent(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) count(kind EventKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, ev := range l.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func countSlot(slots []model.Slot, s model.Slot) int {
	n := 0
	for _, p := range slots {
		if p == s {
			n++
		}
	}
	return n
}
