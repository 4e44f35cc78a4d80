package clock

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler is a cooperative scheduler driven by a single virtual clock.
//
// Tasks never run in parallel: Advance pops due tasks one by one and invokes
// them on the calling goroutine, with the lock released so callbacks may
// schedule or cancel other tasks. Run drives Advance from a real ticker.
type Scheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    uint64
	queue  taskQueue
	frames []func()

	tickInterval time.Duration
	stopCh       chan struct{}
	stopOnce     sync.Once
}

// NewScheduler creates scheduler; tickInterval is the real-time frame length used by Run.
func NewScheduler(tickInterval time.Duration) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = 50 * time.Millisecond
	}
	return &Scheduler{
		tickInterval: tickInterval,
		stopCh:       make(chan struct{}),
	}
}

// Now returns current virtual time.
func (s *Scheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// After schedules fn to run once, delay after now.
func (s *Scheduler) After(group Group, delay time.Duration, fn func()) *Task {
	return s.schedule(&Task{group: group, once: fn}, delay)
}

// Every schedules fn to run every interval, first firing one interval after now.
// The task keeps repeating while fn returns true.
func (s *Scheduler) Every(group Group, interval time.Duration, fn func() bool) *Task {
	if interval < 0 {
		interval = 0
	}
	return s.schedule(&Task{group: group, interval: interval, repeat: fn}, interval)
}

func (s *Scheduler) schedule(t *Task, delay time.Duration) *Task {
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	t.sched = s
	t.seq = s.seq
	t.due = s.now + delay
	heap.Push(&s.queue, t)
	return t
}

// CancelGroup cancels every pending task of the group.
func (s *Scheduler) CancelGroup(group Group) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cancelled := 0
	for _, t := range s.queue {
		if t.group == group && !t.cancelled {
			t.cancelled = true
			cancelled++
		}
	}
	return cancelled
}

// Reset cancels all pending tasks. Virtual time keeps its value.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.queue {
		t.cancelled = true
	}
}

// Pending returns number of tasks waiting to fire.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, t := range s.queue {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// OnFrame registers fn to be called once per Step, after due tasks ran.
func (s *Scheduler) OnFrame(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, fn)
}

// Advance moves virtual time forward by dt, running every task due on the way
// in deadline order. While a task runs, Now reports its due time.
func (s *Scheduler) Advance(dt time.Duration) {
	if dt < 0 {
		dt = 0
	}

	s.mu.Lock()
	target := s.now + dt
	s.mu.Unlock()

	for {
		t := s.popDue(target)
		if t == nil {
			return
		}
		s.fire(t)
	}
}

// popDue pops the next live task due at or before target, or moves the
// clock to target and returns nil.
func (s *Scheduler) popDue(target time.Duration) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.queue.Len() > 0 {
		next := s.queue[0]
		if next.due > target {
			break
		}
		heap.Pop(&s.queue)
		if next.cancelled {
			continue
		}
		if next.due > s.now {
			s.now = next.due
		}
		return next
	}

	s.now = target
	return nil
}

func (s *Scheduler) fire(t *Task) {
	if t.once != nil {
		t.once()
		s.mu.Lock()
		t.done = true
		s.mu.Unlock()
		return
	}

	again := t.repeat()

	s.mu.Lock()
	defer s.mu.Unlock()

	if !again || t.cancelled {
		t.done = true
		return
	}
	t.due += t.interval
	heap.Push(&s.queue, t)
}

// Step advances the clock by dt and then runs frame callbacks.
func (s *Scheduler) Step(dt time.Duration) {
	s.Advance(dt)

	s.mu.Lock()
	frames := make([]func(), len(s.frames))
	copy(frames, s.frames)
	s.mu.Unlock()

	for _, fn := range frames {
		fn()
	}
}

// Run drives Step from wall-clock time (blocks until context is canceled or Stop is called).
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	slog.Info("scheduler started", "interval", s.tickInterval)

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping")
			return ctx.Err()

		case <-s.stopCh:
			slog.Info("scheduler stopped")
			return nil

		case now := <-ticker.C:
			s.Step(now.Sub(last))
			last = now
		}
	}
}

// Stop stops Run.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
