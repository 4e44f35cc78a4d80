package clock

import "time"

// Group tags tasks so they can be cancelled together.
type Group string

// Task is a scheduled callback on the scheduler's virtual clock.
type Task struct {
	sched    *Scheduler
	seq      uint64
	group    Group
	due      time.Duration
	interval time.Duration // 0 for one-shot tasks

	once   func()
	repeat func() bool

	cancelled bool
	done      bool
	index     int // heap index, -1 when not queued
}

// Cancel prevents the task from firing again. Safe to call more than once
// and from inside the task's own callback.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	t.cancelled = true
}

// Active reports whether the task is still waiting to fire.
func (t *Task) Active() bool {
	if t == nil {
		return false
	}
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	return !t.cancelled && !t.done
}

// taskQueue is a min-heap ordered by due time, then by scheduling order.
type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].due != q[j].due {
		return q[i].due < q[j].due
	}
	return q[i].seq < q[j].seq
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x any) {
	t := x.(*Task)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *taskQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}
