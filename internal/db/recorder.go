package db

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/udisondev/gemfield/internal/spawn"
)

const (
	defaultRecorderQueue = 1024
	recorderBatchSize    = 128
	recorderFlushTimeout = 5 * time.Second
)

// EventWriter persists batches of engine events.
type EventWriter interface {
	InsertBatch(ctx context.Context, events []spawn.Event) (int64, error)
}

// Recorder is a spawn.Observer that persists events off the engine goroutine.
// OnEvent never blocks: when the queue is full the event is dropped.
type Recorder struct {
	writer  EventWriter
	queue   chan spawn.Event
	written atomic.Int64
	dropped atomic.Int64
}

// NewRecorder creates a recorder with a queue of queueSize events.
func NewRecorder(writer EventWriter, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultRecorderQueue
	}
	return &Recorder{
		writer: writer,
		queue:  make(chan spawn.Event, queueSize),
	}
}

// OnEvent implements spawn.Observer.
func (r *Recorder) OnEvent(ev spawn.Event) {
	select {
	case r.queue <- ev:
	default:
		r.dropped.Add(1)
		slog.Warn("event queue full, dropping event",
			"kind", ev.Kind,
			"gem", ev.Gem.ID)
	}
}

// Run writes queued events in batches until ctx is cancelled, then flushes
// what is left in the queue.
func (r *Recorder) Run(ctx context.Context) error {
	slog.Info("event recorder started", "queue", cap(r.queue))

	batch := make([]spawn.Event, 0, recorderBatchSize)
	for {
		select {
		case <-ctx.Done():
			r.flush(batch)
			slog.Info("event recorder stopped",
				"written", r.written.Load(),
				"dropped", r.dropped.Load())
			return nil
		case ev := <-r.queue:
			batch = append(batch[:0], ev)
			batch = r.drain(batch, recorderBatchSize)
			r.write(ctx, batch)
		}
	}
}

// drain moves queued events into batch without blocking.
func (r *Recorder) drain(batch []spawn.Event, limit int) []spawn.Event {
	for len(batch) < limit {
		select {
		case ev := <-r.queue:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

func (r *Recorder) flush(batch []spawn.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recorderFlushTimeout)
	defer cancel()

	for {
		batch = r.drain(batch[:0], recorderBatchSize)
		if len(batch) == 0 {
			return
		}
		r.write(ctx, batch)
	}
}

func (r *Recorder) write(ctx context.Context, batch []spawn.Event) {
	n, err := r.writer.InsertBatch(ctx, batch)
	if err != nil {
		slog.Error("failed to store gem events", "count", len(batch), "error", err)
		return
	}
	r.written.Add(n)
}

// Written returns the number of events stored so far.
func (r *Recorder) Written() int64 {
	return r.written.Load()
}

// Dropped returns the number of events lost to a full queue.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}
