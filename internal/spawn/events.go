package spawn

import (
	"github.com/udisondev/gemfield/internal/model"
)

// EventKind identifies what happened to a gem.
type EventKind uint8

const (
	EventSpawned EventKind = iota + 1
	EventExpired
	EventPruned  // destroyed by someone else, noticed on count
	EventCleared // all gems force-destroyed by a surface change
)

func (k EventKind) String() string {
	switch k {
	case EventSpawned:
		return "spawned"
	case EventExpired:
		return "expired"
	case EventPruned:
		return "pruned"
	case EventCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is a gem lifecycle notification.
// Gem is zero for EventCleared; Cleared is the number of gems destroyed.
type Event struct {
	Kind    EventKind
	Gem     model.Gem
	Cleared int
}

// Observer receives engine events. Callbacks run after the engine lock is
// released and may call back into the engine.
type Observer interface {
	OnEvent(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }

type subscription struct {
	id       uint64
	observer Observer
}

// Subscribe registers observer and returns a function removing it.
func (e *Engine) Subscribe(o Observer) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextSubID++
	id := e.nextSubID
	e.observers = append(e.observers[:len(e.observers):len(e.observers)], subscription{id: id, observer: o})

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		kept := make([]subscription, 0, len(e.observers))
		for _, sub := range e.observers {
			if sub.id != id {
				kept = append(kept, sub)
			}
		}
		e.observers = kept
	}
}

func (e *Engine) emitLocked(ev Event) {
	e.pending = append(e.pending, ev)
}

// unlock releases the engine lock and then delivers queued events.
func (e *Engine) unlock() {
	events := e.pending
	e.pending = nil
	observers := e.observers
	e.mu.Unlock()

	for _, ev := range events {
		for _, sub := range observers {
			sub.observer.OnEvent(ev)
		}
	}
}
