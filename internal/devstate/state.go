// Package devstate holds the mutable device state shared between tasks: the
// LED configuration and the counter. Every value is guarded by a mutex and
// broadcasts a change notification after each write.
package devstate

import (
	"context"
	"sync"

	"github.com/kelindar/event"
)

// changed is published on a value's dispatcher after every write.
type changed struct{}

func (changed) Type() uint32 { return 1 }

// Value is a mutex guarded value with a change broadcast. Readers always get
// a copy; the lock is never held across a suspension point.
type Value[T comparable] struct {
	mu    sync.Mutex
	value T
	bus   *event.Dispatcher
}

// NewValue creates a value holding initial.
func NewValue[T comparable](initial T) *Value[T] {
	return &Value[T]{
		value: initial,
		bus:   event.NewDispatcher(),
	}
}

// Read returns a snapshot of the value.
func (v *Value[T]) Read() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value
}

// Write replaces the value and notifies every watcher.
func (v *Value[T]) Write(value T) {
	v.mu.Lock()
	v.value = value
	v.mu.Unlock()

	event.Publish(v.bus, changed{})
}

// Update replaces the value with f applied to it while holding the lock, so
// concurrent updates never interleave. It notifies every watcher and returns
// the new value.
func (v *Value[T]) Update(f func(T) T) T {
	v.mu.Lock()
	value := f(v.value)
	v.value = value
	v.mu.Unlock()

	event.Publish(v.bus, changed{})
	return value
}

// Watch subscribes to change notifications. The watcher must be closed when
// no longer needed.
func (v *Value[T]) Watch() *Watcher {
	w := &Watcher{ch: make(chan struct{}, 1)}
	w.cancel = event.Subscribe(v.bus, func(changed) {
		select {
		case w.ch <- struct{}{}:
		default:
			// A notification is already pending; the watcher will Read the
			// latest value anyway.
		}
	})
	return w
}

// Close stops the change broadcast. Watchers receive no further
// notifications.
func (v *Value[T]) Close() error {
	return v.bus.Close()
}

// Watcher receives change notifications from a Value. Several writes between
// two receives coalesce into one notification, so a watcher only learns that
// something changed and must Read the value itself.
type Watcher struct {
	ch     chan struct{}
	cancel context.CancelFunc
}

// Changed returns a channel that receives after the value was written.
func (w *Watcher) Changed() <-chan struct{} {
	return w.ch
}

// Close unsubscribes the watcher.
func (w *Watcher) Close() {
	w.cancel()
}

// State is the shared state handle built once at startup and passed to every
// task.
type State struct {
	Config *Value[DeviceConfig]
	Count  *Value[Count]
}

// New creates the state with compiled-in defaults.
func New() *State {
	return &State{
		Config: NewValue(DefaultConfig),
		Count:  NewValue(Count(0)),
	}
}

// Close stops every change broadcast.
func (s *State) Close() error {
	err1 := s.Config.Close()
	err2 := s.Count.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
