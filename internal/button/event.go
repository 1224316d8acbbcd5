// Package button classifies presses of the single device button into short
// presses and two lengths of hold.
package button

import (
	"fmt"
	"time"
)

// Event is a classified button press.
type Event uint8

const (
	// Press is a release within HoldHalfAfter of the press.
	Press Event = iota
	// HoldHalf is a release between HoldHalfAfter and HoldFullAfter.
	HoldHalf
	// HoldFull is a release after HoldFullAfter.
	HoldFull
)

// String returns a string representation of the event.
func (e Event) String() string {
	switch e {
	case Press:
		return "press"
	case HoldHalf:
		return "hold_half"
	case HoldFull:
		return "hold_full"
	default:
		return fmt.Sprintf("Event(%d)", e)
	}
}

const (
	// DebounceFloor bounds contact bounce. A press must last longer than
	// this to count.
	DebounceFloor = 25 * time.Millisecond
	// HoldHalfAfter is when a press becomes a half second hold.
	HoldHalfAfter = 500 * time.Millisecond
	// HoldFullAfter is when a press becomes a full second hold.
	HoldFullAfter = 1000 * time.Millisecond
)

// Classify maps how long the button was held down to an event. ok is false
// for glitches no longer than DebounceFloor.
func Classify(d time.Duration) (ev Event, ok bool) {
	switch {
	case d <= DebounceFloor:
		return 0, false
	case d <= HoldHalfAfter:
		return Press, true
	case d <= HoldFullAfter:
		return HoldHalf, true
	default:
		return HoldFull, true
	}
}

// Events is a single slot mailbox of button events. Publishing replaces an
// event that has not been received yet, so a slow consumer only ever sees
// the latest one.
type Events struct {
	ch chan Event
}

// NewEvents creates an empty mailbox.
func NewEvents() *Events {
	return &Events{ch: make(chan Event, 1)}
}

// Publish stores ev, dropping any unreceived event. It never blocks.
func (e *Events) Publish(ev Event) {
	for {
		select {
		case e.ch <- ev:
			return
		default:
		}

		select {
		case <-e.ch:
		default:
		}
	}
}

// C returns the channel that receives published events.
func (e *Events) C() <-chan Event {
	return e.ch
}
