package ledvis

import (
	"sync"

	"libdb.so/tollglow/internal/led"
)

// Actuator drives the LED strip.
type Actuator interface {
	// WriteLEDs sends the given colors to the strip, first LED first.
	WriteLEDs(leds led.LEDs) error
}

// highlight is a color that temporarily replaces the mode color. It is set
// from the input task and read by the engine on every frame.
type highlight struct {
	mu     sync.Mutex
	color  led.RGBColor
	active bool
}

func (h *highlight) set(c led.RGBColor) {
	h.mu.Lock()
	h.color = c
	h.active = true
	h.mu.Unlock()
}

func (h *highlight) clear() {
	h.mu.Lock()
	h.active = false
	h.mu.Unlock()
}

func (h *highlight) get() (led.RGBColor, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.color, h.active
}
