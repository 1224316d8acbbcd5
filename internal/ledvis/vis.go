// Package ledvis turns the device configuration into LED colors over time.
package ledvis

import (
	"math"
	"math/rand/v2"
	"time"

	"libdb.so/tollglow/internal/devstate"
	"libdb.so/tollglow/internal/led"
)

// cadenceWindow is the span in which Random and Fibonacci change color Rate
// times.
const cadenceWindow = 5000 // ms

// visualizer computes the mode color for a point in time. It keeps the state
// that some modes carry from one frame to the next.
type visualizer struct {
	rand *rand.Rand
	fib  fibonacci

	lastSlot   int64
	recomputes int
}

func newVisualizer(r *rand.Rand) *visualizer {
	return &visualizer{rand: r, lastSlot: -1}
}

// color returns the mode color at elapsed. ok is false when the mode does
// not change color on this frame.
func (v *visualizer) color(cfg devstate.DeviceConfig, elapsed time.Duration) (c led.RGBColor, ok bool) {
	mult := cfg.Rate.Multiplier()

	switch m := cfg.Mode.(type) {
	case devstate.SineCycle:
		x := elapsed.Seconds() * m.Frequency * float64(mult)
		return led.Hue(sineHue(x)).RGB(), true

	case devstate.Continuous:
		return led.Hue(continuousHue(elapsed.Seconds(), m.Rate, mult)).RGB(), true

	case devstate.Random:
		if !v.due(m.Rate, mult, elapsed) {
			return c, false
		}
		return led.Hue(uint8(v.rand.UintN(256))).RGB(), true

	case devstate.Fibonacci:
		if !v.due(m.Rate, mult, elapsed) {
			return c, false
		}
		return led.Hue(v.fib.next()).RGB(), true

	case devstate.Static:
		return m.Color, true

	default:
		return c, false
	}
}

// due reports whether elapsed falls in a new cadence slot. At one frame per
// millisecond this is the same as elapsed_ms % period == 0, but a late frame
// cannot skip a whole slot.
func (v *visualizer) due(rate, mult uint64, elapsed time.Duration) bool {
	period := uint64(cadenceWindow) / effectiveRate(rate, mult)
	if period == 0 {
		period = 1
	}

	slot := elapsed.Milliseconds() / int64(period)
	if slot == v.lastSlot {
		return false
	}

	v.lastSlot = slot
	v.recomputes++
	return true
}

// effectiveRate returns rate*mult, saturating instead of overflowing and never
// less than 1.
func effectiveRate(rate, mult uint64) uint64 {
	if mult == 0 {
		mult = 1
	}
	if rate > math.MaxUint64/mult {
		return math.MaxUint64
	}
	if r := rate * mult; r > 0 {
		return r
	}
	return 1
}

// sineHue maps x to round(255*sin(x)) mod 256.
func sineHue(x float64) uint8 {
	h := int64(math.Round(255 * Sin(x)))
	return uint8(((h % 256) + 256) % 256)
}

// continuousHue maps secs to floor(secs*rate*mult) mod 255. The product is
// kept in floating point so large rates cannot overflow.
func continuousHue(secs float64, rate, mult uint64) uint8 {
	x := math.Floor(secs * float64(rate) * float64(mult))
	return uint8(math.Mod(x, 255))
}

// fibonacci yields the Fibonacci sequence modulo 256.
type fibonacci struct {
	a, b uint8
}

func (f *fibonacci) next() uint8 {
	if f.a == 0 && f.b == 0 {
		f.b = 1
	}
	f.a, f.b = f.b, f.a+f.b
	return f.b
}
