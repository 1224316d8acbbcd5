package devstate

import (
	"fmt"

	"libdb.so/tollglow/internal/led"
)

// ModeKind identifies the variant of a Mode. Its values are part of the
// persisted format and must not be reordered.
type ModeKind uint8

const (
	KindSineCycle ModeKind = iota
	KindContinuous
	KindRandom
	KindFibonacci
	KindStatic
)

// String returns a string representation of the mode kind.
func (k ModeKind) String() string {
	switch k {
	case KindSineCycle:
		return "sine"
	case KindContinuous:
		return "continuous"
	case KindRandom:
		return "random"
	case KindFibonacci:
		return "fibonacci"
	case KindStatic:
		return "static"
	default:
		return fmt.Sprintf("ModeKind(%d)", k)
	}
}

// Mode is the color pattern the LED animates. It is one of SineCycle,
// Continuous, Random, Fibonacci or Static.
type Mode interface {
	// Kind returns the variant of the mode.
	Kind() ModeKind
}

// SineCycle swings the hue back and forth along a sine wave.
type SineCycle struct {
	Frequency float64
}

// Continuous ramps the hue around the color wheel.
type Continuous struct {
	Rate uint64
}

// Random jumps to a random hue Rate times every five seconds.
type Random struct {
	Rate uint64
}

// Fibonacci steps the hue through the Fibonacci sequence modulo 256, Rate
// times every five seconds.
type Fibonacci struct {
	Rate uint64
}

// Static shows a single color.
type Static struct {
	Color led.RGBColor
}

func (SineCycle) Kind() ModeKind  { return KindSineCycle }
func (Continuous) Kind() ModeKind { return KindContinuous }
func (Random) Kind() ModeKind     { return KindRandom }
func (Fibonacci) Kind() ModeKind  { return KindFibonacci }
func (Static) Kind() ModeKind     { return KindStatic }

func (m SineCycle) String() string  { return fmt.Sprintf("sine(%g)", m.Frequency) }
func (m Continuous) String() string { return fmt.Sprintf("continuous(%d)", m.Rate) }
func (m Random) String() string     { return fmt.Sprintf("random(%d)", m.Rate) }
func (m Fibonacci) String() string  { return fmt.Sprintf("fibonacci(%d)", m.Rate) }
func (m Static) String() string     { return fmt.Sprintf("static(%s)", m.Color) }

// RateModifier scales the speed of every animated mode.
type RateModifier uint8

const (
	RateSlow     RateModifier = 1
	RateModerate RateModifier = 2
	RateFast     RateModifier = 4
)

// Multiplier returns the speed multiplier, never less than 1.
func (r RateModifier) Multiplier() uint64 {
	if r == 0 {
		return 1
	}
	return uint64(r)
}

func (r RateModifier) valid() bool {
	switch r {
	case RateSlow, RateModerate, RateFast:
		return true
	default:
		return false
	}
}

// String returns a string representation of the rate modifier.
func (r RateModifier) String() string {
	switch r {
	case RateSlow:
		return "slow"
	case RateModerate:
		return "moderate"
	case RateFast:
		return "fast"
	default:
		return fmt.Sprintf("RateModifier(%d)", r)
	}
}

// Named brightness levels offered by the menu.
const (
	BrightnessLow    uint8 = 10
	BrightnessMedium uint8 = 64
	BrightnessHigh   uint8 = 160
	BrightnessMax    uint8 = 255
)

// DeviceConfig is the user configurable part of the LED animation.
type DeviceConfig struct {
	Mode       Mode
	Brightness uint8
	Rate       RateModifier
}

// DefaultConfig is the configuration used until one is restored from flash.
var DefaultConfig = DeviceConfig{
	Mode:       SineCycle{Frequency: 0.01},
	Brightness: BrightnessLow,
	Rate:       RateModerate,
}
