package led

import (
	"encoding"
	"fmt"
	"math"
)

// RGBColor is a color in the order it is sent on the wire.
type RGBColor [3]uint8

var (
	Black = RGBColor{0, 0, 0}
	White = RGBColor{255, 255, 255}
	Red   = RGBColor{255, 0, 0}
	Green = RGBColor{0, 255, 0}
	Blue  = RGBColor{0, 0, 255}
)

var (
	_ encoding.TextMarshaler   = RGBColor{}
	_ encoding.TextUnmarshaler = (*RGBColor)(nil)
)

// R returns the red channel.
func (c RGBColor) R() uint8 { return c[0] }

// G returns the green channel.
func (c RGBColor) G() uint8 { return c[1] }

// B returns the blue channel.
func (c RGBColor) B() uint8 { return c[2] }

// String formats the color as #rrggbb.
func (c RGBColor) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

func (c RGBColor) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *RGBColor) UnmarshalText(text []byte) error {
	var r, g, b uint8
	if _, err := fmt.Sscanf(string(text), "#%02x%02x%02x", &r, &g, &b); err != nil {
		return fmt.Errorf("invalid color %q: %w", text, err)
	}
	*c = RGBColor{r, g, b}
	return nil
}

// HSV is a color in the hue/saturation/value model, every channel spanning
// the full byte range.
type HSV struct {
	Hue uint8
	Sat uint8
	Val uint8
}

// Hue returns a fully saturated, full value color of the given hue.
func Hue(h uint8) HSV {
	return HSV{Hue: h, Sat: 255, Val: 255}
}

// RGB converts the color to RGB. The hue circle is split into six sectors of
// roughly 43 steps each.
func (c HSV) RGB() RGBColor {
	v := uint16(c.Val)
	s := uint16(c.Sat)
	f := (uint16(c.Hue) * 2 % 85) * 3 // position within the sector, 0..252

	p := uint8(v * (255 - s) / 255)
	q := uint8(v * (255 - s*f/255) / 255)
	t := uint8(v * (255 - s*(255-f)/255) / 255)
	vv := uint8(v)

	switch {
	case c.Hue < 43:
		return RGBColor{vv, t, p}
	case c.Hue < 85:
		return RGBColor{q, vv, p}
	case c.Hue < 128:
		return RGBColor{p, vv, t}
	case c.Hue < 170:
		return RGBColor{p, q, vv}
	case c.Hue < 213:
		return RGBColor{t, p, vv}
	case c.Hue < 255:
		return RGBColor{vv, p, q}
	default:
		return RGBColor{vv, t, p}
	}
}

// Gamma is the exponent of the gamma correction curve.
const Gamma = 2.8

var gammaTable = func() (table [256]uint8) {
	for i := range table {
		table[i] = uint8(math.Pow(float64(i)/255, Gamma)*255 + 0.5)
	}
	return
}()

// GammaCorrect maps every channel through the gamma curve so that linear
// steps in value look like linear steps in perceived intensity.
func (c RGBColor) GammaCorrect() RGBColor {
	return RGBColor{gammaTable[c[0]], gammaTable[c[1]], gammaTable[c[2]]}
}

// Scale dims the color by brightness, where 255 keeps the color unchanged
// and 0 turns it off.
func (c RGBColor) Scale(brightness uint8) RGBColor {
	b := uint16(brightness) + 1
	return RGBColor{
		uint8(uint16(c[0]) * b / 256),
		uint8(uint16(c[1]) * b / 256),
		uint8(uint16(c[2]) * b / 256),
	}
}
