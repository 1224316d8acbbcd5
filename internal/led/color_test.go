package led

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHSVPrimaries(t *testing.T) {
	tests := []struct {
		name string
		hsv  HSV
		want RGBColor
	}{
		{"red", Hue(0), Red},
		{"green", Hue(85), Green},
		{"blue", Hue(170), Blue},
		{"wraps to red", Hue(255), Red},
		{"unsaturated is grey", HSV{Hue: 100, Sat: 0, Val: 200}, RGBColor{200, 200, 200}},
		{"zero value is black", HSV{Hue: 42, Sat: 255, Val: 0}, Black},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.hsv.RGB())
		})
	}
}

func TestGammaCorrect(t *testing.T) {
	assert.Equal(t, Black, Black.GammaCorrect())
	assert.Equal(t, White, White.GammaCorrect())

	mid := RGBColor{128, 128, 128}.GammaCorrect()
	assert.Less(t, mid[0], uint8(128), "gamma must darken mid tones")

	var prev uint8
	for i := 0; i < 256; i++ {
		v := RGBColor{uint8(i)}.GammaCorrect()[0]
		require.GreaterOrEqual(t, v, prev, "gamma table must be monotonic at %d", i)
		prev = v
	}
}

func TestScale(t *testing.T) {
	assert.Equal(t, White, White.Scale(255))
	assert.Equal(t, Black, White.Scale(0))
	assert.Equal(t, RGBColor{127, 0, 64}, RGBColor{255, 0, 128}.Scale(127))
}

func TestColorText(t *testing.T) {
	var c RGBColor
	require.NoError(t, c.UnmarshalText([]byte("#0a96cc")))
	assert.Equal(t, RGBColor{10, 150, 204}, c)
	assert.Equal(t, "#0a96cc", c.String())

	assert.Error(t, c.UnmarshalText([]byte("blue")))
}

func TestLEDs(t *testing.T) {
	leds := NewLEDs(3)
	leds.Fill(Red)
	leds.SetRange(1, 2, Blue)

	assert.Equal(t, []uint8{255, 0, 0, 0, 0, 255, 255, 0, 0}, leds.AsPixels())

	var buf bytes.Buffer
	n, err := leds.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
	assert.Equal(t, leds.AsPixels(), buf.Bytes())
}
