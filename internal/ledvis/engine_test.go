package ledvis

import (
	"context"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libdb.so/tollglow/internal/devstate"
	"libdb.so/tollglow/internal/led"
)

type recordingActuator struct {
	mu     sync.Mutex
	writes []led.LEDs
	err    error
}

func (a *recordingActuator) WriteLEDs(leds led.LEDs) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.writes = append(a.writes, append(led.LEDs(nil), leds...))
	return nil
}

func (a *recordingActuator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.writes)
}

func (a *recordingActuator) last() led.RGBColor {
	a.mu.Lock()
	defer a.mu.Unlock()
	w := a.writes[len(a.writes)-1]
	return w[0]
}

func newTestEngine(cfg devstate.DeviceConfig, out Actuator) (*Engine, *devstate.Value[devstate.DeviceConfig]) {
	config := devstate.NewValue(cfg)
	e := NewEngine(config, out, Options{
		NumLEDs: 2,
		Rand:    rand.New(rand.NewPCG(1, 2)),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return e, config
}

func TestSinAccuracy(t *testing.T) {
	assert.InDelta(t, math.Sin(math.Pi/4), Sin(math.Pi/4), 1e-3)

	for x := -20.0; x <= 20.0; x += 0.01 {
		require.InDelta(t, math.Sin(x), Sin(x), 1e-5, "x=%v", x)
	}

	assert.Zero(t, Sin(math.Inf(1)))
	assert.Zero(t, Sin(math.NaN()))
}

func TestSineHuePeriodic(t *testing.T) {
	const freq = 0.5
	mult := devstate.RateModerate.Multiplier()
	period := 2 * math.Pi / (freq * float64(mult))

	// Sample points whose hue is far from a rounding boundary.
	for _, x := range []float64{0.3, 1.1, 2.0, 4.0, 5.5} {
		secs := x / (freq * float64(mult))
		h0 := sineHue(secs * freq * float64(mult))
		h1 := sineHue((secs + period) * freq * float64(mult))
		h2 := sineHue((secs + 3*period) * freq * float64(mult))
		assert.Equal(t, h0, h1, "x=%v", x)
		assert.Equal(t, h0, h2, "x=%v", x)
	}

	assert.Equal(t, uint8(0), sineHue(0))
	assert.Equal(t, uint8(255), sineHue(math.Pi/2))
	assert.Equal(t, uint8(1), sineHue(3*math.Pi/2), "-255 mod 256")
}

func TestContinuousHueRamps(t *testing.T) {
	prev := continuousHue(0, 7, 2)
	wraps := 0

	for ms := 1; ms <= 60_000; ms++ {
		cur := continuousHue(float64(ms)/1000, 7, 2)
		step := (int(cur) - int(prev) + 255) % 255
		require.Less(t, step, 2, "hue must only ramp forward at ms=%d", ms)
		if cur < prev {
			wraps++
		}
		prev = cur
	}

	assert.Positive(t, wraps, "hue must wrap around")
	assert.Equal(t, uint8(140), continuousHue(10, 7, 2))
	assert.Equal(t, uint8(25), continuousHue(20, 7, 2), "280 mod 255")
}

func TestIdenticalFramesWriteOnce(t *testing.T) {
	out := &recordingActuator{}
	e, _ := newTestEngine(devstate.DeviceConfig{
		Mode:       devstate.Static{Color: led.Red},
		Brightness: devstate.BrightnessMax,
		Rate:       devstate.RateSlow,
	}, out)

	for ms := 0; ms < 100; ms++ {
		_, err := e.Frame(time.Duration(ms) * time.Millisecond)
		require.NoError(t, err)
	}

	require.Equal(t, 1, out.count())
	assert.Equal(t, led.Red, out.last())
	assert.Len(t, out.writes[0], 2, "every LED receives the color")
}

func TestBrightnessChangeRewrites(t *testing.T) {
	out := &recordingActuator{}
	cfg := devstate.DeviceConfig{
		Mode:       devstate.Static{Color: led.White},
		Brightness: devstate.BrightnessMax,
		Rate:       devstate.RateSlow,
	}
	e, config := newTestEngine(cfg, out)

	_, err := e.Frame(0)
	require.NoError(t, err)
	assert.Equal(t, led.White, out.last())

	cfg.Brightness = devstate.BrightnessLow
	config.Write(cfg)

	wrote, err := e.Frame(time.Millisecond)
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, led.White.Scale(devstate.BrightnessLow), out.last())
}

func TestRandomCadence(t *testing.T) {
	out := &recordingActuator{}
	e, _ := newTestEngine(devstate.DeviceConfig{
		Mode:       devstate.Random{Rate: 1},
		Brightness: devstate.BrightnessMax,
		Rate:       devstate.RateSlow,
	}, out)

	for ms := 0; ms < 15_000; ms++ {
		_, err := e.Frame(time.Duration(ms) * time.Millisecond)
		require.NoError(t, err)

		// Exactly one recompute per 5000ms window.
		assert.Equal(t, ms/5000+1, e.vis.recomputes, "ms=%d", ms)
	}

	assert.LessOrEqual(t, out.count(), 3)
}

func TestFibonacciSequence(t *testing.T) {
	var f fibonacci
	want := []uint8{1, 2, 3, 5, 8, 13, 21, 34, 55, 89, 144, 233, 121, 98}
	for i, w := range want {
		assert.Equal(t, w, f.next(), "term %d", i)
	}
}

func TestFibonacciCadence(t *testing.T) {
	out := &recordingActuator{}
	e, _ := newTestEngine(devstate.DeviceConfig{
		Mode:       devstate.Fibonacci{Rate: 2},
		Brightness: devstate.BrightnessMax,
		Rate:       devstate.RateModerate,
	}, out)

	// 5000 / (2*2) = 1250ms per step.
	for ms := 0; ms < 5000; ms++ {
		_, err := e.Frame(time.Duration(ms) * time.Millisecond)
		require.NoError(t, err)
	}

	assert.Equal(t, 4, e.vis.recomputes)
	assert.Equal(t, led.Hue(5).RGB().GammaCorrect(), out.last())
}

func TestDegenerateRates(t *testing.T) {
	tests := []struct {
		name string
		mode devstate.Mode
		rate devstate.RateModifier
	}{
		{"zero rate", devstate.Random{Rate: 0}, devstate.RateSlow},
		{"zero modifier", devstate.Fibonacci{Rate: 1}, devstate.RateModifier(0)},
		{"overflowing rate", devstate.Random{Rate: math.MaxUint64}, devstate.RateFast},
		{"huge continuous", devstate.Continuous{Rate: math.MaxUint64}, devstate.RateFast},
		{"huge sine", devstate.SineCycle{Frequency: math.MaxFloat64}, devstate.RateFast},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEngine(devstate.DeviceConfig{
				Mode:       tt.mode,
				Brightness: devstate.BrightnessMax,
				Rate:       tt.rate,
			}, &recordingActuator{})

			assert.NotPanics(t, func() {
				for ms := 0; ms < 50; ms++ {
					_, err := e.Frame(time.Duration(ms) * time.Millisecond)
					require.NoError(t, err)
				}
			})
		})
	}

	assert.Equal(t, uint64(1), effectiveRate(0, 0))
	assert.Equal(t, uint64(math.MaxUint64), effectiveRate(math.MaxUint64, 4))
	assert.Equal(t, uint64(6), effectiveRate(3, 2))
}

func TestHighlightRestoresModeColor(t *testing.T) {
	out := &recordingActuator{}
	e, _ := newTestEngine(devstate.DeviceConfig{
		Mode:       devstate.Random{Rate: 1},
		Brightness: devstate.BrightnessMax,
		Rate:       devstate.RateSlow,
	}, out)

	_, err := e.Frame(0)
	require.NoError(t, err)
	before := out.last()

	e.Highlight(led.Blue)
	_, err = e.Frame(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, led.Blue, out.last())

	// Random is not due again until 5s, yet the previous color comes back
	// as soon as the highlight is removed.
	e.Unhighlight()
	_, err = e.Frame(20 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, before, out.last())
}

func TestActuatorFailure(t *testing.T) {
	boom := errors.New("strip unplugged")
	e, _ := newTestEngine(devstate.DefaultConfig, &recordingActuator{err: boom})

	_, err := e.Frame(0)
	assert.True(t, errors.Is(err, boom), "got %v", err)
}

func TestRunWritesOnlyOnChange(t *testing.T) {
	out := &recordingActuator{}
	e, _ := newTestEngine(devstate.DeviceConfig{
		Mode:       devstate.Static{Color: led.Green},
		Brightness: devstate.BrightnessMax,
		Rate:       devstate.RateSlow,
	}, out)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := e.Run(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Equal(t, 1, out.count())
}
