package ledvis

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"libdb.so/tollglow/internal/devstate"
	"libdb.so/tollglow/internal/led"
	"libdb.so/tollglow/internal/metrics"
)

// DefaultTick is the default frame interval.
const DefaultTick = time.Millisecond

// Options configures an Engine. Zero fields take defaults.
type Options struct {
	// Tick is the frame interval.
	Tick time.Duration
	// NumLEDs is the number of LEDs that show the color.
	NumLEDs int
	// Clock drives the frame ticker and elapsed time.
	Clock clockwork.Clock
	// Rand is the source of Random mode hues.
	Rand *rand.Rand
	// Metrics counts LED writes. It may be nil.
	Metrics *metrics.Metrics
}

// Engine renders the device configuration to the LED strip. It only writes
// to the actuator when the output color changes.
type Engine struct {
	config *devstate.Value[devstate.DeviceConfig]
	out    Actuator
	logger *slog.Logger
	opts   Options

	vis       *visualizer
	highlight highlight
	base      led.RGBColor // latest mode color before gamma and brightness
	last      led.RGBColor // latest color written to the actuator
	sent      bool
	leds      led.LEDs
}

// NewEngine creates an engine that reads config every frame and writes to
// out.
func NewEngine(config *devstate.Value[devstate.DeviceConfig], out Actuator, opts Options, logger *slog.Logger) *Engine {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.NumLEDs <= 0 {
		opts.NumLEDs = 1
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Engine{
		config: config,
		out:    out,
		logger: logger,
		opts:   opts,
		vis:    newVisualizer(opts.Rand),
		leds:   led.NewLEDs(opts.NumLEDs),
	}
}

// Highlight overrides the mode color with c until Unhighlight is called.
func (e *Engine) Highlight(c led.RGBColor) {
	e.highlight.set(c)
}

// Unhighlight removes the override, returning to the mode color.
func (e *Engine) Unhighlight() {
	e.highlight.clear()
}

// Run renders a frame every tick until ctx is canceled or the actuator
// fails.
func (e *Engine) Run(ctx context.Context) error {
	ticker := e.opts.Clock.NewTicker(e.opts.Tick)
	defer ticker.Stop()

	start := e.opts.Clock.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if _, err := e.Frame(e.opts.Clock.Since(start)); err != nil {
				return err
			}
		}
	}
}

// Frame renders the color for elapsed and reports whether it was written to
// the actuator.
func (e *Engine) Frame(elapsed time.Duration) (bool, error) {
	cfg := e.config.Read()

	if c, ok := e.vis.color(cfg, elapsed); ok {
		e.base = c
	}

	color := e.base
	if c, ok := e.highlight.get(); ok {
		color = c
	}

	color = color.GammaCorrect().Scale(cfg.Brightness)
	if e.sent && color == e.last {
		return false, nil
	}

	e.leds.Fill(color)
	if err := e.out.WriteLEDs(e.leds); err != nil {
		return false, errors.Wrap(err, "failed to write LEDs")
	}

	e.logger.Debug("wrote LED color", "color", color, "mode", cfg.Mode)
	e.opts.Metrics.LEDWrite()

	e.last = color
	e.sent = true
	return true, nil
}
