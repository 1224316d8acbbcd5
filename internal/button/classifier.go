package button

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"libdb.so/tollglow/internal/led"
	"libdb.so/tollglow/internal/metrics"
)

// ErrLineClosed is returned by Run when the level channel is closed.
var ErrLineClosed = errors.New("button line closed")

// Hold feedback colors. The LED turns HalfHoldColor once a press passes
// HoldHalfAfter and FullHoldColor once it passes HoldFullAfter.
var (
	HalfHoldColor = led.White
	FullHoldColor = led.Blue
)

// StatusLED is the indicator LED that is lit while the button is down.
type StatusLED interface {
	SetStatusLED(on bool) error
}

// Highlighter temporarily overrides the animated LED color.
type Highlighter interface {
	Highlight(c led.RGBColor)
	Unhighlight()
}

// Options configures a Classifier. Zero fields take defaults.
type Options struct {
	// Clock times presses. It defaults to the real clock.
	Clock clockwork.Clock
	// Metrics counts published events. It may be nil.
	Metrics *metrics.Metrics
}

// Classifier turns the raw button line into Events.
type Classifier struct {
	levels    <-chan bool
	events    *Events
	status    StatusLED
	highlight Highlighter
	logger    *slog.Logger
	opts      Options
}

// NewClassifier creates a classifier reading line levels from levels. The
// line is active low: false means the button is down.
func NewClassifier(levels <-chan bool, events *Events, status StatusLED, highlight Highlighter, opts Options, logger *slog.Logger) *Classifier {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	return &Classifier{
		levels:    levels,
		events:    events,
		status:    status,
		highlight: highlight,
		logger:    logger,
		opts:      opts,
	}
}

// Run classifies one press per iteration until ctx is canceled or the level
// channel is closed.
func (c *Classifier) Run(ctx context.Context) error {
	for {
		if err := c.waitLevel(ctx, false); err != nil {
			return err
		}

		pressedAt := c.opts.Clock.Now()
		c.setStatus(true)

		if err := c.waitRelease(ctx); err != nil {
			c.setStatus(false)
			return err
		}

		held := c.opts.Clock.Since(pressedAt)
		c.setStatus(false)

		ev, ok := Classify(held)
		if !ok {
			c.logger.Debug("ignoring button glitch", "held", held)
			continue
		}

		c.logger.Debug("button event", "event", ev, "held", held)
		c.events.Publish(ev)
		c.opts.Metrics.ButtonEvent(ev.String())
	}
}

// waitRelease waits for the button to come back up, showing the hold
// feedback colors while it stays down.
func (c *Classifier) waitRelease(ctx context.Context) error {
	released, err := c.waitUp(ctx, HoldHalfAfter)
	if err != nil || released {
		return err
	}

	c.highlight.Highlight(HalfHoldColor)
	defer c.highlight.Unhighlight()

	released, err = c.waitUp(ctx, HoldFullAfter-HoldHalfAfter)
	if err != nil || released {
		return err
	}

	c.highlight.Highlight(FullHoldColor)
	return c.waitLevel(ctx, true)
}

// waitUp waits at most d for the button to be released.
func (c *Classifier) waitUp(ctx context.Context, d time.Duration) (bool, error) {
	timer := c.opts.Clock.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timer.Chan():
			return false, nil
		case level, ok := <-c.levels:
			if !ok {
				return false, ErrLineClosed
			}
			if level {
				return true, nil
			}
		}
	}
}

func (c *Classifier) waitLevel(ctx context.Context, want bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case level, ok := <-c.levels:
			if !ok {
				return ErrLineClosed
			}
			if level == want {
				return nil
			}
		}
	}
}

func (c *Classifier) setStatus(on bool) {
	if err := c.status.SetStatusLED(on); err != nil {
		c.logger.Warn(
			"failed to set status LED",
			"on", on,
			"error", err)
	}
}
