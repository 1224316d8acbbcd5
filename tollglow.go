// Package tollglow is the host daemon of the tollglow counter: a button, a
// text display and an LED strip driven through a serial LED controller. The
// counter and the LED settings survive restarts in a flash image.
package tollglow

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"

	"libdb.so/tollglow/flashstore"
	"libdb.so/tollglow/internal/button"
	"libdb.so/tollglow/internal/devstate"
	"libdb.so/tollglow/internal/ledvis"
	"libdb.so/tollglow/internal/menu"
	"libdb.so/tollglow/internal/metrics"
	"libdb.so/tollglow/internal/persist"
)

// Daemon is the main tollglow daemon.
type Daemon struct {
	cfg     *Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDaemon creates a new tollglow daemon.
func NewDaemon(cfg *Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &Daemon{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
	}, nil
}

// Metrics returns the daemon's metrics.
func (d *Daemon) Metrics() *metrics.Metrics {
	return d.metrics
}

// Run starts the daemon. It blocks until the given context is canceled or a
// task fails.
func (d *Daemon) Run(ctx context.Context) error {
	if d.cfg.WaitForDevice {
		if err := WaitForDevice(ctx, d.cfg.Device, d.logger); err != nil {
			return err
		}
	}

	flash, err := flashstore.OpenFileFlash(d.cfg.Flash.Path, d.cfg.Flash.End)
	if err != nil {
		return errors.Wrap(err, "failed to open flash image")
	}
	defer flash.Close()

	store, err := flashstore.Open(flash, d.cfg.Flash.Region())
	if err != nil {
		return errors.Wrap(err, "failed to mount flash")
	}

	display, err := d.openDisplay()
	if err != nil {
		return err
	}
	defer display.Close()

	port, err := serial.Open(d.cfg.Device, &serial.Mode{
		BaudRate: d.cfg.Baud,
	})
	if err != nil {
		return errors.Wrap(err, "failed to open serial port")
	}
	defer port.Close()

	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		return errors.Wrap(err, "failed to reset read timeout")
	}

	return d.runDevice(ctx, port, store, menu.NewWriterDisplay(display))
}

func (d *Daemon) openDisplay() (io.WriteCloser, error) {
	if d.cfg.Display == "" {
		return nopCloser{os.Stdout}, nil
	}

	f, err := os.OpenFile(d.cfg.Display, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open display")
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// runDevice restores the device state and runs every device task over the
// controller connection until one of them fails or ctx is canceled.
func (d *Daemon) runDevice(ctx context.Context, conn io.ReadWriteCloser, store *flashstore.Store, display menu.Display) error {
	state := devstate.New()
	defer state.Close()

	persister := persist.NewManager(store, state, persist.Options{
		Metrics: d.metrics,
	}, d.logger.With("component", "persist"))

	if err := persister.Restore(); err != nil {
		return errors.Wrap(err, "failed to restore state")
	}

	link := newControllerLink(conn, d.logger.With("component", "link"))

	d.logger.Debug("sending initialize packet")
	if err := link.Initialize(d.cfg.NumLEDs); err != nil {
		return errors.Wrap(err, "failed to initialize LEDs")
	}

	engine := ledvis.NewEngine(state.Config, link, ledvis.Options{
		Tick:    time.Duration(d.cfg.Tick),
		NumLEDs: d.cfg.NumLEDs,
		Metrics: d.metrics,
	}, d.logger.With("component", "engine"))

	events := button.NewEvents()
	levels := make(chan bool)

	classifier := button.NewClassifier(levels, events, link, engine, button.Options{
		Metrics: d.metrics,
	}, d.logger.With("component", "button"))

	foreground := menu.New(state, events, display, nil, d.logger.With("component", "menu"))

	errg, gctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		<-gctx.Done()
		d.logger.Debug("closing serial port")
		if err := conn.Close(); err != nil {
			return errors.Wrap(err, "failed to close serial port")
		}
		return gctx.Err()
	})
	errg.Go(func() error {
		return link.readPackets(gctx, levels)
	})
	errg.Go(func() error {
		return classifier.Run(gctx)
	})
	errg.Go(func() error {
		return engine.Run(gctx)
	})
	errg.Go(func() error {
		return persister.Run(gctx)
	})
	errg.Go(func() error {
		return foreground.Run(gctx)
	})

	if path := d.cfg.Metrics.Textfile; path != "" {
		errg.Go(func() error {
			return d.metrics.RunTextfile(gctx, path, time.Duration(d.cfg.Metrics.Interval), d.logger)
		})
	}

	err := errg.Wait()
	if ctx.Err() != nil {
		// Once ctx is canceled, tasks may fail on the closed port instead of
		// returning ctx.Err().
		return ctx.Err()
	}
	return err
}
