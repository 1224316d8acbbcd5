package persist

import (
	"context"
	"encoding"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"libdb.so/tollglow/flashstore"
	"libdb.so/tollglow/internal/devstate"
	"libdb.so/tollglow/internal/metrics"
)

// Flash keys. They are part of the persisted format.
const (
	KeyCount  byte = 0
	KeyConfig byte = 1
)

// Quiet is how long a value must stay unchanged before it is written.
const Quiet = 2 * time.Second

// Options configures a Manager. Zero fields take defaults.
type Options struct {
	// Clock drives the quiet period timer.
	Clock clockwork.Clock
	// Metrics counts commits. It may be nil.
	Metrics *metrics.Metrics
}

// Manager restores the device state from flash and writes it back when it
// settles.
type Manager struct {
	handle *Handle
	count  *tracker[devstate.Count, *devstate.Count]
	config *tracker[devstate.DeviceConfig, *devstate.DeviceConfig]
}

// NewManager creates a manager for state backed by store.
func NewManager(store *flashstore.Store, state *devstate.State, opts Options, logger *slog.Logger) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	handle := NewHandle(store)
	return &Manager{
		handle: handle,
		count: &tracker[devstate.Count, *devstate.Count]{
			name:   "count",
			key:    KeyCount,
			value:  state.Count,
			handle: handle,
			opts:   opts,
			logger: logger.With("key", "count"),
		},
		config: &tracker[devstate.DeviceConfig, *devstate.DeviceConfig]{
			name:   "config",
			key:    KeyConfig,
			value:  state.Config,
			handle: handle,
			opts:   opts,
			logger: logger.With("key", "config"),
		},
	}
}

// Handle returns the shared flash handle.
func (m *Manager) Handle() *Handle {
	return m.handle
}

// Restore loads every stored value into the state. Values that were never
// stored keep their defaults. It must be called before Run and before any
// other task touches the state.
func (m *Manager) Restore() error {
	if err := m.count.restore(); err != nil {
		return err
	}
	return m.config.restore()
}

// Run writes values back until ctx is canceled or a flash operation fails.
// A failure is fatal: it is returned and every loop stops.
func (m *Manager) Run(ctx context.Context) error {
	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error { return m.count.run(ctx) })
	errg.Go(func() error { return m.config.run(ctx) })
	return errg.Wait()
}

type record interface {
	comparable
	encoding.BinaryMarshaler
}

type recordPtr[T any] interface {
	*T
	encoding.BinaryUnmarshaler
}

// tracker persists a single state value under one key.
type tracker[T record, P recordPtr[T]] struct {
	name   string
	key    byte
	value  *devstate.Value[T]
	handle *Handle
	opts   Options
	logger *slog.Logger

	durable    T
	hasDurable bool
}

func (t *tracker[T, P]) restore() error {
	b, ok, err := t.handle.Fetch(t.key)
	if err != nil {
		return errors.Wrapf(err, "failed to fetch stored %s", t.name)
	}
	if !ok {
		t.logger.Info("nothing stored, keeping default")
		return nil
	}

	var v T
	if err := P(&v).UnmarshalBinary(b); err != nil {
		return errors.Wrapf(err, "failed to decode stored %s", t.name)
	}

	t.value.Write(v)
	t.durable = v
	t.hasDurable = true

	t.logger.Info("restored value", "value", v)
	return nil
}

func (t *tracker[T, P]) run(ctx context.Context) error {
	w := t.value.Watch()
	defer w.Close()

	var pending T
	var hasPending bool

	for {
		timer := t.opts.Clock.NewTimer(Quiet)

		select {
		case <-ctx.Done():
			timer.Stop()
			if v := t.value.Read(); (hasPending || t.hasDurable) && t.dirty(v) {
				if err := t.commit(v); err != nil {
					return err
				}
			}
			return ctx.Err()

		case <-w.Changed():
			timer.Stop()
			pending = t.value.Read()
			hasPending = true

		case <-timer.Chan():
			if hasPending && t.dirty(pending) {
				if err := t.commit(pending); err != nil {
					return err
				}
			}
			hasPending = false
		}
	}
}

func (t *tracker[T, P]) dirty(v T) bool {
	return !t.hasDurable || v != t.durable
}

func (t *tracker[T, P]) commit(v T) error {
	b, err := v.MarshalBinary()
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", t.name)
	}

	if err := t.handle.Store(t.key, b); err != nil {
		return errors.Wrapf(err, "failed to store %s", t.name)
	}

	t.durable = v
	t.hasDurable = true

	t.logger.Debug("stored value", "value", v)
	t.opts.Metrics.FlashCommit(t.name)
	return nil
}
