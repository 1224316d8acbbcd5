package persist

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libdb.so/tollglow/flashstore"
	"libdb.so/tollglow/internal/devstate"
	"libdb.so/tollglow/internal/led"
)

var testRegion = flashstore.Region{Start: 0, End: 4 * 256, PageSize: 256}

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
	BlockUntil(n int)
}

func newTestStore(t *testing.T) (*flashstore.MemFlash, *flashstore.Store) {
	flash := flashstore.NewMemFlash(testRegion.End, testRegion.PageSize)
	store, err := flashstore.Open(flash, testRegion)
	require.NoError(t, err)
	return flash, store
}

func newTestManager(store *flashstore.Store, state *devstate.State, clock clockwork.Clock) *Manager {
	return NewManager(store, state, Options{Clock: clock}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func mustEncode(t *testing.T, v interface{ MarshalBinary() ([]byte, error) }) []byte {
	t.Helper()
	b, err := v.MarshalBinary()
	require.NoError(t, err)
	return b
}

func storedCount(t *testing.T, h *Handle) (devstate.Count, bool) {
	t.Helper()
	b, ok, err := h.Fetch(KeyCount)
	require.NoError(t, err)
	if !ok {
		return 0, false
	}
	var c devstate.Count
	require.NoError(t, c.UnmarshalBinary(b))
	return c, true
}

// startManager runs m in the background and waits until both loops are
// watching their values. The returned function stops m and returns the error
// Run returned.
func startManager(t *testing.T, m *Manager, clock fakeClock) func() error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// Each loop subscribes before it arms its quiet timer.
	clock.BlockUntil(2)

	var stopped bool
	var result error
	stop := func() error {
		if !stopped {
			stopped = true
			cancel()
			select {
			case result = <-done:
			case <-time.After(time.Second):
				t.Fatal("manager did not stop")
			}
		}
		return result
	}
	t.Cleanup(func() { stop() })
	return stop
}

// settle lets whole quiet periods pass until cond holds. Change
// notifications arrive asynchronously, so one period may not be enough.
func settle(t *testing.T, clock fakeClock, cond func() bool) {
	t.Helper()
	require.Eventually(t, func() bool {
		clock.Advance(Quiet)
		return cond()
	}, time.Second, time.Millisecond)
}

// idle lets n quiet periods pass, waiting for both loops to rearm between
// them.
func idle(clock fakeClock, n int) {
	for i := 0; i < n; i++ {
		clock.BlockUntil(2)
		clock.Advance(Quiet)
	}
	clock.BlockUntil(2)
}

func TestRestoreFromEmptyRegion(t *testing.T) {
	_, store := newTestStore(t)
	state := devstate.New()

	m := newTestManager(store, state, clockwork.NewFakeClock())
	require.NoError(t, m.Restore())

	assert.Equal(t, devstate.DefaultConfig, state.Config.Read())
	assert.Equal(t, devstate.Count(0), state.Count.Read())
	assert.Zero(t, m.Handle().Stats().Appends)
}

func TestRestoreAdoptsStoredValues(t *testing.T) {
	_, store := newTestStore(t)

	cfg := devstate.DeviceConfig{
		Mode:       devstate.Static{Color: led.RGBColor{1, 2, 3}},
		Brightness: devstate.BrightnessHigh,
		Rate:       devstate.RateFast,
	}
	require.NoError(t, store.Store(KeyCount, mustEncode(t, devstate.Count(42))))
	require.NoError(t, store.Store(KeyConfig, mustEncode(t, cfg)))

	state := devstate.New()
	m := newTestManager(store, state, clockwork.NewFakeClock())
	require.NoError(t, m.Restore())

	assert.Equal(t, devstate.Count(42), state.Count.Read())
	assert.Equal(t, cfg, state.Config.Read())
}

func TestRestoreRejectsMalformedRecord(t *testing.T) {
	_, store := newTestStore(t)
	require.NoError(t, store.Store(KeyConfig, []byte{0xEE, 1, 2}))

	m := newTestManager(store, devstate.New(), clockwork.NewFakeClock())
	err := m.Restore()
	assert.True(t, errors.Is(err, devstate.ErrMalformed), "got %v", err)
}

func TestCommitAfterQuietPeriod(t *testing.T) {
	_, store := newTestStore(t)
	state := devstate.New()
	clock := clockwork.NewFakeClock()

	m := newTestManager(store, state, clock)
	require.NoError(t, m.Restore())
	startManager(t, m, clock)

	for i := 1; i <= 10; i++ {
		state.Count.Write(devstate.Count(i))
	}

	clock.Advance(Quiet - time.Millisecond)
	idle(clock, 0)
	assert.Zero(t, m.Handle().Stats().Appends, "nothing is written before the quiet period")

	settle(t, clock, func() bool {
		c, ok := storedCount(t, m.Handle())
		return ok && c == 10
	})
	assert.Less(t, m.Handle().Stats().Appends, 10, "a burst of writes must coalesce")
}

func TestCommitIsIdempotent(t *testing.T) {
	_, store := newTestStore(t)
	state := devstate.New()
	clock := clockwork.NewFakeClock()

	m := newTestManager(store, state, clock)
	require.NoError(t, m.Restore())
	startManager(t, m, clock)

	// Two writes within one quiet period.
	state.Count.Write(5)
	clock.Advance(Quiet / 2)
	state.Count.Write(5)

	settle(t, clock, func() bool {
		_, ok := storedCount(t, m.Handle())
		return ok
	})
	idle(clock, 3)
	assert.Equal(t, 1, m.Handle().Stats().Appends)

	// Writing the durable value again is not a change worth storing.
	state.Count.Write(5)
	idle(clock, 3)
	assert.Equal(t, 1, m.Handle().Stats().Appends)
}

func TestConfigAndCountShareFlash(t *testing.T) {
	flash, store := newTestStore(t)
	state := devstate.New()
	clock := clockwork.NewFakeClock()

	m := newTestManager(store, state, clock)
	require.NoError(t, m.Restore())
	startManager(t, m, clock)

	cfg := devstate.DeviceConfig{
		Mode:       devstate.Fibonacci{Rate: 3},
		Brightness: devstate.BrightnessMedium,
		Rate:       devstate.RateSlow,
	}
	state.Config.Write(cfg)
	state.Count.Update(func(c devstate.Count) devstate.Count { return c.Add(1) })

	settle(t, clock, func() bool {
		return m.Handle().Stats().Appends == 2
	})

	// A fresh mount of the same flash sees both values.
	store2, err := flashstore.Open(flash, testRegion)
	require.NoError(t, err)

	state2 := devstate.New()
	require.NoError(t, newTestManager(store2, state2, clockwork.NewFakeClock()).Restore())
	assert.Equal(t, cfg, state2.Config.Read())
	assert.Equal(t, devstate.Count(1), state2.Count.Read())
}

func TestShutdownFlushesPending(t *testing.T) {
	_, store := newTestStore(t)
	require.NoError(t, store.Store(KeyCount, mustEncode(t, devstate.Count(1))))

	state := devstate.New()
	clock := clockwork.NewFakeClock()

	m := newTestManager(store, state, clock)
	require.NoError(t, m.Restore())
	stop := startManager(t, m, clock)

	// Stop well inside the quiet period.
	state.Count.Write(7)
	err := stop()
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)

	c, ok := storedCount(t, m.Handle())
	require.True(t, ok)
	assert.Equal(t, devstate.Count(7), c)
}

func TestFlashFailureIsFatal(t *testing.T) {
	flash, store := newTestStore(t)
	state := devstate.New()
	clock := clockwork.NewFakeClock()

	m := newTestManager(store, state, clock)
	require.NoError(t, m.Restore())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	clock.BlockUntil(2)

	boom := errors.New("flash bus fault")
	flash.Fail(boom)
	state.Count.Write(3)

	var err error
	settle(t, clock, func() bool {
		select {
		case err = <-done:
			return true
		default:
			return false
		}
	})
	assert.True(t, errors.Is(err, boom), "got %v", err)
}
