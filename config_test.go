package tollglow

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libdb.so/tollglow/flashstore"
)

const exampleConfig = `
device = "/dev/ttyACM0"
num_leds = 12
tick = "2ms"

[flash]
path = "/var/lib/tollglow/flash.img"
start = 0x9000
end = 0xC000
page_size = 0x1000

[metrics]
textfile = "/var/lib/node_exporter/tollglow.prom"
interval = "30s"
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(exampleConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/dev/ttyACM0", cfg.Device)
	assert.Equal(t, DefaultBaud, cfg.Baud, "baud falls back to the default")
	assert.Equal(t, 12, cfg.NumLEDs)
	assert.Equal(t, 2*time.Millisecond, time.Duration(cfg.Tick))
	assert.Equal(t, flashstore.Region{Start: 0x9000, End: 0xC000, PageSize: 0x1000}, cfg.Flash.Region())
	assert.Equal(t, "/var/lib/node_exporter/tollglow.prom", cfg.Metrics.Textfile)
	assert.Equal(t, 30*time.Second, time.Duration(cfg.Metrics.Interval))
}

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(strings.NewReader(`
device = "/dev/ttyUSB0"
[flash]
path = "flash.img"
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DefaultConfig().Flash.Region(), cfg.Flash.Region())
	assert.Equal(t, time.Millisecond, time.Duration(cfg.Tick))
	assert.Equal(t, DefaultNumLEDs, cfg.NumLEDs)
}

func TestParseConfigInvalidDuration(t *testing.T) {
	_, err := ParseConfig(strings.NewReader(`tick = "soon"`))
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Device = "/dev/ttyACM0"
		cfg.Flash.Path = "flash.img"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no device", func(c *Config) { c.Device = "" }},
		{"zero baud", func(c *Config) { c.Baud = 0 }},
		{"too many LEDs", func(c *Config) { c.NumLEDs = 70000 }},
		{"negative tick", func(c *Config) { c.Tick = -1 }},
		{"no flash path", func(c *Config) { c.Flash.Path = "" }},
		{"single page", func(c *Config) { c.Flash.End = c.Flash.Start + c.Flash.PageSize }},
		{"unaligned region", func(c *Config) { c.Flash.Start = 0x9001 }},
		{"metrics without interval", func(c *Config) {
			c.Metrics.Textfile = "x.prom"
			c.Metrics.Interval = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestWaitForDevice(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()
	path := filepath.Join(dir, "ttyACM0")

	done := make(chan error, 1)
	go func() { done <- WaitForDevice(context.Background(), path, logger) }()

	select {
	case err := <-done:
		t.Fatalf("returned before the device appeared: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, os.WriteFile(path, nil, 0o600))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("device never noticed")
	}

	// An existing device returns immediately.
	assert.NoError(t, WaitForDevice(context.Background(), path, logger))
}

func TestWaitForDeviceCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := WaitForDevice(ctx, filepath.Join(t.TempDir(), "missing"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
}
