package tollglow

import (
	"encoding"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"libdb.so/tollglow/flashstore"
)

// Config is the configuration for the tollglow daemon.
type Config struct {
	// Device is the path to the serial device of the LED controller.
	// This is usually /dev/ttyUSB0 or /dev/ttyACM0.
	Device string `toml:"device"`
	// Baud is the baud rate for the serial connection.
	Baud int `toml:"baud"`
	// WaitForDevice makes the daemon wait for Device to appear instead of
	// failing when it is missing.
	WaitForDevice bool `toml:"wait_for_device"`
	// NumLEDs is the number of LEDs on the strip.
	NumLEDs int `toml:"num_leds"`
	// Tick is the animation frame interval.
	Tick TOMLDuration `toml:"tick"`
	// Display is the file the menu screens are printed to. Empty means
	// standard output.
	Display string `toml:"display"`
	// Flash configures the persistent storage.
	Flash FlashConfig `toml:"flash"`
	// Metrics configures the metrics textfile.
	Metrics MetricsConfig `toml:"metrics"`
}

// FlashConfig describes the flash image holding the persisted state.
type FlashConfig struct {
	// Path is the flash image file. It is created erased if missing.
	Path string `toml:"path"`
	// Start is the first byte of the storage region.
	Start int64 `toml:"start"`
	// End is the byte after the storage region.
	End int64 `toml:"end"`
	// PageSize is the erase unit of the flash.
	PageSize int64 `toml:"page_size"`
}

// Region returns the storage region.
func (c FlashConfig) Region() flashstore.Region {
	return flashstore.Region{Start: c.Start, End: c.End, PageSize: c.PageSize}
}

// MetricsConfig configures the node_exporter textfile.
type MetricsConfig struct {
	// Textfile is where metrics are written. Empty disables metrics export.
	Textfile string `toml:"textfile"`
	// Interval is how often the textfile is rewritten.
	Interval TOMLDuration `toml:"interval"`
}

// Defaults used for settings missing from the configuration file.
const (
	DefaultBaud            = 115200
	DefaultNumLEDs         = 1
	DefaultFlashStart      = 0x9000
	DefaultFlashEnd        = 0xC000
	DefaultFlashPageSize   = 0x1000
	DefaultMetricsInterval = 15 * time.Second
)

// DefaultConfig returns a configuration with every default applied. Device
// and Flash.Path have no defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.NumLEDs == 0 {
		c.NumLEDs = DefaultNumLEDs
	}
	if c.Tick == 0 {
		c.Tick = TOMLDuration(time.Millisecond)
	}
	if c.Flash.Start == 0 && c.Flash.End == 0 {
		c.Flash.Start = DefaultFlashStart
		c.Flash.End = DefaultFlashEnd
	}
	if c.Flash.PageSize == 0 {
		c.Flash.PageSize = DefaultFlashPageSize
	}
	if c.Metrics.Interval == 0 {
		c.Metrics.Interval = TOMLDuration(DefaultMetricsInterval)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Device == "" {
		return errors.New("no device configured")
	}

	if c.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Baud)
	}

	if c.NumLEDs < 1 || c.NumLEDs > math.MaxUint16 {
		return fmt.Errorf("num_leds %d out of range", c.NumLEDs)
	}

	if c.Tick <= 0 {
		return fmt.Errorf("invalid tick %v", time.Duration(c.Tick))
	}

	if c.Flash.Path == "" {
		return errors.New("no flash image path configured")
	}

	region := c.Flash.Region()
	if err := region.Validate(region.End); err != nil {
		return errors.Wrap(err, "invalid flash config")
	}

	if c.Metrics.Textfile != "" && c.Metrics.Interval <= 0 {
		return fmt.Errorf("invalid metrics interval %v", time.Duration(c.Metrics.Interval))
	}

	return nil
}

// TOMLDuration is a duration that can be parsed from TOML.
type TOMLDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*TOMLDuration)(nil)
	_ encoding.TextMarshaler   = (*TOMLDuration)(nil)
)

func (d *TOMLDuration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = TOMLDuration(duration)
	return nil
}

func (d TOMLDuration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ParseConfig parses a configuration from a reader and fills in defaults.
// The result is not validated.
func ParseConfig(r io.Reader) (*Config, error) {
	var config Config
	if err := toml.NewDecoder(r).Decode(&config); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	config.applyDefaults()
	return &config, nil
}
