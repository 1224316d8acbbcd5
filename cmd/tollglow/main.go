package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/pelletier/go-toml"
	"github.com/spf13/pflag"

	"libdb.so/tollglow"
	"libdb.so/tollglow/internal/logging"
)

var (
	config  = "tollglow.toml"
	verbose = false
	journal = false
	check   = false

	device string
	wait   bool
)

func init() {
	pflag.StringVarP(&config, "config", "c", config, "configuration file")
	pflag.BoolVarP(&verbose, "verbose", "v", verbose, "verbose output")
	pflag.BoolVar(&journal, "journal", journal, "log to the systemd journal")
	pflag.BoolVar(&check, "check", check, "validate the configuration, print it with defaults filled in and exit")
	pflag.StringVarP(&device, "device", "d", "", "override the serial device of the LED controller")
	pflag.BoolVar(&wait, "wait", false, "wait for the serial device to appear")
}

func main() {
	pflag.Parse()

	logger, err := logging.New(logging.Options{
		Verbose: verbose,
		Journal: journal,
		Output:  os.Stderr,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := readConfig()
	if err != nil {
		return err
	}

	if check {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return toml.NewEncoder(os.Stdout).Encode(cfg)
	}

	// systemd stops the service with SIGTERM; pending state must still be
	// flushed.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := tollglow.NewDaemon(cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	notify(daemon.SdNotifyReady)
	defer notify(daemon.SdNotifyStopping)

	if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("daemon failed: %w", err)
	}

	return nil
}

// notify tells systemd about a state change. It does nothing outside a
// Type=notify unit.
func notify(state string) {
	if _, err := daemon.SdNotify(false, state); err != nil {
		slog.Warn("failed to notify systemd", "state", state, "error", err)
	}
}

func readConfig() (*tollglow.Config, error) {
	f, err := os.Open(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, err := tollglow.ParseConfig(f)
	if err != nil {
		return nil, err
	}

	if device != "" {
		cfg.Device = device
	}
	if wait {
		cfg.WaitForDevice = true
	}

	return cfg, nil
}
