// Package logging builds the daemon's slog logger, writing either text to
// stderr or structured entries to the systemd journal.
package logging

import (
	"io"
	"log/slog"

	"github.com/coreos/go-systemd/v22/journal"
	"github.com/pkg/errors"
)

// Options selects the log destination and verbosity.
type Options struct {
	// Verbose enables debug logs. Otherwise only warnings and errors are
	// logged.
	Verbose bool
	// Journal sends logs to the systemd journal instead of Output.
	Journal bool
	// Output receives text logs when Journal is false.
	Output io.Writer
}

// Level returns the minimum level logged.
func (o Options) Level() slog.Level {
	if o.Verbose {
		return slog.LevelDebug
	}
	return slog.LevelWarn
}

// New creates a logger. It fails if the journal is requested but the
// journal socket is unavailable.
func New(opts Options) (*slog.Logger, error) {
	if opts.Journal {
		if !journal.Enabled() {
			return nil, errors.New("systemd journal is not available")
		}
		return slog.New(NewJournalHandler(Identifier, opts.Level())), nil
	}

	return slog.New(slog.NewTextHandler(opts.Output, &slog.HandlerOptions{
		Level: opts.Level(),
	})), nil
}
