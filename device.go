package tollglow

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// WaitForDevice blocks until the file at path exists or ctx is canceled. The
// controller's serial node only appears once it is plugged in.
func WaitForDevice(ctx context.Context, path string, logger *slog.Logger) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create device watcher")
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "failed to watch %s", dir)
	}

	// The device may have appeared before the watch was added.
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	logger.Info("waiting for device", "device", path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-watcher.Events:
			if !ok {
				return errors.New("device watcher closed")
			}
			if ev.Op.Has(fsnotify.Create) && filepath.Clean(ev.Name) == filepath.Clean(path) {
				logger.Debug("device appeared", "device", path)
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return errors.New("device watcher closed")
			}
			logger.Warn("device watcher error", "error", err)
		}
	}
}
