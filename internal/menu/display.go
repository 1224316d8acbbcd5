package menu

import (
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Display shows a screen of text lines, replacing the previous screen.
type Display interface {
	Show(lines ...string) error
}

// WriterDisplay is a Display that prints every screen to a writer as one
// line, the screen lines separated by " | ".
type WriterDisplay struct {
	mu   sync.Mutex
	w    io.Writer
	last string
}

var _ Display = (*WriterDisplay)(nil)

// NewWriterDisplay creates a display that prints to w.
func NewWriterDisplay(w io.Writer) *WriterDisplay {
	return &WriterDisplay{w: w}
}

// Show prints the screen unless it is identical to the previous one.
func (d *WriterDisplay) Show(lines ...string) error {
	screen := strings.Join(lines, " | ")

	d.mu.Lock()
	defer d.mu.Unlock()

	if screen == d.last {
		return nil
	}

	if _, err := io.WriteString(d.w, screen+"\n"); err != nil {
		return errors.Wrap(err, "failed to write screen")
	}

	d.last = screen
	return nil
}
