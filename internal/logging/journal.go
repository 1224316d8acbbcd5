package logging

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// Identifier is the SYSLOG_IDENTIFIER of journal entries.
const Identifier = "tollglow"

// JournalHandler is a slog.Handler that sends records to the systemd
// journal. Attributes become journal fields.
type JournalHandler struct {
	ident  string
	level  slog.Leveler
	fields map[string]string // from WithAttrs, already qualified
	groups []string
	send   func(msg string, pri journal.Priority, fields map[string]string) error
}

var _ slog.Handler = (*JournalHandler)(nil)

// NewJournalHandler creates a handler logging records at or above level
// under the given identifier.
func NewJournalHandler(ident string, level slog.Leveler) *JournalHandler {
	return &JournalHandler{
		ident: ident,
		level: level,
		send:  journal.Send,
	}
}

func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := maps.Clone(h.fields)
	if fields == nil {
		fields = make(map[string]string, r.NumAttrs()+1)
	}
	fields["SYSLOG_IDENTIFIER"] = h.ident

	r.Attrs(func(attr slog.Attr) bool {
		addField(fields, h.groups, attr)
		return true
	})

	return h.send(r.Message, priority(r.Level), fields)
}

func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h2 := *h
	h2.fields = maps.Clone(h.fields)
	if h2.fields == nil {
		h2.fields = make(map[string]string, len(attrs))
	}
	for _, attr := range attrs {
		addField(h2.fields, h.groups, attr)
	}
	return &h2
}

func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = append(slices.Clip(h.groups), name)
	return &h2
}

func priority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// addField stores attr under its journal field name. Groups are flattened
// into the name, joined by underscores.
func addField(fields map[string]string, groups []string, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	if attr.Value.Kind() == slog.KindGroup {
		if attr.Key != "" {
			groups = append(slices.Clip(groups), attr.Key)
		}
		for _, a := range attr.Value.Group() {
			addField(fields, groups, a)
		}
		return
	}

	key := fieldName(append(slices.Clip(groups), attr.Key))
	if key == "" {
		return
	}

	switch attr.Value.Kind() {
	case slog.KindDuration:
		fields[key] = attr.Value.Duration().String()
	case slog.KindTime:
		fields[key] = attr.Value.Time().Format(time.RFC3339Nano)
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(attr.Value.Float64(), 'g', -1, 64)
	default:
		fields[key] = attr.Value.String()
	}
}

// fieldName builds a valid journal field name: uppercase ASCII letters,
// digits and underscores, not starting with an underscore or a digit.
func fieldName(parts []string) string {
	var b strings.Builder
	for i, part := range parts {
		if i > 0 {
			b.WriteByte('_')
		}
		for _, r := range part {
			switch {
			case r >= 'a' && r <= 'z':
				b.WriteRune(r - 'a' + 'A')
			case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
				b.WriteRune(r)
			default:
				b.WriteByte('_')
			}
		}
	}

	return strings.TrimLeft(b.String(), "_0123456789")
}
