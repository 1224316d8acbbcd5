// Package metrics counts device activity on a private Prometheus registry.
// The device has no network listener; the registry is exported as a
// node_exporter textfile instead.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tollglow"

// Metrics holds every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Registry *prometheus.Registry

	buttonEvents *prometheus.CounterVec
	ledWrites    prometheus.Counter
	flashCommits *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		buttonEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "button_events_total",
			Help:      "Classified button events by kind.",
		}, []string{"event"}),
		ledWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "led_writes_total",
			Help:      "Colors written to the LED strip.",
		}),
		flashCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flash_commits_total",
			Help:      "Records appended to the flash store by key.",
		}, []string{"key"}),
	}

	m.Registry.MustRegister(m.buttonEvents, m.ledWrites, m.flashCommits)
	return m
}

// ButtonEvent counts a published button event.
func (m *Metrics) ButtonEvent(event string) {
	if m != nil {
		m.buttonEvents.WithLabelValues(event).Inc()
	}
}

// LEDWrite counts a color written to the actuator.
func (m *Metrics) LEDWrite() {
	if m != nil {
		m.ledWrites.Inc()
	}
}

// FlashCommit counts a record appended for the named key.
func (m *Metrics) FlashCommit(key string) {
	if m != nil {
		m.flashCommits.WithLabelValues(key).Inc()
	}
}

// WriteTextfile atomically writes the registry to path in the text
// exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return errors.Wrap(err, "failed to write metrics textfile")
	}
	return nil
}

// RunTextfile rewrites the textfile every interval until ctx is canceled,
// then writes it one last time.
func (m *Metrics) RunTextfile(ctx context.Context, path string, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := m.WriteTextfile(path); err != nil {
				logger.Warn("failed to write final metrics", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			if err := m.WriteTextfile(path); err != nil {
				logger.Warn("failed to write metrics", "path", path, "error", err)
			}
		}
	}
}
