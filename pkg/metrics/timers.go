// Package metrics provides the profiling capability handed to
// long-running synthesis components.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Timers delimits named sections of work. Stop without a matching Start
// is ignored.
type Timers interface {
	Start(name string)
	Stop(name string)
}

// Noop discards all measurements. It is the default sink.
type Noop struct{}

// Start implements Timers.
func (Noop) Start(string) {}

// Stop implements Timers.
func (Noop) Stop(string) {}

// Histogram records section durations in a prometheus histogram labeled
// by section name. Like the components it instruments, it is
// single-owner: Start/Stop must not be called concurrently.
type Histogram struct {
	durations *prometheus.HistogramVec
	started   map[string]time.Time
}

// NewHistogram registers the duration histogram on r under the given
// namespace.
func NewHistogram(r prometheus.Registerer, namespace string) (*Histogram, error) {
	h := &Histogram{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "section_duration_seconds",
			Help:      "Wall-clock duration of profiled sections.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 12),
		}, []string{"section"}),
		started: make(map[string]time.Time),
	}
	if err := r.Register(h.durations); err != nil {
		return nil, err
	}
	return h, nil
}

// Start implements Timers.
func (h *Histogram) Start(name string) {
	h.started[name] = time.Now()
}

// Stop implements Timers.
func (h *Histogram) Stop(name string) {
	t0, ok := h.started[name]
	if !ok {
		return
	}
	delete(h.started, name)
	h.durations.WithLabelValues(name).Observe(time.Since(t0).Seconds())
}
