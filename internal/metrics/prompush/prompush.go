// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package.
//
// Batch jobs cannot be scraped, so metrics are accumulated in a local
// registry and pushed to the gateway on Flush(). The pipeline calls
// Flush once at the end of a run; pushing per increment would hammer
// the gateway for no benefit.
package prompush

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Backend implements metrics.Backend against a Pushgateway.
type Backend struct {
	pusher   *push.Pusher
	registry *prometheus.Registry

	mu        sync.Mutex
	counters  map[string]prometheus.Counter
	durations map[string]prometheus.Histogram
}

// NewBackend creates a backend pushing under the given job name to
// gatewayURL (e.g. "http://localhost:9091").
func NewBackend(job, gatewayURL string) (*Backend, error) {
	if job == "" {
		return nil, fmt.Errorf("prompush: job name is required")
	}
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}

	registry := prometheus.NewRegistry()
	return &Backend{
		pusher:    push.New(gatewayURL, job).Gatherer(registry),
		registry:  registry,
		counters:  make(map[string]prometheus.Counter),
		durations: make(map[string]prometheus.Histogram),
	}, nil
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, v float64) {
	if name == "" || v <= 0 {
		return
	}

	b.mu.Lock()
	c, ok := b.counters[name]
	if !ok {
		c = prometheus.NewCounter(prometheus.CounterOpts{
			Name: promName(name) + "_total",
			Help: "sparkify pipeline counter " + name,
		})
		b.registry.MustRegister(c)
		b.counters[name] = c
	}
	b.mu.Unlock()

	c.Add(v)
}

// ObserveDuration implements metrics.Backend.
func (b *Backend) ObserveDuration(name string, d time.Duration) {
	if name == "" || d < 0 {
		return
	}

	b.mu.Lock()
	h, ok := b.durations[name]
	if !ok {
		h = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    promName(name) + "_seconds",
			Help:    "sparkify pipeline duration " + name,
			Buckets: prometheus.DefBuckets,
		})
		b.registry.MustRegister(h)
		b.durations[name] = h
	}
	b.mu.Unlock()

	h.Observe(d.Seconds())
}

// Flush pushes the current registry state to the gateway, replacing the
// previous push for this job.
func (b *Backend) Flush() error {
	return b.pusher.Push()
}

// promName converts a facade metric name into a valid, namespaced
// Prometheus metric name.
func promName(name string) string {
	name = strings.ReplaceAll(name, ".", "_")
	return "sparkify_etl_" + name
}
