// Package metrics is a tiny pluggable metrics facade.
//
// The pipeline depends only on this package; concrete backends (Datadog,
// Prometheus Pushgateway) live in subpackages and are selected at startup.
// The default backend is a nop, so instrumentation calls are always safe.
package metrics

import (
	"sync"
	"time"
)

// Backend is the minimal surface the pipeline needs.
//
// Implementations must be safe for concurrent use; Flush submits whatever
// has been buffered so far.
type Backend interface {
	IncCounter(name string, v float64)
	ObserveDuration(name string, d time.Duration)
	Flush() error
}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs the process-wide metrics backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nopBackend{}
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds v to the named counter.
func IncCounter(name string, v float64) { current().IncCounter(name, v) }

// ObserveDuration records one duration sample for the named series.
func ObserveDuration(name string, d time.Duration) { current().ObserveDuration(name, d) }

// Flush submits buffered metrics through the active backend.
func Flush() error { return current().Flush() }

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64) {}
func (nopBackend) ObserveDuration(string, time.Duration) {}
func (nopBackend) Flush() error { return nil }

// Counter names emitted by the pipeline. Centralized so backends and
// dashboards agree on spelling.
const (
	CounterFilesDiscovered   = "files_discovered"
	CounterFilesProcessed    = "files_processed"
	CounterFilesFailed       = "files_failed"
	CounterRecordsMalformed  = "records_malformed"
	CounterEventsSkippedUser = "events_skipped_no_user"
	CounterSongplaysMatched  = "songplays_matched"
	CounterSongplaysMissed   = "songplays_unmatched"
	CounterLookupAmbiguous   = "songplays_lookup_ambiguous"
)
