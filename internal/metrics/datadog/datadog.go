// Package datadog implements a Datadog backend for the internal/metrics
// package.
//
// NOTE ABOUT FLUSHING:
// Submitting only once at process exit makes dashboards awkward for long
// runs (a single spike rather than a time series). Therefore we:
//   - buffer metrics in-memory (fast, lock-protected)
//   - periodically Flush() on a ticker (default: once per minute)
//   - Flush() one final time on Close()
//
// Concurrency model:
//   - pipeline goroutines can call IncCounter/ObserveDuration at any time
//   - Flush snapshots+resets buffers under a mutex, then submits out-of-lock
//   - the flush loop calls Flush() periodically; Close() stops the loop
package datadog

import (
	"context"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to
	// "sparkify_etl".
	JobName string

	// Tags are extra Datadog tags (e.g. []string{"env:prod"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams. Production code never sets them; unit tests
	// use them to avoid real network submission and nondeterministic
	// clocks/tickers.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the minimal interface needed to submit metrics.
// The SDK exposes a concrete *datadogV2.MetricsApi; depending on this
// tiny private interface instead enables deterministic tests.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu sync.Mutex

	counts          map[string]float64
	durationSamples map[string][]float64
}

func resolveEnvTag() string {
	if v := strings.TrimSpace(os.Getenv("ENV")); v != "" {
		return "env:" + v
	}
	if v := strings.TrimSpace(os.Getenv("DD_ENV")); v != "" {
		return "env:" + v
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client and
// starts its periodic flush goroutine.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "sparkify_etl"
	}

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		cfg := dd.NewConfiguration()
		client := dd.NewAPIClient(cfg)
		submitter = datadogV2.NewMetricsApi(client)
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),

		baseTags: baseTags,

		now:       nowFn,
		newTicker: newTicker,

		counts:          make(map[string]float64),
		durationSamples: make(map[string][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush().
// Close once; a second call panics, matching usual Go Close semantics
// for process-lifetime backends.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend.
func (b *Backend) IncCounter(name string, v float64) {
	if name == "" || v <= 0 {
		return
	}
	b.mu.Lock()
	b.counts[name] += v
	b.mu.Unlock()
}

// ObserveDuration implements metrics.Backend.
func (b *Backend) ObserveDuration(name string, d time.Duration) {
	if name == "" || d < 0 {
		return
	}
	b.mu.Lock()
	b.durationSamples[name] = append(b.durationSamples[name], d.Seconds())
	b.mu.Unlock()
}

// snapshot separates collect+reset (under lock) from payload building and
// submission (out of lock).
type snapshot struct {
	counts          map[string]float64
	durationSamples map[string][]float64
}

func (s snapshot) isEmpty() bool {
	return len(s.counts) == 0 && len(s.durationSamples) == 0
}

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{
		counts:          b.counts,
		durationSamples: b.durationSamples,
	}
	b.counts = make(map[string]float64)
	b.durationSamples = make(map[string][]float64)
	return s
}

// Flush submits buffered metrics to Datadog and resets local buffers.
//
// Buffers are reset even if submission fails, to keep the pipeline fast
// and avoid blocking future writes; this is fire-and-forget telemetry,
// not at-least-once delivery.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	series := buildSeries(snap, b.baseTags, b.now().Unix())
	payload := datadogV2.MetricPayload{Series: series}

	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// buildSeries constructs the Datadog series for a snapshot at a fixed
// timestamp. It is pure (no locks, no network, no clocks) and unit
// tested; it centralizes naming/tagging, which is an operational
// contract.
func buildSeries(s snapshot, baseTags []string, nowUnix int64) []datadogV2.MetricSeries {
	count := func(metric string, value float64) datadogV2.MetricSeries {
		return datadogV2.MetricSeries{
			Metric: metric,
			Type:   datadogV2.METRICINTAKETYPE_COUNT.Ptr(),
			Points: []datadogV2.MetricPoint{
				{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
			},
			Tags: baseTags,
		}
	}
	gauge := func(metric string, value float64) datadogV2.MetricSeries {
		return datadogV2.MetricSeries{
			Metric: metric,
			Type:   datadogV2.METRICINTAKETYPE_GAUGE.Ptr(),
			Points: []datadogV2.MetricPoint{
				{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
			},
			Tags: baseTags,
		}
	}

	series := make([]datadogV2.MetricSeries, 0, len(s.counts)+3*len(s.durationSamples))

	// Deterministic order keeps payloads stable for tests and diffing.
	names := make([]string, 0, len(s.counts))
	for name := range s.counts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if v := s.counts[name]; v != 0 {
			series = append(series, count(metricName(name), v))
		}
	}

	durNames := make([]string, 0, len(s.durationSamples))
	for name := range s.durationSamples {
		durNames = append(durNames, name)
	}
	sort.Strings(durNames)
	for _, name := range durNames {
		samples := s.durationSamples[name]
		if len(samples) == 0 {
			continue
		}
		sorted := append([]float64(nil), samples...)
		sort.Float64s(sorted)

		sum := 0.0
		for _, v := range sorted {
			sum += v
		}
		base := metricName(name) + ".seconds"
		series = append(series,
			gauge(base+".avg", sum/float64(len(sorted))),
			gauge(base+".p95", percentile(sorted, 0.95)),
			gauge(base+".max", sorted[len(sorted)-1]),
		)
	}

	return series
}

// metricName namespaces a facade counter under the product prefix.
func metricName(name string) string {
	return "sparkify.etl." + name
}

// percentile returns the p-th percentile of sorted (nearest-rank).
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p*float64(len(sorted))+0.5) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// ParseTagsCSV turns "a:b, c:d" into []string{"a:b","c:d"}; empty items
// are dropped.
func ParseTagsCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
