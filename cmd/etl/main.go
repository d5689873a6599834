package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"

	"sparkify/internal/config"
	"sparkify/internal/metrics"
	"sparkify/internal/metrics/datadog"
	"sparkify/internal/metrics/prompush"
	"sparkify/internal/pipeline"

	// register all backends with the storage factory.
	// config specifies which to use but we build in support for all of them.
	_ "sparkify/internal/storage/all"
)

// main is the entry point for the batch loader. It loads the pipeline
// config, optionally initializes a metrics backend, and executes the
// two-phase run.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/sample.json", "pipeline config JSON path")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (pushgateway, datadog, none)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")
	flag.Parse()

	p, err := config.Load(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasError(issues) {
		log.Printf("configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	shutdownMetrics := setupMetrics(metricsBackendFlg, pushGatewayURLFlg, p, *verbose)
	defer shutdownMetrics()

	ctx := context.Background()
	start := time.Now()

	if *verbose {
		log.Printf("pipeline: songs=%s logs=%s storage=%s",
			p.Source.Songs.Path, p.Source.Logs.Path, p.Storage.Kind)
	}

	runner := &pipeline.Runner{
		Logger:   verboseLogger(*verbose),
		Progress: newProgress(),
	}

	stats, err := runner.Run(ctx, p)
	if err != nil {
		fail(shutdownMetrics, err)
	}

	printSummary(stats, time.Since(start))
}

var exit = os.Exit

// fail logs the run error, shuts the metrics backend down, and exits
// nonzero. os.Exit skips deferred calls, so the shutdown hook has to
// run here or a failed run would lose its final metrics flush.
func fail(shutdown func(), err error) {
	log.Printf("%v", err)
	shutdown()
	exit(1)
}

// setupMetrics installs the requested metrics backend and returns its
// shutdown func. Selection order is flag, then METRICS_BACKEND env, then
// disabled. Failures fall back to the nop backend rather than aborting
// the load.
func setupMetrics(backendName, gwURL string, p config.Pipeline, verbose bool) func() {
	flushOnExit := func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}

	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}

	jobName := p.Job
	if jobName == "" {
		jobName = "sparkify_etl"
	}

	switch backendName {
	case "pushgateway":
		if gwURL == "" {
			gwURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gwURL == "" {
			gwURL = "http://localhost:9091"
		}

		b, err := prompush.NewBackend(jobName, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return flushOnExit
		}
		log.Printf("metrics: backend=%v url=%v job_name=%v", backendName, gwURL, jobName)
		metrics.SetBackend(b)
		return flushOnExit

	case "datadog":
		// The Datadog backend buffers and submits periodically, so long
		// runs produce an actual time series instead of a single spike
		// at the end. metrics.Flush at shutdown performs the final
		// submission.
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))

		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName:    jobName,
			Tags:       extraTags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return flushOnExit
		}
		log.Printf("metrics: backend=%v job_name=%v tags=%v", backendName, jobName, extraTags)
		metrics.SetBackend(b)

		// Close stops the periodic flush loop and performs the final
		// submission.
		return func() {
			if err := b.Close(); err != nil {
				log.Printf("metrics: datadog close/flush error: %v", err)
			}
		}

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	return flushOnExit
}

// newProgress returns a per-phase progress callback driving one bar per
// phase, or nil when stderr is not a terminal.
func newProgress() func(phase string, done, total int) {
	if fi, err := os.Stderr.Stat(); err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		return nil
	}

	var (
		bar      *progressbar.ProgressBar
		barPhase string
	)
	return func(phase string, done, total int) {
		if bar == nil || phase != barPhase {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription(phase),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionClearOnFinish(),
			)
			barPhase = phase
		}
		_ = bar.Set(done)
	}
}

func printSummary(s pipeline.Stats, elapsed time.Duration) {
	fmt.Printf("processed %s of %s files in %s\n",
		humanize.Comma(int64(s.FilesProcessed)),
		humanize.Comma(int64(s.SongFiles+s.LogFiles)),
		elapsed.Truncate(time.Millisecond))
	fmt.Printf("  songs=%s artists=%s users=%s time_rows=%s songplays=%s\n",
		humanize.Comma(int64(s.Songs)), humanize.Comma(int64(s.Artists)),
		humanize.Comma(int64(s.Users)), humanize.Comma(int64(s.TimeRows)),
		humanize.Comma(int64(s.Songplays)))
	fmt.Printf("  matched=%s unmatched=%s malformed=%s skipped_no_user=%s failed_files=%s\n",
		humanize.Comma(int64(s.Matched)), humanize.Comma(int64(s.Unmatched)),
		humanize.Comma(int64(s.Malformed)), humanize.Comma(int64(s.SkippedNoUser)),
		humanize.Comma(int64(s.FilesFailed)))
}

func verboseLogger(verbose bool) pipeline.Logger {
	if !verbose {
		return nil
	}
	return log.New(os.Stderr, "", log.LstdFlags)
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
