// Package pipeline orchestrates the two-phase batch load: song metadata
// first, then activity logs against the populated catalog.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"sparkify/internal/config"
	"sparkify/internal/metrics"
	"sparkify/internal/model"
	"sparkify/internal/parser/jsonl"
	"sparkify/internal/storage"
	"sparkify/internal/transform"
)

// Logger is the minimal logging interface used by the runner.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// RepoFactory is a seam for providing the storage repository.
//
// When to use:
//   - Unit tests: inject an in-memory fake without driver registration.
//   - Production: leave nil, the runner connects via storage.Connect
//     with the configured retry policy.
type RepoFactory func(ctx context.Context, cfg storage.Config, rc storage.RetryConfig) (storage.Repository, error)

// Runner executes the batch load.
//
// Phase order is a correctness requirement, not a preference: songplay
// resolution in the log phase joins against the song and artist rows
// written by the song phase, so the song phase must complete fully
// before the first log file is read.
type Runner struct {
	Logger Logger

	// NewRepository is an optional seam to make Runner unit-testable.
	// When nil, storage.Connect is used.
	NewRepository RepoFactory

	// Progress, when non-nil, is invoked after each file of a phase
	// with the number of files done so far and the phase total.
	Progress func(phase string, done, total int)
}

// Stats summarizes one run. Counts are totals across both phases.
type Stats struct {
	SongFiles int
	LogFiles  int

	FilesProcessed int
	FilesFailed    int

	Songs     int
	Artists   int
	Users     int
	TimeRows  int
	Songplays int

	Matched   int
	Unmatched int

	Malformed     int
	SkippedNoUser int
}

// Run executes the pipeline: ensure schema, load songs, then load logs.
//
// Per-file failures are logged and counted but do not stop the run,
// unless the error is a connectivity or constraint violation (those
// indicate every subsequent write would fail too) or FailFast is set.
func (r *Runner) Run(ctx context.Context, cfg config.Pipeline) (Stats, error) {
	var stats Stats
	logf := r.logger()

	repo, err := r.connect(ctx, cfg)
	if err != nil {
		return stats, fmt.Errorf("pipeline: connect storage: %w", err)
	}
	defer repo.Close()

	ddlStart := time.Now()
	if err := repo.CreateTables(ctx); err != nil {
		return stats, fmt.Errorf("pipeline: ensure tables: %w", err)
	}
	logf("stage=ddl ok duration=%s", durMS(ddlStart))

	songsStart := time.Now()
	if err := r.runSongs(ctx, cfg, repo, &stats, logf); err != nil {
		return stats, err
	}
	metrics.ObserveDuration("phase_songs", time.Since(songsStart))
	logf("stage=phase_songs ok files=%d songs=%d artists=%d duration=%s",
		stats.SongFiles, stats.Songs, stats.Artists, durMS(songsStart))

	logsStart := time.Now()
	if err := r.runLogs(ctx, cfg, repo, &stats, logf); err != nil {
		return stats, err
	}
	metrics.ObserveDuration("phase_logs", time.Since(logsStart))
	logf("stage=phase_logs ok files=%d users=%d time_rows=%d songplays=%d matched=%d unmatched=%d duration=%s",
		stats.LogFiles, stats.Users, stats.TimeRows, stats.Songplays,
		stats.Matched, stats.Unmatched, durMS(logsStart))

	return stats, nil
}

func (r *Runner) connect(ctx context.Context, cfg config.Pipeline) (storage.Repository, error) {
	sc := storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.ExpandedDSN()}
	rc := retryConfig(cfg.Runtime.Retry)

	if r.NewRepository != nil {
		return r.NewRepository(ctx, sc, rc)
	}
	return storage.Connect(ctx, sc, rc)
}

func retryConfig(r config.Retry) storage.RetryConfig {
	if r.MaxAttempts <= 0 {
		return storage.DefaultRetryConfig()
	}
	return storage.RetryConfig{
		MaxAttempts: r.MaxAttempts,
		InitialWait: time.Duration(r.InitialWaitMS) * time.Millisecond,
		MaxWait:     time.Duration(r.MaxWaitMS) * time.Millisecond,
	}
}

// runSongs loads song metadata files: one song and one artist row per
// valid record. Malformed records are skipped per record, not per file.
func (r *Runner) runSongs(ctx context.Context, cfg config.Pipeline, repo storage.Repository, stats *Stats, logf func(string, ...any)) error {
	files, err := discover(cfg.Source.Songs.Path, cfg.Runtime.FilePattern)
	if err != nil {
		return fmt.Errorf("pipeline: discover song files: %w", err)
	}
	stats.SongFiles = len(files)
	metrics.IncCounter(metrics.CounterFilesDiscovered, float64(len(files)))
	logf("stage=discover source=songs root=%s files=%d", cfg.Source.Songs.Path, len(files))

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.loadSongFile(ctx, repo, path, stats, logf); err != nil {
			if fatal := r.containFileError(cfg, path, err, stats, logf); fatal != nil {
				return fatal
			}
		} else {
			stats.FilesProcessed++
			metrics.IncCounter(metrics.CounterFilesProcessed, 1)
		}
		logf("stage=phase_songs file=%d/%d path=%s", i+1, len(files), path)
		r.progress("songs", i+1, len(files))
	}
	return nil
}

func (r *Runner) loadSongFile(ctx context.Context, repo storage.Repository, path string, stats *Stats, logf func(string, ...any)) error {
	records, err := decodeFile[model.SongRecord](ctx, path, stats, logf)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			stats.Malformed++
			metrics.IncCounter(metrics.CounterRecordsMalformed, 1)
			logf("stage=phase_songs path=%s skip record: %v", path, err)
			continue
		}
		if err := repo.UpsertSong(ctx, rec.Song()); err != nil {
			return err
		}
		stats.Songs++
		if err := repo.UpsertArtist(ctx, rec.Artist()); err != nil {
			return err
		}
		stats.Artists++
	}
	return nil
}

// runLogs loads activity log files: time rows for every play, user rows
// in first-seen order so the last level wins, and one fact row per play
// with the best-effort song/artist resolution.
func (r *Runner) runLogs(ctx context.Context, cfg config.Pipeline, repo storage.Repository, stats *Stats, logf func(string, ...any)) error {
	files, err := discover(cfg.Source.Logs.Path, cfg.Runtime.FilePattern)
	if err != nil {
		return fmt.Errorf("pipeline: discover log files: %w", err)
	}
	stats.LogFiles = len(files)
	metrics.IncCounter(metrics.CounterFilesDiscovered, float64(len(files)))
	logf("stage=discover source=logs root=%s files=%d", cfg.Source.Logs.Path, len(files))

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.loadLogFile(ctx, repo, path, stats, logf); err != nil {
			if fatal := r.containFileError(cfg, path, err, stats, logf); fatal != nil {
				return fatal
			}
		} else {
			stats.FilesProcessed++
			metrics.IncCounter(metrics.CounterFilesProcessed, 1)
		}
		logf("stage=phase_logs file=%d/%d path=%s", i+1, len(files), path)
		r.progress("logs", i+1, len(files))
	}
	return nil
}

func (r *Runner) loadLogFile(ctx context.Context, repo storage.Repository, path string, stats *Stats, logf func(string, ...any)) error {
	records, err := decodeFile[model.EventRecord](ctx, path, stats, logf)
	if err != nil {
		return err
	}

	batch := transform.Events(records)
	stats.SkippedNoUser += batch.SkippedNoUser
	metrics.IncCounter(metrics.CounterEventsSkippedUser, float64(batch.SkippedNoUser))

	if err := repo.InsertTimeRows(ctx, batch.TimeRows); err != nil {
		return err
	}
	stats.TimeRows += len(batch.TimeRows)

	// In-order application makes the last observed level win under the
	// overwrite-on-conflict policy.
	for _, u := range batch.Users {
		if err := repo.UpsertUser(ctx, u); err != nil {
			return err
		}
		stats.Users++
	}

	for _, play := range batch.Plays {
		ref, err := repo.FindSong(ctx, play.Song, play.Artist, play.Length)
		if err != nil {
			return err
		}
		if ref != nil {
			stats.Matched++
			metrics.IncCounter(metrics.CounterSongplaysMatched, 1)
		} else {
			stats.Unmatched++
			metrics.IncCounter(metrics.CounterSongplaysMissed, 1)
		}

		if err := repo.InsertSongplay(ctx, transform.Songplay(play, ref)); err != nil {
			return err
		}
		stats.Songplays++
	}
	return nil
}

// containFileError decides whether a file failure stops the run.
// Connectivity and constraint errors are fatal regardless of FailFast:
// reprocessing further files would only repeat the same failure.
func (r *Runner) containFileError(cfg config.Pipeline, path string, err error, stats *Stats, logf func(string, ...any)) error {
	if storage.IsConnectivity(err) || storage.IsConstraintViolation(err) {
		return fmt.Errorf("pipeline: %s: %w", path, err)
	}

	stats.FilesFailed++
	metrics.IncCounter(metrics.CounterFilesFailed, 1)
	logf("stage=file_error path=%s err=%v", path, err)

	if cfg.Runtime.FailFast {
		return fmt.Errorf("pipeline: %s: %w", path, err)
	}
	return nil
}

func decodeFile[T any](ctx context.Context, path string, stats *Stats, logf func(string, ...any)) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return jsonl.DecodeRecords[T](ctx, f, func(record int, err error) {
		stats.Malformed++
		metrics.IncCounter(metrics.CounterRecordsMalformed, 1)
		logf("stage=decode path=%s record=%d err=%v", path, record, err)
	})
}

// discover walks root recursively and returns the matching files in
// lexical order. Pattern defaults to *.json.
func discover(root, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*.json"
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ok, err := filepath.Match(pattern, d.Name())
		if err != nil {
			return err
		}
		if ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (r *Runner) logger() func(format string, v ...any) {
	if r.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return r.Logger.Printf
}

func (r *Runner) progress(phase string, done, total int) {
	if r.Progress != nil {
		r.Progress(phase, done, total)
	}
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
