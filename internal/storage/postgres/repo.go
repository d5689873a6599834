// Package postgres implements storage.Repository on pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"sparkify/internal/metrics"
	"sparkify/internal/model"
	"sparkify/internal/storage"
)

// Repo implements storage.Repository for Postgres.
//
// All conflict handling is pushed into the statements themselves
// (ON CONFLICT ... DO NOTHING / DO UPDATE), so every method is idempotent
// and reprocessing the same input is safe.
type Repo struct {
	pool *pgxpool.Pool
}

// New creates a Postgres-backed Repo and validates connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, storage.Classify(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.Classify(err)
	}
	return &Repo{pool: pool}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() { r.pool.Close() }

// CreateTables creates the five tables if they do not exist. Creation
// order does not matter: no foreign-key constraints are declared.
func (r *Repo) CreateTables(ctx context.Context) error {
	for _, stmt := range createStatements() {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", storage.Classify(err))
		}
	}
	return nil
}

// DropTables drops the five tables if they exist. Reset/testing only.
func (r *Repo) DropTables(ctx context.Context) error {
	for _, stmt := range dropStatements() {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("drop tables: %w", storage.Classify(err))
		}
	}
	return nil
}

func (r *Repo) UpsertSong(ctx context.Context, s model.Song) error {
	_, err := r.pool.Exec(ctx, upsertSongSQL, s.ID, s.Title, s.ArtistID, s.Year, s.Duration)
	if err != nil {
		return fmt.Errorf("upsert song %s: %w", s.ID, storage.Classify(err))
	}
	return nil
}

func (r *Repo) UpsertArtist(ctx context.Context, a model.Artist) error {
	_, err := r.pool.Exec(ctx, upsertArtistSQL, a.ID, a.Name, a.Location, a.Latitude, a.Longitude)
	if err != nil {
		return fmt.Errorf("upsert artist %s: %w", a.ID, storage.Classify(err))
	}
	return nil
}

func (r *Repo) UpsertUser(ctx context.Context, u model.User) error {
	_, err := r.pool.Exec(ctx, upsertUserSQL, u.ID, u.FirstName, u.LastName, u.Gender, u.Level)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", u.ID, storage.Classify(err))
	}
	return nil
}

// InsertTimeRows appends time rows as a single multi-values INSERT. The
// time table has no conflict rule; duplicates across files are expected
// and tolerated.
func (r *Repo) InsertTimeRows(ctx context.Context, rows []model.TimeRow) error {
	if len(rows) == 0 {
		return nil
	}
	sql, args := buildInsertTimeSQL(rows)
	if _, err := r.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert time rows: %w", storage.Classify(err))
	}
	return nil
}

func (r *Repo) InsertSongplay(ctx context.Context, p model.Songplay) error {
	_, err := r.pool.Exec(ctx, insertSongplaySQL,
		p.StartTime, p.UserID, p.Level, p.SongID, p.ArtistID,
		p.SessionID, p.Location, p.UserAgent)
	if err != nil {
		return fmt.Errorf("insert songplay: %w", storage.Classify(err))
	}
	return nil
}

// FindSong resolves a play event to its song/artist pair by exact match
// on title, artist name and duration.
//
// Zero or multiple matches both return nil: resolution is best-effort
// and an ambiguous lookup is treated as a miss, counted separately so
// duplicate catalog entries surface in the run metrics. The scan reads
// at most two rows, enough to detect ambiguity without draining a
// pathological result set.
func (r *Repo) FindSong(ctx context.Context, title, artistName string, duration float64) (*model.SongRef, error) {
	rows, err := r.pool.Query(ctx, findSongSQL, title, artistName, duration)
	if err != nil {
		return nil, fmt.Errorf("find song: %w", storage.Classify(err))
	}
	defer rows.Close()

	var (
		ref   model.SongRef
		count int
	)
	for rows.Next() {
		count++
		if count > 1 {
			metrics.IncCounter(metrics.CounterLookupAmbiguous, 1)
			return nil, nil
		}
		if err := rows.Scan(&ref.SongID, &ref.ArtistID); err != nil {
			return nil, fmt.Errorf("find song: scan: %w", storage.Classify(err))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find song: %w", storage.Classify(err))
	}
	if count != 1 {
		return nil, nil
	}
	return &ref, nil
}
