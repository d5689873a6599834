// Package sqlite implements storage.Repository on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"sparkify/internal/metrics"
	"sparkify/internal/model"
	"sparkify/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key differences vs Postgres:
//   - No native timestamp type: start_time is stored as RFC3339Nano TEXT
//     for reliable round-trips and easy debugging.
//   - Do-nothing conflict policies use INSERT OR IGNORE; the
//     overwrite policies use the ON CONFLICT ... DO UPDATE upsert form.
//   - The surrogate key is INTEGER PRIMARY KEY (rowid alias).
type Repo struct {
	db *sql.DB
}

func init() {
	storage.Register("sqlite", New)
}

// New opens (or creates) the database file and validates connectivity.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, storage.Classify(err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storage.Classify(err)
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) CreateTables(ctx context.Context) error {
	for _, stmt := range createStatements() {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create tables: %w", storage.Classify(err))
		}
	}
	return nil
}

func (r *Repo) DropTables(ctx context.Context) error {
	for _, stmt := range dropStatements() {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("drop tables: %w", storage.Classify(err))
		}
	}
	return nil
}

func (r *Repo) UpsertSong(ctx context.Context, s model.Song) error {
	_, err := r.db.ExecContext(ctx, upsertSongSQL, s.ID, s.Title, s.ArtistID, s.Year, s.Duration)
	if err != nil {
		return fmt.Errorf("upsert song %s: %w", s.ID, storage.Classify(err))
	}
	return nil
}

func (r *Repo) UpsertArtist(ctx context.Context, a model.Artist) error {
	_, err := r.db.ExecContext(ctx, upsertArtistSQL, a.ID, a.Name, a.Location, a.Latitude, a.Longitude)
	if err != nil {
		return fmt.Errorf("upsert artist %s: %w", a.ID, storage.Classify(err))
	}
	return nil
}

func (r *Repo) UpsertUser(ctx context.Context, u model.User) error {
	_, err := r.db.ExecContext(ctx, upsertUserSQL, u.ID, u.FirstName, u.LastName, u.Gender, u.Level)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", u.ID, storage.Classify(err))
	}
	return nil
}

// InsertTimeRows appends time rows in chunks that stay well below
// SQLite's default 32766-variable statement limit (7 params per row).
func (r *Repo) InsertTimeRows(ctx context.Context, rows []model.TimeRow) error {
	const chunk = 250

	for start := 0; start < len(rows); start += chunk {
		end := start + chunk
		if end > len(rows) {
			end = len(rows)
		}
		query, args := buildInsertTimeSQL(rows[start:end])
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert time rows: %w", storage.Classify(err))
		}
	}
	return nil
}

func (r *Repo) InsertSongplay(ctx context.Context, p model.Songplay) error {
	_, err := r.db.ExecContext(ctx, insertSongplaySQL,
		formatTime(p.StartTime), p.UserID, p.Level, p.SongID, p.ArtistID,
		p.SessionID, p.Location, p.UserAgent)
	if err != nil {
		return fmt.Errorf("insert songplay: %w", storage.Classify(err))
	}
	return nil
}

func (r *Repo) FindSong(ctx context.Context, title, artistName string, duration float64) (*model.SongRef, error) {
	rows, err := r.db.QueryContext(ctx, findSongSQL, title, artistName, duration)
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

// formatTime renders timestamps the way every write path in this backend
// stores them.
func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
