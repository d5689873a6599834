// Package storage defines the backend-agnostic repository contract for
// the star schema and a factory registry for concrete backends.
package storage

import (
	"context"
	"fmt"
	"sync"

	"sparkify/internal/model"
)

// Config is the minimal configuration needed to construct a Repository.
//
// Kind must match a registered backend kind ("postgres", "sqlite",
// "mssql"). DSN is passed through to the backend factory; validation is
// backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository is the typed store interface for the five tables.
//
// Each method carries its table's conflict policy with it; callers never
// see SQL. Backends implement the semantics in their own idiomatic way
// (Postgres ON CONFLICT, SQLite OR IGNORE, MSSQL NOT EXISTS).
type Repository interface {
	// Close releases backend resources. Call once at shutdown.
	Close()

	// CreateTables issues create-if-not-exists DDL for all five tables.
	// Idempotent; safe to call on every run. No foreign keys are
	// declared; relationships are logical, not enforced by the store.
	CreateTables(ctx context.Context) error

	// DropTables issues drop-if-exists for all five tables. Used only
	// for full reset and tests.
	DropTables(ctx context.Context) error

	// UpsertSong inserts a song row; on song_id conflict the first
	// writer wins (DO NOTHING).
	UpsertSong(ctx context.Context, s model.Song) error

	// UpsertArtist inserts an artist row; on artist_id conflict only the
	// name is overwritten.
	UpsertArtist(ctx context.Context, a model.Artist) error

	// UpsertUser inserts a user row; on user_id conflict only the level
	// is overwritten.
	UpsertUser(ctx context.Context, u model.User) error

	// InsertTimeRows appends time rows. No conflict handling: the time
	// table tolerates duplicates. Rows are inserted as one batch.
	InsertTimeRows(ctx context.Context, rows []model.TimeRow) error

	// InsertSongplay inserts one fact row with DO NOTHING on conflict.
	// The only key is the surrogate one, so the clause is a safety net
	// rather than dedup (a known modeling gap kept for compatibility).
	InsertSongplay(ctx context.Context, p model.Songplay) error

	// FindSong resolves (title, artist name, duration) to exactly one
	// (song_id, artist_id) pair. Zero matches returns (nil, nil).
	// More than one match is treated as a miss too; callers surface
	// ambiguity through metrics, not errors.
	//
	// Duration is compared with plain equality against the stored float;
	// callers must supply the same numeric representation used at load
	// time.
	FindSong(ctx context.Context, title, artistName string, duration float64) (*model.SongRef, error)
}

// ---- backend factories ----

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend factory under a kind. Call from an init()
// in the backend package. Registering the same kind twice panics: fail
// fast instead of ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New constructs a Repository using the registered backend factory.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
