// Package model defines the typed rows of the star schema and the raw
// input record shapes the two NDJSON sources produce.
//
// These types live in a leaf package so that the pipeline, the transform
// stage and every storage backend can import them without circular deps.
package model

import "time"

// Song is one row of the songs dimension.
//
// Nullability mirrors the persisted schema: title and duration are
// required, year is optional. Upsert policy is first-writer-wins
// (ON CONFLICT DO NOTHING on song_id).
type Song struct {
	ID       string
	Title    string
	ArtistID string
	Year     *int
	Duration float64
}

// Artist is one row of the artists dimension.
//
// Only name is required. On key conflict the name is overwritten (later
// records are authoritative for the display name); the other fields are
// left untouched.
type Artist struct {
	ID        string
	Name      string
	Location  *string
	Latitude  *float64
	Longitude *float64
}

// User is one row of the users dimension.
//
// The identity fields are fixed; level is the mutable subscription tier
// and is the only column overwritten on conflict.
//
// User is deliberately a comparable struct: the transform stage dedupes
// user rows by full-row equality.
type User struct {
	ID        int
	FirstName string
	LastName  string
	Gender    string
	Level     string
}

// TimeRow is one row of the time dimension: a timestamp decomposed into
// calendar components (UTC). The table is append-only and tolerates
// duplicates; no uniqueness constraint exists.
//
// Weekday is Monday=0 .. Sunday=6.
type TimeRow struct {
	StartTime time.Time
	Hour      int
	Day       int
	Week      int
	Month     int
	Year      int
	Weekday   int
}

// Songplay is one row of the songplays fact table.
//
// SongID and ArtistID are nil when the play event did not resolve to a
// known song/artist pair; resolution is best-effort, not a foreign key.
type Songplay struct {
	StartTime time.Time
	UserID    int
	Level     string
	SongID    *string
	ArtistID  *string
	SessionID int
	Location  string
	UserAgent string
}

// SongRef is the result of resolving a play event against the songs and
// artists dimensions.
type SongRef struct {
	SongID   string
	ArtistID string
}
