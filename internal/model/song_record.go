package model

import (
	"fmt"
	"strings"
)

// SongRecord is the raw shape of one song-metadata NDJSON record.
//
// Required fields are pointers so that "absent" and "zero" stay
// distinguishable after decoding; Validate reports every missing one.
type SongRecord struct {
	SongID          string   `json:"song_id"`
	Title           string   `json:"title"`
	ArtistID        string   `json:"artist_id"`
	ArtistName      string   `json:"artist_name"`
	ArtistLocation  *string  `json:"artist_location"`
	ArtistLatitude  *float64 `json:"artist_latitude"`
	ArtistLongitude *float64 `json:"artist_longitude"`
	Year            int      `json:"year"`
	Duration        *float64 `json:"duration"`
}

// MalformedRecordError reports a record whose required fields are absent
// or unusable. It is a per-record error: callers skip the record and
// continue with the rest of the file.
type MalformedRecordError struct {
	Fields []string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record: missing or invalid fields: %s", strings.Join(e.Fields, ", "))
}

// Validate checks the fields required to produce Song and Artist rows:
// song_id, title, artist_id, artist_name and duration.
//
// It returns a *MalformedRecordError naming every problem field, or nil.
func (r *SongRecord) Validate() error {
	var missing []string
	if strings.TrimSpace(r.SongID) == "" {
		missing = append(missing, "song_id")
	}
	if strings.TrimSpace(r.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(r.ArtistID) == "" {
		missing = append(missing, "artist_id")
	}
	if strings.TrimSpace(r.ArtistName) == "" {
		missing = append(missing, "artist_name")
	}
	if r.Duration == nil {
		missing = append(missing, "duration")
	}
	if len(missing) > 0 {
		return &MalformedRecordError{Fields: missing}
	}
	return nil
}

// Song projects the songs-dimension row. The record must have passed
// Validate.
//
// A zero year means "unknown" in the source data and maps to NULL.
func (r *SongRecord) Song() Song {
	s := Song{
		ID:       r.SongID,
		Title:    r.Title,
		ArtistID: r.ArtistID,
		Duration: *r.Duration,
	}
	if r.Year != 0 {
		y := r.Year
		s.Year = &y
	}
	return s
}

// Artist projects the artists-dimension row. The record must have passed
// Validate.
func (r *SongRecord) Artist() Artist {
	return Artist{
		ID:        r.ArtistID,
		Name:      r.ArtistName,
		Location:  r.ArtistLocation,
		Latitude:  r.ArtistLatitude,
		Longitude: r.ArtistLongitude,
	}
}
