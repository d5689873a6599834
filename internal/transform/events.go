// Package transform derives dimension and fact inputs from raw activity
// records. It is pure data manipulation: no I/O, no store access.
package transform

import (
	"time"

	"sparkify/internal/model"
)

// Batch is the derived output for one batch of activity records.
//
// TimeRows has one entry per play event, order preserved, duplicates
// allowed (the time table is append-only). Users is deduplicated by
// full-row equality in first-seen order; a user appearing with two
// different levels yields two rows, and applying them in order makes the
// last level win under the overwrite-on-conflict policy. Plays holds the
// play events that carry a usable user id and are therefore songplay
// candidates.
type Batch struct {
	TimeRows []model.TimeRow
	Users    []model.User
	Plays    []model.EventRecord

	// SkippedNoUser counts play events dropped from Users/Plays because
	// the user id was missing or null. They still contribute a TimeRow.
	SkippedNoUser int
}

// Events filters records to NextSong play events and derives time rows,
// deduplicated user rows and songplay candidates.
func Events(records []model.EventRecord) Batch {
	var b Batch
	seen := make(map[model.User]struct{})

	for _, r := range records {
		if !r.IsPlay() {
			continue
		}

		b.TimeRows = append(b.TimeRows, TimeComponents(r.TS))

		if !r.UserID.Valid() {
			// A null user id would violate the users/songplays NOT NULL
			// contract; skip the row-level outputs, keep the time row.
			b.SkippedNoUser++
			continue
		}

		u := model.User{
			ID:        r.UserID.Int(),
			FirstName: r.FirstName,
			LastName:  r.LastName,
			Gender:    r.Gender,
			Level:     r.Level,
		}
		if _, dup := seen[u]; !dup {
			seen[u] = struct{}{}
			b.Users = append(b.Users, u)
		}

		b.Plays = append(b.Plays, r)
	}

	return b
}

// TimeComponents decomposes an epoch-milliseconds timestamp into its UTC
// calendar components. Week is the ISO 8601 week number; Weekday is
// Monday=0 .. Sunday=6.
func TimeComponents(tsMillis int64) model.TimeRow {
	t := time.UnixMilli(tsMillis).UTC()
	_, week := t.ISOWeek()
	return model.TimeRow{
		StartTime: t,
		Hour:      t.Hour(),
		Day:       t.Day(),
		Week:      week,
		Month:     int(t.Month()),
		Year:      t.Year(),
		Weekday:   (int(t.Weekday()) + 6) % 7,
	}
}

// Songplay builds the fact row for a play event, with the resolved song
// and artist references or nil when resolution missed. The event must
// carry a valid user id.
func Songplay(r model.EventRecord, ref *model.SongRef) model.Songplay {
	sp := model.Songplay{
		StartTime: time.UnixMilli(r.TS).UTC(),
		UserID:    r.UserID.Int(),
		Level:     r.Level,
		SessionID: r.SessionID,
		Location:  r.Location,
		UserAgent: r.UserAgent,
	}
	if ref != nil {
		songID, artistID := ref.SongID, ref.ArtistID
		sp.SongID = &songID
		sp.ArtistID = &artistID
	}
	return sp
}
