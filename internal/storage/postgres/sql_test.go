package postgres

import (
	"strings"
	"testing"
	"time"

	"sparkify/internal/model"
)

func TestCreateStatements_CoverAllTables(t *testing.T) {
	t.Parallel()

	stmts := createStatements()
	if len(stmts) != 5 {
		t.Fatalf("len(createStatements())=%d, want 5", len(stmts))
	}
	joined := strings.Join(stmts, "\n")
	for _, table := range tableNames {
		if !strings.Contains(joined, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("create statements missing table %q", table)
		}
	}
	if !strings.Contains(joined, "songplay_id serial PRIMARY KEY") {
		t.Fatalf("songplays DDL missing serial surrogate key:\n%s", joined)
	}
}

func TestDropStatements_IdempotentAndComplete(t *testing.T) {
	t.Parallel()

	stmts := dropStatements()
	if len(stmts) != len(tableNames) {
		t.Fatalf("len(dropStatements())=%d, want %d", len(stmts), len(tableNames))
	}
	for i, name := range tableNames {
		want := "DROP TABLE IF EXISTS " + name + ";"
		if stmts[i] != want {
			t.Fatalf("dropStatements()[%d]=%q, want %q", i, stmts[i], want)
		}
	}
}

func TestConflictClauses(t *testing.T) {
	t.Parallel()

	if !strings.Contains(upsertSongSQL, "ON CONFLICT (song_id) DO NOTHING") {
		t.Fatalf("songs upsert must keep the first writer:\n%s", upsertSongSQL)
	}
	if !strings.Contains(upsertArtistSQL, "DO UPDATE SET name = EXCLUDED.name") {
		t.Fatalf("artists upsert must overwrite only the name:\n%s", upsertArtistSQL)
	}
	if !strings.Contains(upsertUserSQL, "DO UPDATE SET level = EXCLUDED.level") {
		t.Fatalf("users upsert must overwrite only the level:\n%s", upsertUserSQL)
	}
	if !strings.Contains(insertSongplaySQL, "ON CONFLICT DO NOTHING") {
		t.Fatalf("songplays insert missing conflict safety net:\n%s", insertSongplaySQL)
	}
}

func TestFindSongSQL_JoinsAndBoundsTheScan(t *testing.T) {
	t.Parallel()

	for _, want := range []string{
		"JOIN artists ON songs.artist_id = artists.artist_id",
		"songs.title = $1",
		"artists.name = $2",
		"songs.duration = $3",
		"LIMIT 2",
	} {
		if !strings.Contains(findSongSQL, want) {
			t.Fatalf("findSongSQL missing %q:\n%s", want, findSongSQL)
		}
	}
}

func TestBuildInsertTimeSQL(t *testing.T) {
	t.Parallel()

	rows := []model.TimeRow{
		{StartTime: time.Date(2018, 11, 5, 17, 46, 40, 0, time.UTC), Hour: 17, Day: 5, Week: 45, Month: 11, Year: 2018, Weekday: 0},
		{StartTime: time.Date(2018, 11, 11, 2, 33, 56, 0, time.UTC), Hour: 2, Day: 11, Week: 45, Month: 11, Year: 2018, Weekday: 6},
	}

	query, args := buildInsertTimeSQL(rows)

	if !strings.HasPrefix(query, "INSERT INTO time (start_time, hour, day, week, month, year, weekday) VALUES ") {
		t.Fatalf("query prefix wrong:\n%s", query)
	}
	if !strings.Contains(query, "($1, $2, $3, $4, $5, $6, $7), ($8, $9, $10, $11, $12, $13, $14)") {
		t.Fatalf("placeholder numbering wrong:\n%s", query)
	}
	if len(args) != 14 {
		t.Fatalf("len(args)=%d, want 14", len(args))
	}
	if args[0] != rows[0].StartTime || args[7] != rows[1].StartTime {
		t.Fatalf("args do not line up with rows: %v", args)
	}
	if args[6] != 0 || args[13] != 6 {
		t.Fatalf("weekday args=%v/%v, want 0/6", args[6], args[13])
	}
}
