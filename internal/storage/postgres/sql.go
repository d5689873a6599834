package postgres

import (
	"fmt"
	"strings"

	"sparkify/internal/model"
)

// DDL and statements live here as pure data/builders so they can be unit
// tested without a database.

const (
	createSongplaysSQL = `CREATE TABLE IF NOT EXISTS songplays (
	songplay_id serial PRIMARY KEY,
	start_time timestamp NOT NULL,
	user_id int NOT NULL,
	level varchar,
	song_id varchar,
	artist_id varchar,
	session_id int,
	location varchar,
	user_agent varchar
);`

	createUsersSQL = `CREATE TABLE IF NOT EXISTS users (
	user_id int PRIMARY KEY,
	first_name varchar,
	last_name varchar,
	gender varchar,
	level varchar
);`

	createSongsSQL = `CREATE TABLE IF NOT EXISTS songs (
	song_id varchar PRIMARY KEY,
	title varchar NOT NULL,
	artist_id varchar,
	year int,
	duration float NOT NULL
);`

	createArtistsSQL = `CREATE TABLE IF NOT EXISTS artists (
	artist_id varchar PRIMARY KEY,
	name varchar NOT NULL,
	location varchar,
	latitude float,
	longitude float
);`

	createTimeSQL = `CREATE TABLE IF NOT EXISTS time (
	start_time timestamp NOT NULL,
	hour int,
	day int,
	week int,
	month int,
	year int,
	weekday int
);`

	upsertSongSQL = `INSERT INTO songs (song_id, title, artist_id, year, duration)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (song_id) DO NOTHING;`

	upsertArtistSQL = `INSERT INTO artists (artist_id, name, location, latitude, longitude)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (artist_id) DO UPDATE SET name = EXCLUDED.name;`

	upsertUserSQL = `INSERT INTO users (user_id, first_name, last_name, gender, level)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id) DO UPDATE SET level = EXCLUDED.level;`

	// The only key on songplays is the surrogate one, so this clause is
	// a safety net rather than real dedup. Kept for contract parity.
	insertSongplaySQL = `INSERT INTO songplays
	(start_time, user_id, level, song_id, artist_id, session_id, location, user_agent)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT DO NOTHING;`

	// LIMIT 2: one row past the expected match is enough to detect
	// ambiguity.
	findSongSQL = `SELECT songs.song_id, songs.artist_id
FROM songs
JOIN artists ON songs.artist_id = artists.artist_id
WHERE songs.title = $1 AND artists.name = $2 AND songs.duration = $3
LIMIT 2;`
)

// tableNames is the drop order; creation order is irrelevant because no
// FK constraints are declared.
var tableNames = []string{"songplays", "users", "songs", "artists", "time"}

func createStatements() []string {
	return []string{
		createSongplaysSQL,
		createUsersSQL,
		createSongsSQL,
		createArtistsSQL,
		createTimeSQL,
	}
}

func dropStatements() []string {
	out := make([]string, 0, len(tableNames))
	for _, name := range tableNames {
		out = append(out, fmt.Sprintf(`DROP TABLE IF EXISTS %s;`, name))
	}
	return out
}

// buildInsertTimeSQL constructs one multi-values INSERT and its args for
// a batch of time rows.
func buildInsertTimeSQL(rows []model.TimeRow) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO time (start_time, hour, day, week, month, year, weekday) VALUES ")

	args := make([]any, 0, len(rows)*7)
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d)", p, p+1, p+2, p+3, p+4, p+5, p+6))
		p += 7
		args = append(args, row.StartTime, row.Hour, row.Day, row.Week, row.Month, row.Year, row.Weekday)
	}
	b.WriteString(";")
	return b.String(), args
}
