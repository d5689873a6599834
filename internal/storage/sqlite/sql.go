package sqlite

import (
	"fmt"
	"strings"

	"sparkify/internal/model"
)

const (
	createSongplaysSQL = `CREATE TABLE IF NOT EXISTS songplays (
	songplay_id INTEGER PRIMARY KEY,
	start_time TEXT NOT NULL,
	user_id INTEGER NOT NULL,
	level TEXT,
	song_id TEXT,
	artist_id TEXT,
	session_id INTEGER,
	location TEXT,
	user_agent TEXT
);`

	createUsersSQL = `CREATE TABLE IF NOT EXISTS users (
	user_id INTEGER PRIMARY KEY,
	first_name TEXT,
	last_name TEXT,
	gender TEXT,
	level TEXT
);`

	createSongsSQL = `CREATE TABLE IF NOT EXISTS songs (
	song_id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	artist_id TEXT,
	year INTEGER,
	duration REAL NOT NULL
);`

	createArtistsSQL = `CREATE TABLE IF NOT EXISTS artists (
	artist_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	location TEXT,
	latitude REAL,
	longitude REAL
);`

	createTimeSQL = `CREATE TABLE IF NOT EXISTS time (
	start_time TEXT NOT NULL,
	hour INTEGER,
	day INTEGER,
	week INTEGER,
	month INTEGER,
	year INTEGER,
	weekday INTEGER
);`

	// OR IGNORE relies on the song_id primary key.
	upsertSongSQL = `INSERT OR IGNORE INTO songs (song_id, title, artist_id, year, duration)
VALUES (?, ?, ?, ?, ?);`

	upsertArtistSQL = `INSERT INTO artists (artist_id, name, location, latitude, longitude)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (artist_id) DO UPDATE SET name = excluded.name;`

	upsertUserSQL = `INSERT INTO users (user_id, first_name, last_name, gender, level)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET level = excluded.level;`

	// songplays has no natural key; OR IGNORE mirrors the do-nothing
	// policy against the surrogate key only.
	insertSongplaySQL = `INSERT OR IGNORE INTO songplays
	(start_time, user_id, level, song_id, artist_id, session_id, location, user_agent)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);`

	findSongSQL = `SELECT songs.song_id, songs.artist_id
FROM songs
JOIN artists ON songs.artist_id = artists.artist_id
WHERE songs.title = ? AND artists.name = ? AND songs.duration = ?
LIMIT 2;`
)

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

func buildInsertTimeSQL(rows []model.TimeRow) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO time (start_time, hour, day, week, month, year, weekday) VALUES ")

	args := make([]any, 0, len(rows)*7)
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, formatTime(row.StartTime), row.Hour, row.Day, row.Week, row.Month, row.Year, row.Weekday)
	}
	b.WriteString(";")
	return b.String(), args
}
