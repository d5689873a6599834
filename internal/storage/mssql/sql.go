package mssql

import (
	"fmt"
	"strings"

	"sparkify/internal/model"
)

const (
	createSongplaysSQL = `IF OBJECT_ID(N'songplays', N'U') IS NULL
CREATE TABLE songplays (
	songplay_id int IDENTITY(1,1) PRIMARY KEY,
	start_time datetime2 NOT NULL,
	user_id int NOT NULL,
	level nvarchar(50),
	song_id nvarchar(50),
	artist_id nvarchar(50),
	session_id int,
	location nvarchar(400),
	user_agent nvarchar(max)
);`

	createUsersSQL = `IF OBJECT_ID(N'users', N'U') IS NULL
CREATE TABLE users (
	user_id int PRIMARY KEY,
	first_name nvarchar(100),
	last_name nvarchar(100),
	gender nvarchar(10),
	level nvarchar(50)
);`

	createSongsSQL = `IF OBJECT_ID(N'songs', N'U') IS NULL
CREATE TABLE songs (
	song_id nvarchar(50) PRIMARY KEY,
	title nvarchar(400) NOT NULL,
	artist_id nvarchar(50),
	year int,
	duration float NOT NULL
);`

	createArtistsSQL = `IF OBJECT_ID(N'artists', N'U') IS NULL
CREATE TABLE artists (
	artist_id nvarchar(50) PRIMARY KEY,
	name nvarchar(400) NOT NULL,
	location nvarchar(400),
	latitude float,
	longitude float
);`

	createTimeSQL = `IF OBJECT_ID(N'time', N'U') IS NULL
CREATE TABLE [time] (
	start_time datetime2 NOT NULL,
	hour int,
	day int,
	week int,
	month int,
	year int,
	weekday int
);`

	// First-writer-wins: anti-join insert, no MERGE.
	upsertSongSQL = `INSERT INTO songs (song_id, title, artist_id, year, duration)
SELECT @p1, @p2, @p3, @p4, @p5
WHERE NOT EXISTS (SELECT 1 FROM songs WHERE song_id = @p1);`

	// Overwrite-name-on-conflict: UPDATE first, then insert the key if
	// it did not exist. Sequential loads make the window harmless.
	upsertArtistSQL = `UPDATE artists SET name = @p2 WHERE artist_id = @p1;
INSERT INTO artists (artist_id, name, location, latitude, longitude)
SELECT @p1, @p2, @p3, @p4, @p5
WHERE NOT EXISTS (SELECT 1 FROM artists WHERE artist_id = @p1);`

	upsertUserSQL = `UPDATE users SET level = @p5 WHERE user_id = @p1;
INSERT INTO users (user_id, first_name, last_name, gender, level)
SELECT @p1, @p2, @p3, @p4, @p5
WHERE NOT EXISTS (SELECT 1 FROM users WHERE user_id = @p1);`

	// The surrogate IDENTITY key never collides, so a plain INSERT gives
	// the same observable behavior as a do-nothing conflict clause.
	insertSongplaySQL = `INSERT INTO songplays
	(start_time, user_id, level, song_id, artist_id, session_id, location, user_agent)
VALUES (@p1, @p2, @p3, @p4, @p5, @p6, @p7, @p8);`

	findSongSQL = `SELECT TOP 2 songs.song_id, songs.artist_id
FROM songs
JOIN artists ON songs.artist_id = artists.artist_id
WHERE songs.title = @p1 AND artists.name = @p2 AND songs.duration = @p3;`
)

var tableNames = []string{"songplays", "users", "songs", "artists", "[time]"}

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
	b.WriteString("INSERT INTO [time] (start_time, hour, day, week, month, year, weekday) VALUES ")

	args := make([]any, 0, len(rows)*7)
	p := 1
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("(@p%d, @p%d, @p%d, @p%d, @p%d, @p%d, @p%d)", p, p+1, p+2, p+3, p+4, p+5, p+6))
		p += 7
		args = append(args, row.StartTime, row.Hour, row.Day, row.Week, row.Month, row.Year, row.Weekday)
	}
	b.WriteString(";")
	return b.String(), args
}
