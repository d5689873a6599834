package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sparkify/internal/config"
	"sparkify/internal/model"
	"sparkify/internal/storage"
)

// fakeRepo is an in-memory storage.Repository that records call order and
// answers FindSong from the rows loaded so far, so the two-phase protocol
// is observable end to end.
type fakeRepo struct {
	ops []string

	songs   []model.Song
	artists []model.Artist
	users   []model.User
	times   []model.TimeRow
	plays   []model.Songplay

	closed bool

	songErr error
	userErr error
	timeErr error
}

func (f *fakeRepo) Close() { f.closed = true }

func (f *fakeRepo) CreateTables(ctx context.Context) error {
	f.ops = append(f.ops, "create")
	return nil
}

func (f *fakeRepo) DropTables(ctx context.Context) error {
	f.ops = append(f.ops, "drop")
	return nil
}

func (f *fakeRepo) UpsertSong(ctx context.Context, s model.Song) error {
	if f.songErr != nil {
		return f.songErr
	}
	f.ops = append(f.ops, "song")
	f.songs = append(f.songs, s)
	return nil
}

func (f *fakeRepo) UpsertArtist(ctx context.Context, a model.Artist) error {
	f.ops = append(f.ops, "artist")
	f.artists = append(f.artists, a)
	return nil
}

func (f *fakeRepo) UpsertUser(ctx context.Context, u model.User) error {
	if f.userErr != nil {
		return f.userErr
	}
	f.ops = append(f.ops, "user")
	f.users = append(f.users, u)
	return nil
}

func (f *fakeRepo) InsertTimeRows(ctx context.Context, rows []model.TimeRow) error {
	if f.timeErr != nil {
		return f.timeErr
	}
	f.ops = append(f.ops, "time")
	f.times = append(f.times, rows...)
	return nil
}

func (f *fakeRepo) InsertSongplay(ctx context.Context, p model.Songplay) error {
	f.ops = append(f.ops, "songplay")
	f.plays = append(f.plays, p)
	return nil
}

func (f *fakeRepo) FindSong(ctx context.Context, title, artistName string, duration float64) (*model.SongRef, error) {
	var matches []model.SongRef
	for _, s := range f.songs {
		if s.Title != title || s.Duration != duration {
			continue
		}
		for _, a := range f.artists {
			if a.ID == s.ArtistID && a.Name == artistName {
				matches = append(matches, model.SongRef{SongID: s.ID, ArtistID: a.ID})
			}
		}
	}
	if len(matches) != 1 {
		return nil, nil
	}
	return &matches[0], nil
}

type testLogger struct{ msgs []string }

func (l *testLogger) Printf(format string, v ...any) {
	l.msgs = append(l.msgs, fmt.Sprintf(format, v...))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func testConfig(root string) config.Pipeline {
	return config.Pipeline{
		Job:     "test",
		Source:  config.Source{Songs: config.Tree{Path: filepath.Join(root, "song_data")}, Logs: config.Tree{Path: filepath.Join(root, "log_data")}},
		Storage: config.Storage{Kind: "fake", DSN: "unused"},
	}
}

func newRunner(repo *fakeRepo, logger Logger) *Runner {
	return &Runner{
		Logger: logger,
		NewRepository: func(ctx context.Context, cfg storage.Config, rc storage.RetryConfig) (storage.Repository, error) {
			return repo, nil
		},
	}
}

const songFixture = `{"num_songs":1,"artist_id":"AR5KOSW1187FB35FF4","artist_latitude":49.80388,"artist_longitude":15.47491,"artist_location":"Dubai UAE","artist_name":"Elena","song_id":"SOZCTXZ12AB0182364","title":"Setanta matins","duration":269.58,"year":0}`

func logFixture(userID, level string) string {
	return `{"artist":"Elena","auth":"Logged In","firstName":"Lily","gender":"F","itemInSession":0,"lastName":"Koch","length":269.58,"level":"` + level + `","location":"Chicago-Naperville-Elgin, IL-IN-WI","method":"PUT","page":"NextSong","registration":1541048010796,"sessionId":818,"song":"Setanta matins","status":200,"ts":1541440000000,"userAgent":"Mozilla/5.0","userId":` + userID + `}`
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "song_data/A/A/TRAAAAA.json", songFixture)
	writeFile(t, root, "log_data/2018/11/2018-11-05-events.json", logFixture(`"7"`, "free"))

	repo := &fakeRepo{}
	logger := &testLogger{}

	stats, err := newRunner(repo, logger).Run(context.Background(), testConfig(root))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if stats.Songs != 1 || stats.Artists != 1 || stats.Users != 1 || stats.TimeRows != 1 || stats.Songplays != 1 {
		t.Fatalf("stats=%+v, want one row per table", stats)
	}
	if stats.Matched != 1 || stats.Unmatched != 0 {
		t.Fatalf("stats=%+v, want the play resolved against the catalog", stats)
	}
	if stats.FilesProcessed != 2 || stats.FilesFailed != 0 {
		t.Fatalf("stats=%+v, want both files processed", stats)
	}

	if repo.songs[0].ID != "SOZCTXZ12AB0182364" || repo.songs[0].Year != nil {
		t.Fatalf("song=%+v, want zero year mapped to nil", repo.songs[0])
	}
	if u := repo.users[0]; u.ID != 7 || u.FirstName != "Lily" || u.Level != "free" {
		t.Fatalf("user=%+v, want user 7 free", u)
	}

	tr := repo.times[0]
	if tr.Hour != 17 || tr.Day != 5 || tr.Week != 45 || tr.Month != 11 || tr.Year != 2018 || tr.Weekday != 0 {
		t.Fatalf("time row=%+v, want decomposed 2018-11-05T17:46:40Z", tr)
	}

	sp := repo.plays[0]
	if sp.SongID == nil || *sp.SongID != "SOZCTXZ12AB0182364" {
		t.Fatalf("songplay SongID=%v, want resolved", sp.SongID)
	}
	if sp.ArtistID == nil || *sp.ArtistID != "AR5KOSW1187FB35FF4" {
		t.Fatalf("songplay ArtistID=%v, want resolved", sp.ArtistID)
	}
	if !sp.StartTime.Equal(time.UnixMilli(1541440000000).UTC()) || sp.UserID != 7 || sp.SessionID != 818 {
		t.Fatalf("songplay=%+v does not match the event", sp)
	}
}

// All catalog writes must land before the first log-derived write, no
// matter how the files interleave lexically.
func TestRun_SongPhaseCompletesBeforeLogPhase(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "song_data/A/TRAAAAA.json", songFixture)
	writeFile(t, root, "song_data/Z/TRZZZZZ.json", strings.ReplaceAll(songFixture, "SOZCTXZ12AB0182364", "SOOTHER12AB0182365"))
	writeFile(t, root, "log_data/a.json", logFixture(`"7"`, "free"))
	writeFile(t, root, "log_data/b.json", logFixture("8", "paid"))

	repo := &fakeRepo{}
	if _, err := newRunner(repo, nil).Run(context.Background(), testConfig(root)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	lastCatalog, firstLog := -1, len(repo.ops)
	for i, op := range repo.ops {
		switch op {
		case "song", "artist":
			lastCatalog = i
		case "time", "user", "songplay":
			if i < firstLog {
				firstLog = i
			}
		}
	}
	if lastCatalog == -1 || firstLog == len(repo.ops) {
		t.Fatalf("ops=%v, want both phases represented", repo.ops)
	}
	if lastCatalog > firstLog {
		t.Fatalf("ops=%v, catalog write after log write", repo.ops)
	}
}

func TestRun_MalformedSongRecordSkippedNotFatal(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	missing := `{"artist_id":"AR1","artist_name":"X","song_id":"S1","year":1999}`
	writeFile(t, root, "song_data/bad.json", missing+"\n"+songFixture)
	writeFile(t, root, "log_data/a.json", logFixture(`"7"`, "free"))

	repo := &fakeRepo{}
	logger := &testLogger{}

	stats, err := newRunner(repo, logger).Run(context.Background(), testConfig(root))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Malformed != 1 {
		t.Fatalf("Malformed=%d, want 1", stats.Malformed)
	}
	if stats.Songs != 1 {
		t.Fatalf("Songs=%d, want the valid record loaded", stats.Songs)
	}

	var logged bool
	for _, m := range logger.msgs {
		if strings.Contains(m, "skip record") && strings.Contains(m, "duration") {
			logged = true
		}
	}
	if !logged {
		t.Fatalf("logger msgs=%v, want a skip naming the missing field", logger.msgs)
	}
}

func TestRun_UndecodableFileContainedAndCounted(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "song_data/a.json", songFixture)
	writeFile(t, root, "log_data/a_bad.json", `{"page":"NextSong","ts":"not-a-number"`)
	writeFile(t, root, "log_data/b_good.json", logFixture(`"7"`, "free"))

	repo := &fakeRepo{}

	stats, err := newRunner(repo, nil).Run(context.Background(), testConfig(root))
	if err != nil {
		t.Fatalf("Run: %v (file errors must be contained)", err)
	}
	if stats.FilesFailed != 1 {
		t.Fatalf("FilesFailed=%d, want 1", stats.FilesFailed)
	}
	if stats.Songplays != 1 {
		t.Fatalf("Songplays=%d, want the good file still loaded", stats.Songplays)
	}
}

func TestRun_FailFastAbortsOnFirstFileError(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "song_data/a.json", songFixture)
	writeFile(t, root, "log_data/a_bad.json", `{"page":"NextSong","ts":"not-a-number"`)
	writeFile(t, root, "log_data/b_good.json", logFixture(`"7"`, "free"))

	cfg := testConfig(root)
	cfg.Runtime.FailFast = true

	repo := &fakeRepo{}
	_, err := newRunner(repo, nil).Run(context.Background(), cfg)
	if err == nil {
		t.Fatalf("Run: expected error with fail_fast")
	}
	if len(repo.plays) != 0 {
		t.Fatalf("plays=%v, want no songplays after abort", repo.plays)
	}
}

func TestRun_ConnectivityErrorIsFatal(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "song_data/a.json", songFixture)
	writeFile(t, root, "log_data/a.json", logFixture(`"7"`, "free"))
	writeFile(t, root, "log_data/b.json", logFixture("8", "paid"))

	repo := &fakeRepo{userErr: &storage.ConnectivityError{Err: errors.New("refused")}}

	_, err := newRunner(repo, nil).Run(context.Background(), testConfig(root))
	if err == nil {
		t.Fatalf("Run: expected fatal error")
	}
	if !storage.IsConnectivity(err) {
		t.Fatalf("err=%v, want connectivity classification preserved", err)
	}
}

func TestRun_ConstraintErrorIsFatal(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "song_data/a.json", songFixture)
	writeFile(t, root, "log_data/a.json", logFixture(`"7"`, "free"))

	repo := &fakeRepo{timeErr: &storage.ConstraintError{Err: errors.New("not null")}}

	_, err := newRunner(repo, nil).Run(context.Background(), testConfig(root))
	if !storage.IsConstraintViolation(err) {
		t.Fatalf("err=%v, want constraint classification preserved", err)
	}
}

func TestRun_NullUserKeepsTimeRow(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "song_data/a.json", songFixture)
	writeFile(t, root, "log_data/a.json", logFixture(`""`, "free")+"\n"+logFixture("null", "free"))

	repo := &fakeRepo{}

	stats, err := newRunner(repo, nil).Run(context.Background(), testConfig(root))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.TimeRows != 2 {
		t.Fatalf("TimeRows=%d, want 2 (anonymous plays still count for time)", stats.TimeRows)
	}
	if stats.Users != 0 || stats.Songplays != 0 {
		t.Fatalf("stats=%+v, want no user or fact rows", stats)
	}
	if stats.SkippedNoUser != 2 {
		t.Fatalf("SkippedNoUser=%d, want 2", stats.SkippedNoUser)
	}
}

func TestRun_UnmatchedPlayStillInsertsFactRow(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "song_data/a.json", songFixture)
	log := strings.ReplaceAll(logFixture(`"7"`, "free"), "Setanta matins", "Some Other Song")
	writeFile(t, root, "log_data/a.json", log)

	repo := &fakeRepo{}

	stats, err := newRunner(repo, nil).Run(context.Background(), testConfig(root))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if stats.Matched != 0 || stats.Unmatched != 1 {
		t.Fatalf("stats=%+v, want one unmatched play", stats)
	}
	sp := repo.plays[0]
	if sp.SongID != nil || sp.ArtistID != nil {
		t.Fatalf("songplay refs=%v/%v, want nil/nil on miss", sp.SongID, sp.ArtistID)
	}
}

// Re-running the same inputs must issue the same idempotent statements;
// the fake only checks the pipeline side (same calls, same rows).
func TestRun_ReprocessingIssuesSameWrites(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "song_data/a.json", songFixture)
	writeFile(t, root, "log_data/a.json", logFixture(`"7"`, "free"))

	repo := &fakeRepo{}
	runner := newRunner(repo, nil)

	first, err := runner.Run(context.Background(), testConfig(root))
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	firstOps := len(repo.ops)

	second, err := runner.Run(context.Background(), testConfig(root))
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if first.Songplays != second.Songplays || first.Users != second.Users {
		t.Fatalf("stats differ between runs: %+v vs %+v", first, second)
	}
	if len(repo.ops) != firstOps*2 {
		t.Fatalf("ops=%d after two runs, want %d", len(repo.ops), firstOps*2)
	}
}

func TestRun_ProgressCallback(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "song_data/a.json", songFixture)
	writeFile(t, root, "song_data/b.json", songFixture)
	writeFile(t, root, "log_data/a.json", logFixture(`"7"`, "free"))

	repo := &fakeRepo{}
	runner := newRunner(repo, nil)

	var calls []string
	runner.Progress = func(phase string, done, total int) {
		calls = append(calls, fmt.Sprintf("%s %d/%d", phase, done, total))
	}

	if _, err := runner.Run(context.Background(), testConfig(root)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"songs 1/2", "songs 2/2", "logs 1/1"}
	if len(calls) != len(want) {
		t.Fatalf("progress calls=%v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("progress calls=%v, want %v", calls, want)
		}
	}
}

func TestRun_ClosesRepository(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "song_data/a.json", songFixture)
	writeFile(t, root, "log_data/a.json", logFixture(`"7"`, "free"))

	repo := &fakeRepo{}
	if _, err := newRunner(repo, nil).Run(context.Background(), testConfig(root)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !repo.closed {
		t.Fatalf("repository not closed after run")
	}
}
