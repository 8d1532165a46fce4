package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

var (
	oneMinute = time.Minute
	oneDay    = 24 * time.Hour
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) (*SQLiteStore, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2013, 9, 21, 1, 2, 3, 0, time.UTC)}
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func addSnapshot(t *testing.T, s *SQLiteStore, ts time.Time, hostname, title string) {
	t.Helper()
	if err := s.Add(context.Background(), ts, hostname, title, []byte("hello world!")); err != nil {
		t.Fatalf("add %s %s %s: %v", ts, hostname, title, err)
	}
}

func countSnapshots(t *testing.T, s *SQLiteStore) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM snapshot`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestAddAndFetch(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	now := clock.Now()

	addSnapshot(t, s, now, "myhost", "some stuff")

	got, err := s.GetContents(ctx, now, "myhost", "some stuff")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "hello world!" {
		t.Errorf("expected 'hello world!', got %q", got)
	}
}

func TestFetchByTruncatedMinute(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	ts := time.Date(2013, 9, 21, 12, 3, 45, 0, time.UTC)

	addSnapshot(t, s, ts, "myhost", "some stuff")

	got, err := s.GetContents(ctx, ts.Truncate(time.Minute), "myhost", "some stuff")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "hello world!" {
		t.Errorf("expected 'hello world!', got %q", got)
	}
}

func TestGetContentsNotFound(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	now := clock.Now()

	addSnapshot(t, s, now, "myhost", "some stuff")

	cases := []struct {
		name     string
		ts       time.Time
		hostname string
		title    string
	}{
		{"other host", now, "otherhost", "some stuff"},
		{"other title", now, "myhost", "other stuff"},
		{"window ends before", now.Add(-Window), "myhost", "some stuff"},
		{"window starts after", now.Add(time.Second), "myhost", "some stuff"},
	}
	for _, c := range cases {
		_, err := s.GetContents(ctx, c.ts, c.hostname, c.title)
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			t.Errorf("%s: expected NotFoundError, got %v", c.name, err)
		}
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: expected errors.Is ErrNotFound", c.name)
		}
	}
}

func TestGetContentsAmbiguous(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	minute := time.Date(2013, 9, 21, 12, 3, 0, 0, time.UTC)

	addSnapshot(t, s, minute.Add(1*time.Second), "myhost", "some stuff")
	addSnapshot(t, s, minute.Add(45*time.Second), "myhost", "some stuff")

	_, err := s.GetContents(ctx, minute, "myhost", "some stuff")
	var amb *AmbiguousError
	if !errors.As(err, &amb) {
		t.Fatalf("expected AmbiguousError, got %v", err)
	}
	if !errors.Is(err, ErrAmbiguous) {
		t.Error("expected errors.Is ErrAmbiguous")
	}

	// Starting the window at the exact second narrows it to one.
	if _, err := s.GetContents(ctx, minute.Add(45*time.Second), "myhost", "some stuff"); err != nil {
		t.Errorf("expected single match from 12:03:45, got %v", err)
	}
}

func addTimestampTestSnapshots(t *testing.T, s *SQLiteStore, now time.Time) {
	addSnapshot(t, s, now, "myhost", "some stuff")
	addSnapshot(t, s, now.Add(-oneMinute), "myhost", "some stuff")
	addSnapshot(t, s, now.Add(-oneDay), "myhost", "some stuff")
}

func TestListDays(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	now := clock.Now()
	addTimestampTestSnapshots(t, s, now)

	days, err := s.ListDays(ctx)
	if err != nil {
		t.Fatalf("list days: %v", err)
	}
	want := []time.Time{
		time.Date(2013, 9, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2013, 9, 21, 0, 0, 0, 0, time.UTC),
	}
	assertTimes(t, want, days)
}

func TestListDaysEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	days, err := s.ListDays(context.Background())
	if err != nil {
		t.Fatalf("list days: %v", err)
	}
	if len(days) != 0 {
		t.Errorf("expected no days, got %v", days)
	}
}

func TestListMinutes(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	now := clock.Now()
	addTimestampTestSnapshots(t, s, now)

	day := time.Date(2013, 9, 21, 0, 0, 0, 0, time.UTC)
	minutes, err := s.ListMinutes(ctx, day)
	if err != nil {
		t.Fatalf("list minutes: %v", err)
	}
	minuteNow := now.Truncate(time.Minute)
	assertTimes(t, []time.Time{minuteNow.Add(-oneMinute), minuteNow}, minutes)

	later, err := s.ListMinutes(ctx, day.Add(oneDay))
	if err != nil {
		t.Fatalf("list minutes: %v", err)
	}
	if len(later) != 0 {
		t.Errorf("expected no minutes a day later, got %v", later)
	}
}

func TestListMinutesCollapsesSeconds(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	day := time.Date(2013, 9, 21, 0, 0, 0, 0, time.UTC)

	addSnapshot(t, s, day.Add(time.Hour+2*time.Minute+3*time.Second), "myhost", "a")
	addSnapshot(t, s, day.Add(time.Hour+2*time.Minute+59*time.Second), "myhost", "b")

	minutes, err := s.ListMinutes(ctx, day)
	if err != nil {
		t.Fatalf("list minutes: %v", err)
	}
	assertTimes(t, []time.Time{day.Add(time.Hour + 2*time.Minute)}, minutes)
}

func TestListMinutesDayBoundaries(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	day := time.Date(2013, 9, 21, 0, 0, 0, 0, time.UTC)

	addSnapshot(t, s, day.Add(-time.Second), "myhost", "before")
	addSnapshot(t, s, day, "myhost", "first")
	addSnapshot(t, s, day.Add(oneDay-time.Second), "myhost", "last")
	addSnapshot(t, s, day.Add(oneDay), "myhost", "after")

	// A mid-day instant selects the whole calendar day.
	minutes, err := s.ListMinutes(ctx, day.Add(13*time.Hour))
	if err != nil {
		t.Fatalf("list minutes: %v", err)
	}
	assertTimes(t, []time.Time{day, day.Add(oneDay - time.Minute)}, minutes)
}

func TestListAt(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	now := clock.Now()

	addSnapshot(t, s, now, "myhost", "some stuff")
	addSnapshot(t, s, now, "otherhost", "some stuff")
	addSnapshot(t, s, now, "myhost", "other stuff")
	addSnapshot(t, s, now.Add(-oneMinute), "myhost", "some stuff")

	infos, err := s.ListAt(ctx, now)
	if err != nil {
		t.Fatalf("list at: %v", err)
	}
	want := [][2]string{
		{"myhost", "other stuff"},
		{"myhost", "some stuff"},
		{"otherhost", "some stuff"},
	}
	if len(infos) != len(want) {
		t.Fatalf("expected %d infos, got %d: %v", len(want), len(infos), infos)
	}
	for i, w := range want {
		if infos[i].Hostname != w[0] || infos[i].Title != w[1] {
			t.Errorf("info %d: expected %v, got %+v", i, w, infos[i])
		}
	}
}

func TestListAtWindowIsHalfOpen(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	start := time.Date(2013, 9, 21, 1, 2, 3, 0, time.UTC)

	addSnapshot(t, s, start, "a", "start")
	addSnapshot(t, s, start.Add(Window-time.Second), "b", "end")
	addSnapshot(t, s, start.Add(Window), "c", "outside")

	infos, err := s.ListAt(ctx, start)
	if err != nil {
		t.Fatalf("list at: %v", err)
	}
	if len(infos) != 2 || infos[0].Hostname != "a" || infos[1].Hostname != "b" {
		t.Errorf("expected a and b, got %v", infos)
	}
}

func TestListAtSubSecondStart(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	start := time.Date(2013, 9, 21, 1, 2, 3, 0, time.UTC)

	addSnapshot(t, s, start, "a", "before")
	addSnapshot(t, s, start.Add(time.Second), "b", "first")
	addSnapshot(t, s, start.Add(Window), "c", "last")
	addSnapshot(t, s, start.Add(Window+time.Second), "d", "outside")

	from := start.Add(500 * time.Millisecond)
	infos, err := s.ListAt(ctx, from)
	if err != nil {
		t.Fatalf("list at: %v", err)
	}
	if len(infos) != 2 || infos[0].Hostname != "b" || infos[1].Hostname != "c" {
		t.Errorf("expected b and c, got %v", infos)
	}

	if _, err := s.GetContents(ctx, from, "a", "before"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected snapshot before the window start to be excluded, got %v", err)
	}
	if _, err := s.GetContents(ctx, from, "c", "last"); err != nil {
		t.Errorf("expected snapshot inside the window: %v", err)
	}
}

func TestNoDuplicateSnapshots(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	now := clock.Now()

	addSnapshot(t, s, now, "myhost", "some stuff")
	addSnapshot(t, s, now.Add(-oneMinute), "myhost", "some stuff")
	addSnapshot(t, s, now, "otherhost", "some stuff")
	addSnapshot(t, s, now, "myhost", "other stuff")

	err := s.Add(ctx, now, "myhost", "some stuff", []byte("replacement"))
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.Hostname != "myhost" || dup.Title != "some stuff" || !dup.Timestamp.Equal(now) {
		t.Errorf("unexpected duplicate key %+v", dup)
	}
	if !errors.Is(err, ErrDuplicate) {
		t.Error("expected errors.Is ErrDuplicate")
	}

	got, err := s.GetContents(ctx, now, "myhost", "some stuff")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "hello world!" {
		t.Errorf("first contents changed: %q", got)
	}
	if n := countSnapshots(t, s); n != 4 {
		t.Errorf("expected 4 snapshots, got %d", n)
	}
}

func TestDuplicateIgnoresSubSecond(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	now := clock.Now()

	addSnapshot(t, s, now, "myhost", "some stuff")
	err := s.Add(ctx, now.Add(400*time.Millisecond), "myhost", "some stuff", []byte("x"))
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected duplicate for same second, got %v", err)
	}
}

func TestConcurrentDuplicateWrites(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	now := clock.Now()

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Add(ctx, now, "myhost", "some stuff", []byte("race"))
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dups int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrDuplicate):
			dups++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dups != writers-1 {
		t.Errorf("expected 1 success and %d duplicates, got %d and %d", writers-1, ok, dups)
	}
}

func TestAddRejectsEmptyKey(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	if err := s.Add(ctx, clock.Now(), "", "title", nil); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for empty hostname, got %v", err)
	}
	if err := s.Add(ctx, clock.Now(), "host", "", nil); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for empty title, got %v", err)
	}
}

func TestCleanOldSnapshots(t *testing.T) {
	s, clock := newTestStore(t)
	now := clock.Now()

	addSnapshot(t, s, now, "myhost", "some stuff")
	addSnapshot(t, s, now, "otherhost", "some stuff")
	if n := countSnapshots(t, s); n != 2 {
		t.Fatalf("expected 2 snapshots, got %d", n)
	}

	// Time passing alone deletes nothing.
	clock.Advance(100 * oneDay)
	if n := countSnapshots(t, s); n != 2 {
		t.Fatalf("expected 2 snapshots before next write, got %d", n)
	}

	addSnapshot(t, s, now, "myhost", "other stuff")
	if n := countSnapshots(t, s); n != 0 {
		t.Errorf("expected sweep to remove every stale snapshot, got %d", n)
	}

	addSnapshot(t, s, clock.Now(), "myhost", "some stuff")
	if n := countSnapshots(t, s); n != 1 {
		t.Errorf("expected 1 snapshot, got %d", n)
	}
}

func TestRetentionKeepsRecentSnapshots(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	now := clock.Now()

	kept := []struct {
		title string
		ts    time.Time
	}{
		{"recent", now.Add(-13 * oneDay)},
		{"boundary", now.Add(-RetentionHorizon)},
		{"trigger", now},
	}
	addSnapshot(t, s, now.Add(-RetentionHorizon-time.Second), "myhost", "stale")
	for _, k := range kept {
		addSnapshot(t, s, k.ts, "myhost", k.title)
	}

	for _, k := range kept {
		if _, err := s.GetContents(ctx, k.ts, "myhost", k.title); err != nil {
			t.Errorf("expected %q to survive: %v", k.title, err)
		}
	}
	_, err := s.GetContents(ctx, now.Add(-RetentionHorizon-time.Second), "myhost", "stale")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected stale snapshot to be swept, got %v", err)
	}
}

func TestDuplicateDoesNotSweep(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	now := clock.Now()

	addSnapshot(t, s, now, "myhost", "some stuff")
	clock.Advance(100 * oneDay)

	if err := s.Add(ctx, now, "myhost", "some stuff", nil); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if n := countSnapshots(t, s); n != 1 {
		t.Errorf("expected rejected write to leave the store untouched, got %d", n)
	}
}

func TestAddBeforeEpoch(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	ts := time.Date(1969, 12, 31, 23, 59, 59, 0, time.UTC)
	if err := s.Add(ctx, ts, "myhost", "some stuff", []byte("x")); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Far past the horizon, so the write's own sweep removes it.
	if n := countSnapshots(t, s); n != 0 {
		t.Errorf("expected pre-epoch snapshot to be swept, got %d", n)
	}
}

func TestNonASCIIContentsAreCleaned(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)
	now := clock.Now()

	if err := s.Add(ctx, now, "myhost", "some stuff", []byte("\xf0\x9f\x98\x88")); err != nil {
		t.Fatalf("add: %v", err)
	}
	got, err := s.GetContents(ctx, now, "myhost", "some stuff")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "&#128520;" {
		t.Errorf("expected '&#128520;', got %q", got)
	}
}

func TestLocation(t *testing.T) {
	ctx := context.Background()
	loc := time.FixedZone("UTC+10", 10*60*60)
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "loc.db"),
		WithLocation(loc),
		WithClock(func() time.Time { return time.Date(2013, 9, 21, 0, 0, 0, 0, time.UTC) }))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer s.Close()

	// 20:00 UTC on the 20th is 06:00 on the 21st in UTC+10.
	addSnapshot(t, s, time.Date(2013, 9, 20, 20, 0, 0, 0, time.UTC), "myhost", "some stuff")

	days, err := s.ListDays(ctx)
	if err != nil {
		t.Fatalf("list days: %v", err)
	}
	assertTimes(t, []time.Time{time.Date(2013, 9, 21, 0, 0, 0, 0, loc)}, days)
}

func TestNewWithExistingHandle(t *testing.T) {
	dir := t.TempDir()
	owner, err := NewSQLiteStore(filepath.Join(dir, "shared.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer owner.Close()

	s, err := New(owner.db)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	addSnapshot(t, s, time.Now(), "myhost", "some stuff")
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// The borrowed handle stays usable.
	if n := countSnapshots(t, owner); n != 1 {
		t.Errorf("expected 1 snapshot through owner, got %d", n)
	}
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}

func assertTimes(t *testing.T, want, got []time.Time) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if !want[i].Equal(got[i]) {
			t.Errorf("index %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}
