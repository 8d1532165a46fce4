package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/rcliao/timeturner/internal/model"
	"github.com/rcliao/timeturner/internal/normalize"
)

// Timestamps are stored as fixed-width text so that string order is time order.
const (
	timestampLayout = "2006-01-02 15:04:05"
	minuteLayout    = "2006-01-02 15:04"
	dayLayout       = "2006-01-02"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshot (
	id        TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	hostname  TEXT NOT NULL,
	title     TEXT NOT NULL,
	contents  TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_snapshot_key ON snapshot(timestamp, hostname, title);
CREATE INDEX IF NOT EXISTS idx_snapshot_timestamp ON snapshot(timestamp);
`

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db          *sql.DB
	owned       bool
	now         Clock
	loc         *time.Location
	logger      *zap.Logger
	busyTimeout time.Duration

	mu      sync.Mutex
	entropy *rand.Rand

	insert   *sql.Stmt
	sweep    *sql.Stmt
	days     *sql.Stmt
	minutes  *sql.Stmt
	window   *sql.Stmt
	contents *sql.Stmt
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithClock sets the clock the retention sweep measures against.
func WithClock(now Clock) Option {
	return func(s *SQLiteStore) { s.now = now }
}

// WithLocation sets the location timestamps are interpreted in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *SQLiteStore) { s.loc = loc }
}

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *SQLiteStore) { s.logger = logger }
}

// WithBusyTimeout sets how long NewSQLiteStore connections wait for the
// write lock. It has no effect on handles passed to New.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *SQLiteStore) { s.busyTimeout = d }
}

// DSN builds the connection string NewSQLiteStore opens dbPath with. Writes
// take the lock up front so concurrent writers queue on busyTimeout instead
// of failing mid-transaction.
func DSN(dbPath string, busyTimeout time.Duration) string {
	return fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(%d)&_txlock=immediate",
		dbPath, busyTimeout.Milliseconds())
}

func newStore(opts []Option) *SQLiteStore {
	s := &SQLiteStore{
		now:         time.Now,
		loc:         time.UTC,
		logger:      zap.NewNop(),
		busyTimeout: 5 * time.Second,
		entropy:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	s := newStore(opts)
	db, err := sql.Open("sqlite", DSN(dbPath, s.busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s.db = db
	s.owned = true

	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New builds a store on an already-open database handle, creating the
// schema if needed. The caller keeps ownership of db.
func New(db *sql.DB, opts ...Option) (*SQLiteStore, error) {
	s := newStore(opts)
	s.db = db
	if err := s.init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	if err := s.migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := s.prepare(); err != nil {
		s.closeStmts()
		return fmt.Errorf("prepare: %w", err)
	}
	return nil
}

// newID stamps ids with the wall clock; snapshot timestamps may predate the
// ULID epoch.
func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) prepare() error {
	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.insert, `INSERT INTO snapshot (id, timestamp, hostname, title, contents) VALUES (?, ?, ?, ?, ?)`},
		{&s.sweep, `DELETE FROM snapshot WHERE timestamp < ?`},
		{&s.days, `SELECT DISTINCT substr(timestamp, 1, 10) AS day FROM snapshot ORDER BY day`},
		{&s.minutes, `SELECT DISTINCT substr(timestamp, 1, 16) AS minute FROM snapshot
			WHERE timestamp >= ? AND timestamp < ? ORDER BY minute`},
		{&s.window, `SELECT hostname, title FROM snapshot
			WHERE timestamp >= ? AND timestamp < ? ORDER BY hostname, title`},
		{&s.contents, `SELECT contents FROM snapshot
			WHERE timestamp >= ? AND timestamp < ? AND hostname = ? AND title = ? LIMIT 2`},
	}
	for _, st := range stmts {
		stmt, err := s.db.Prepare(st.query)
		if err != nil {
			return err
		}
		*st.dst = stmt
	}
	return nil
}

func (s *SQLiteStore) format(t time.Time) string {
	return t.In(s.loc).Format(timestampLayout)
}

func (s *SQLiteStore) Add(ctx context.Context, ts time.Time, hostname, title string, raw []byte) error {
	if hostname == "" || title == "" {
		return ErrInvalidKey
	}
	ts = ts.In(s.loc).Truncate(time.Second)
	contents := normalize.ASCII(raw)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.StmtContext(ctx, s.insert).ExecContext(ctx,
		s.newID(), s.format(ts), hostname, title, contents)
	if err != nil {
		if isUniqueViolation(err) {
			return &DuplicateError{Timestamp: ts, Hostname: hostname, Title: title}
		}
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if err := s.cleanOld(ctx, tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug("snapshot added",
		zap.Time("timestamp", ts),
		zap.String("hostname", hostname),
		zap.String("title", title),
		zap.Int("size", len(contents)))
	return nil
}

// cleanOld deletes everything older than the retention horizon, measured
// against the store clock rather than the snapshot being written.
func (s *SQLiteStore) cleanOld(ctx context.Context, tx *sql.Tx) error {
	oldest := s.now().Add(-RetentionHorizon)
	res, err := tx.StmtContext(ctx, s.sweep).ExecContext(ctx, s.format(oldest))
	if err != nil {
		return fmt.Errorf("sweep old snapshots: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.logger.Debug("swept old snapshots",
			zap.Int64("deleted", n),
			zap.Time("before", oldest))
	}
	return nil
}

func (s *SQLiteStore) ListDays(ctx context.Context) ([]time.Time, error) {
	rows, err := s.days.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list days: %w", err)
	}
	return s.scanTimes(rows, dayLayout)
}

func (s *SQLiteStore) ListMinutes(ctx context.Context, day time.Time) ([]time.Time, error) {
	day = day.In(s.loc)
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.loc)
	end := start.AddDate(0, 0, 1)

	rows, err := s.minutes.QueryContext(ctx, s.format(start), s.format(end))
	if err != nil {
		return nil, fmt.Errorf("list minutes: %w", err)
	}
	return s.scanTimes(rows, minuteLayout)
}

func (s *SQLiteStore) ListAt(ctx context.Context, ts time.Time) ([]model.SnapshotInfo, error) {
	ts = s.windowStart(ts)
	rows, err := s.window.QueryContext(ctx, s.format(ts), s.format(ts.Add(Window)))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	infos := []model.SnapshotInfo{}
	for rows.Next() {
		var info model.SnapshotInfo
		if err := rows.Scan(&info.Hostname, &info.Title); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (s *SQLiteStore) GetContents(ctx context.Context, ts time.Time, hostname, title string) (string, error) {
	ts = s.windowStart(ts)
	rows, err := s.contents.QueryContext(ctx, s.format(ts), s.format(ts.Add(Window)), hostname, title)
	if err != nil {
		return "", fmt.Errorf("get contents: %w", err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return "", err
		}
		matches = append(matches, c)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Timestamp: ts, Hostname: hostname, Title: title}
	case 1:
		return matches[0], nil
	default:
		s.logger.Error("multiple snapshots in window",
			zap.Time("timestamp", ts),
			zap.String("hostname", hostname),
			zap.String("title", title))
		return "", &AmbiguousError{Timestamp: ts, Hostname: hostname, Title: title}
	}
}

// windowStart rounds ts up to a whole second. Stored timestamps have second
// precision, so [ts, ts+Window) selects the same rows as
// [windowStart(ts), windowStart(ts)+Window).
func (s *SQLiteStore) windowStart(ts time.Time) time.Time {
	ts = ts.In(s.loc)
	if t := ts.Truncate(time.Second); !t.Equal(ts) {
		return t.Add(time.Second)
	}
	return ts
}

func (s *SQLiteStore) Close() error {
	s.closeStmts()
	if s.owned {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) closeStmts() {
	for _, stmt := range []*sql.Stmt{s.insert, s.sweep, s.days, s.minutes, s.window, s.contents} {
		if stmt != nil {
			stmt.Close()
		}
	}
}

func (s *SQLiteStore) scanTimes(rows *sql.Rows, layout string) ([]time.Time, error) {
	defer rows.Close()

	times := []time.Time{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		t, err := time.ParseInLocation(layout, v, s.loc)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", v, err)
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// isUniqueViolation reports whether err is SQLite rejecting a duplicate key.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}
