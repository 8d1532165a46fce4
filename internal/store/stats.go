package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"
)

// Stats holds database statistics.
type Stats struct {
	DBPath      string      `json:"db_path,omitempty"`
	DBSizeBytes int64       `json:"db_size_bytes"`
	Total       int         `json:"total_snapshots"`
	Oldest      *time.Time  `json:"oldest,omitempty"`
	Newest      *time.Time  `json:"newest,omitempty"`
	Hosts       []HostStats `json:"hosts"`
}

// HostStats holds per-host counts.
type HostStats struct {
	Hostname string `json:"hostname"`
	Count    int    `json:"count"`
	Titles   int    `json:"titles"`
}

// Stats returns database statistics. dbPath is only used to report the file size.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath, Hosts: []HostStats{}}

	if dbPath != "" {
		if info, err := os.Stat(dbPath); err == nil {
			st.DBSizeBytes = info.Size()
		}
	}

	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM snapshot`).Scan(&st.Total, &oldest, &newest)
	if err != nil {
		return nil, err
	}
	if oldest.Valid {
		t, err := time.ParseInLocation(timestampLayout, oldest.String, s.loc)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", oldest.String, err)
		}
		st.Oldest = &t
	}
	if newest.Valid {
		t, err := time.ParseInLocation(timestampLayout, newest.String, s.loc)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", newest.String, err)
		}
		st.Newest = &t
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT hostname, COUNT(*) AS cnt, COUNT(DISTINCT title) AS titles
		FROM snapshot
		GROUP BY hostname ORDER BY cnt DESC, hostname`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var h HostStats
		if err := rows.Scan(&h.Hostname, &h.Count, &h.Titles); err != nil {
			return st, err
		}
		st.Hosts = append(st.Hosts, h)
	}

	return st, rows.Err()
}
