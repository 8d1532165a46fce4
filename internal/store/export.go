package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rcliao/timeturner/internal/model"
)

// ExportAll returns every live snapshot, optionally filtered by hostname,
// ordered by timestamp, hostname and title.
func (s *SQLiteStore) ExportAll(ctx context.Context, hostname string) ([]model.Snapshot, error) {
	query := `SELECT id, timestamp, hostname, title, contents FROM snapshot`
	var args []interface{}
	if hostname != "" {
		query += ` WHERE hostname = ?`
		args = append(args, hostname)
	}
	query += ` ORDER BY timestamp, hostname, title`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snapshots := []model.Snapshot{}
	for rows.Next() {
		var snap model.Snapshot
		var ts string
		if err := rows.Scan(&snap.ID, &ts, &snap.Hostname, &snap.Title, &snap.Contents); err != nil {
			return nil, err
		}
		snap.Timestamp, err = time.ParseInLocation(timestampLayout, ts, s.loc)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", ts, err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// Import adds snapshots from an export. Snapshots whose key already exists
// are skipped and counted; any other error stops the import.
func (s *SQLiteStore) Import(ctx context.Context, snapshots []model.Snapshot) (imported, skipped int, err error) {
	for _, snap := range snapshots {
		addErr := s.Add(ctx, snap.Timestamp, snap.Hostname, snap.Title, []byte(snap.Contents))
		if errors.Is(addErr, ErrDuplicate) {
			skipped++
			continue
		}
		if addErr != nil {
			return imported, skipped, addErr
		}
		imported++
	}
	return imported, skipped, nil
}
