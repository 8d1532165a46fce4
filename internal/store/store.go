// Package store provides the snapshot storage interface and SQLite implementation.
package store

import (
	"context"
	"time"

	"github.com/rcliao/timeturner/internal/model"
)

// RetentionHorizon is how far behind the clock a snapshot may fall before
// the sweep that follows each write deletes it.
const RetentionHorizon = 14 * 24 * time.Hour

// Window is the width of the half-open interval used by ListAt and GetContents.
const Window = 60 * time.Second

// Clock reports the current time. Retention is measured against it.
type Clock func() time.Time

// Store defines the snapshot storage interface.
type Store interface {
	// Add normalizes raw and stores it under (ts, hostname, title), then
	// sweeps snapshots older than the retention horizon.
	Add(ctx context.Context, ts time.Time, hostname, title string, raw []byte) error

	// ListDays returns every calendar day holding at least one snapshot, ascending.
	ListDays(ctx context.Context) ([]time.Time, error)

	// ListMinutes returns the distinct minute-truncated timestamps on day, ascending.
	ListMinutes(ctx context.Context, day time.Time) ([]time.Time, error)

	// ListAt returns the snapshots in [ts, ts+Window) ordered by hostname, then title.
	ListAt(ctx context.Context, ts time.Time) ([]model.SnapshotInfo, error)

	// GetContents returns the contents of the single snapshot in
	// [ts, ts+Window) matching hostname and title.
	GetContents(ctx context.Context, ts time.Time, hostname, title string) (string, error)

	// Close closes the store.
	Close() error
}
