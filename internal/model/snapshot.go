// Package model defines the core snapshot data types.
package model

import "time"

// Snapshot represents one archived export, keyed by timestamp, hostname and title.
type Snapshot struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Hostname  string    `json:"hostname"`
	Title     string    `json:"title"`
	Contents  string    `json:"contents"`
}

// SnapshotInfo identifies a snapshot within a time window.
type SnapshotInfo struct {
	Hostname string `json:"hostname"`
	Title    string `json:"title"`
}
