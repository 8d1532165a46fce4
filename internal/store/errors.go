package store

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDuplicate  = errors.New("snapshot already exists")
	ErrNotFound   = errors.New("snapshot not found")
	ErrAmbiguous  = errors.New("snapshot is ambiguous")
	ErrInvalidKey = errors.New("hostname and title are required")
)

// DuplicateError reports a write whose (timestamp, hostname, title) is already taken.
type DuplicateError struct {
	Timestamp time.Time
	Hostname  string
	Title     string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate snapshot: %s %s %s", e.Timestamp.Format(timestampLayout), e.Hostname, e.Title)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

// NotFoundError reports a lookup whose window holds no matching snapshot.
type NotFoundError struct {
	Timestamp time.Time
	Hostname  string
	Title     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("snapshot not found: %s %s %s", e.Timestamp.Format(timestampLayout), e.Hostname, e.Title)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AmbiguousError reports a lookup whose window holds more than one match.
type AmbiguousError struct {
	Timestamp time.Time
	Hostname  string
	Title     string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("multiple snapshots match %s %s %s", e.Timestamp.Format(timestampLayout), e.Hostname, e.Title)
}

func (e *AmbiguousError) Is(target error) bool { return target == ErrAmbiguous }
