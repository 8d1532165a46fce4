// Package timekey parses and formats the date and time segments used in
// snapshot URLs and CLI arguments.
package timekey

import (
	"fmt"
	"time"
)

const (
	DateLayout   = "20060102"
	MinuteLayout = "1504"
	SecondLayout = "150405"
	// StampLayout joins a date and a second-precision time, e.g. 20130920-010203.
	StampLayout = DateLayout + "-" + SecondLayout
)

// ParseDate parses a YYYYMMDD date as midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}

// ParseDateTime combines a YYYYMMDD date with an HHMM or HHMMSS time.
func ParseDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date, loc)
	if err != nil {
		return time.Time{}, err
	}

	var layout string
	switch len(clock) {
	case len(MinuteLayout):
		layout = MinuteLayout
	case len(SecondLayout):
		layout = SecondLayout
	default:
		return time.Time{}, fmt.Errorf("invalid time %q", clock)
	}
	c, err := time.Parse(layout, clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", clock)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour(), c.Minute(), c.Second(), 0, loc), nil
}

// ParseStamp parses a YYYYMMDD-HHMMSS timestamp.
func ParseStamp(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(StampLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q (use %s)", s, StampLayout)
	}
	return t, nil
}

// FormatDate renders t as a YYYYMMDD path segment.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FormatMinute renders t as an HHMM path segment.
func FormatMinute(t time.Time) string {
	return t.Format(MinuteLayout)
}

// FormatSecond renders t as an HHMMSS path segment.
func FormatSecond(t time.Time) string {
	return t.Format(SecondLayout)
}
