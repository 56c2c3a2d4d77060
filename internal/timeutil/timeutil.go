// Package timeutil holds the pure date helpers shared by the engine and the
// command front-ends.
package timeutil

import (
	"errors"
	"fmt"
	"time"
)

// SummaryLayout is used for every timestamp shown back to users.
const SummaryLayout = "Jan 02 Mon 03:04 PM"

// Week is the spacing between two occurrences of a series.
const Week = 7 * 24 * time.Hour

var ErrInvalidTemporalParameters = errors.New("invalid temporal parameters")

// StartOfWeek returns the most recent Sunday at 00:00:00 on or before t, in
// t's location.
func StartOfWeek(t time.Time) time.Time {
	diff := int(t.Weekday() - time.Sunday)
	return time.Date(t.Year(), t.Month(), t.Day()-diff, 0, 0, 0, 0, t.Location())
}

// To24Hour converts a 1-12 clock hour to 0-23.
// 12 AM is midnight (0) and 12 PM is noon (12).
func To24Hour(hour12 int, pm bool) int {
	h := hour12 % 12
	if pm {
		h += 12
	}
	return h
}

// Clock12 is a calendar date plus a 12-hour wall clock time, the shape in
// which users supply times.
type Clock12 struct {
	Year   int
	Month  int
	Day    int
	Hour   int
	Minute int
	PM     bool
}

// In builds the timestamp in loc. Dates and wall times that do not exist
// (Feb 30, hour 13, 02:30 on a spring-forward day) are rejected instead of
// being normalized by time.Date.
func (c Clock12) In(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if c.Hour < 1 || c.Hour > 12 || c.Minute < 0 || c.Minute > 59 {
		return time.Time{}, fmt.Errorf("%w: %02d:%02d is not a 12-hour clock time", ErrInvalidTemporalParameters, c.Hour, c.Minute)
	}
	if c.Month < 1 || c.Month > 12 || c.Day < 1 || c.Year < 0 {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d", ErrInvalidTemporalParameters, c.Year, c.Month, c.Day)
	}

	hour := To24Hour(c.Hour, c.PM)
	t := time.Date(c.Year, time.Month(c.Month), c.Day, hour, c.Minute, 0, 0, loc)
	if t.Year() != c.Year || int(t.Month()) != c.Month || t.Day() != c.Day {
		return time.Time{}, fmt.Errorf("%w: %04d-%02d-%02d is not a calendar date", ErrInvalidTemporalParameters, c.Year, c.Month, c.Day)
	}
	if t.Hour() != hour || t.Minute() != c.Minute {
		return time.Time{}, fmt.Errorf("%w: %s does not exist in %s", ErrInvalidTemporalParameters, c, loc)
	}
	return t, nil
}

func (c Clock12) String() string {
	ampm := "AM"
	if c.PM {
		ampm = "PM"
	}
	return fmt.Sprintf("%04d-%02d-%02d %02d:%02d %s", c.Year, c.Month, c.Day, c.Hour, c.Minute, ampm)
}

// WallDiff returns b - a measured on the wall clock of their own locations,
// ignoring any UTC offset change (DST) between them.
func WallDiff(a, b time.Time) time.Duration {
	return naive(b).Sub(naive(a))
}

// AddWall adds d to t's wall clock and re-zones the result in t's location.
// Adding one week to a 10:00 slot yields 10:00 even across a DST switch.
func AddWall(t time.Time, d time.Duration) time.Time {
	w := naive(t).Add(d)
	return time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), t.Location())
}

// Format renders t for user-facing summaries.
func Format(t time.Time) string {
	return t.Format(SummaryLayout)
}

func naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}
