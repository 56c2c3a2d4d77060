package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	"officehours/internal/model"
	"officehours/internal/timeutil"
)

// SeriesConfig describes one weekly series to expand.
type SeriesConfig struct {
	// Start is the first occurrence's start; its location is kept for every
	// generated occurrence.
	Start time.Time
	// Duration of each occurrence, added on the wall clock.
	Duration time.Duration
	// Weeks is the number of occurrences. Zero yields none.
	Weeks int

	Label    string
	SeriesID string

	// NewUID is called once per occurrence. Required.
	NewUID func() string
}

// ExpandWeekly generates the occurrences of a weekly series using an RRULE
// FREQ=WEEKLY;COUNT=<weeks> anchored at cfg.Start. Occurrences keep the wall
// clock time of Start across DST changes.
func ExpandWeekly(cfg SeriesConfig) ([]model.Occurrence, error) {
	if cfg.Weeks < 0 {
		return nil, errors.New("expand: negative week count")
	}
	if cfg.Duration < 0 {
		return nil, errors.New("expand: negative duration")
	}
	if cfg.NewUID == nil {
		return nil, errors.New("expand: NewUID is required")
	}
	// COUNT=0 means "unbounded" to rrule; a zero-week series is simply empty.
	if cfg.Weeks == 0 {
		return []model.Occurrence{}, nil
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.WEEKLY,
		Count:   cfg.Weeks,
		Dtstart: cfg.Start,
	})
	if err != nil {
		return nil, err
	}

	starts := r.All()
	out := make([]model.Occurrence, 0, len(starts))
	for _, start := range starts {
		start = start.In(cfg.Start.Location())
		out = append(out, model.Occurrence{
			UID:      cfg.NewUID(),
			SeriesID: cfg.SeriesID,
			Label:    cfg.Label,
			Start:    start,
			End:      timeutil.AddWall(start, cfg.Duration),
		})
	}
	return out, nil
}
