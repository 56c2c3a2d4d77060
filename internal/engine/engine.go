package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"officehours/internal/ics"
	appLog "officehours/internal/log"
	"officehours/internal/model"
	"officehours/internal/series"
	"officehours/internal/timeutil"
)

const noneSentinel = "None"

var ErrInvalidRequest = errors.New("invalid request")

// Store is the persistence the engine needs. *ics.Store implements it.
type Store interface {
	Load(ctx context.Context) ([]model.Occurrence, error)
	Update(ctx context.Context, fn ics.UpdateFunc) error
}

// Engine creates, lists, edits and deletes weekly office hour series. It
// keeps no state between calls; every operation reloads the store.
type Engine struct {
	store Store
	loc   *time.Location
	now   func() time.Time
	newID func() string
}

type Option func(*Engine)

// WithClock overrides time.Now, which List uses to find the current week.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides the UID / series id generator.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func New(store Store, loc *time.Location, opts ...Option) *Engine {
	if loc == nil {
		loc = time.Local
	}
	e := &Engine{
		store: store,
		loc:   loc,
		now:   time.Now,
		newID: func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

// Change is one edited occurrence.
type Change struct {
	Before model.Occurrence `json:"before"`
	After  model.Occurrence `json:"after"`
}

// Result is what every operation hands back to a front-end: a text summary
// ready to show the user plus the occurrences involved.
type Result struct {
	Summary     string             `json:"summary"`
	Occurrences []model.Occurrence `json:"occurrences"`
	Changes     []Change           `json:"changes,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
}

type CreateRequest struct {
	Owner           model.Owner
	Start           time.Time
	DurationHours   int
	DurationMinutes int
	Weeks           int
}

// Create appends Weeks weekly occurrences starting at Start. Overlaps with
// the owner's existing office hours are allowed and reported as warnings.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (res Result, err error) {
	defer observe(opCreate, time.Now(), &res, &err)

	if req.Weeks < 0 {
		return res, fmt.Errorf("%w: weeks must be >= 0", ErrInvalidRequest)
	}
	dur, err := duration(req.DurationHours, req.DurationMinutes)
	if err != nil {
		return res, err
	}
	start := req.Start.In(e.loc)

	seriesID := e.newID()
	var added, overlapping []model.Occurrence

	err = e.store.Update(ctx, func(current []model.Occurrence) ([]model.Occurrence, bool, error) {
		var expandErr error
		added, expandErr = ics.ExpandWeekly(ics.SeriesConfig{
			Start:    start,
			Duration: dur,
			Weeks:    req.Weeks,
			Label:    req.Owner.Tag(),
			SeriesID: seriesID,
			NewUID:   e.newID,
		})
		if expandErr != nil {
			return nil, false, fmt.Errorf("%w: %w", ErrInvalidRequest, expandErr)
		}
		if len(added) == 0 {
			return current, false, nil
		}
		overlapping = findOverlaps(current, added, req.Owner)

		next := make([]model.Occurrence, 0, len(current)+len(added))
		next = append(next, current...)
		next = append(next, added...)
		return next, true, nil
	})
	if err != nil {
		return Result{}, err
	}

	res.Occurrences = added
	if len(added) == 0 {
		res.Summary = "Added 0 events:\n" + noneSentinel
		return res, nil
	}

	res.Summary = fmt.Sprintf("Added %d events starting from %s to %s",
		len(added), timeutil.Format(added[0].Start), timeutil.Format(added[len(added)-1].Start))
	for _, occ := range overlapping {
		res.Warnings = append(res.Warnings, "overlaps existing office hours at "+timeutil.Format(occ.Start))
	}
	if len(res.Warnings) > 0 {
		res.Summary += "\nWarning: " + strings.Join(res.Warnings, "\nWarning: ")
	}

	appLog.Info("office hours created",
		"owner_id", req.Owner.ID,
		"series_id", seriesID,
		"count", len(added),
		"first", added[0].Start.Format(time.RFC3339),
		"overlaps", len(overlapping),
	)
	return res, nil
}

type ListRequest struct {
	Owner model.Owner
	Weeks int
}

// List reports the owner's occurrences from the start of the current week
// (Sunday) through Weeks weeks ahead, in store order.
func (e *Engine) List(ctx context.Context, req ListRequest) (res Result, err error) {
	defer observe(opList, time.Now(), &res, &err)

	if req.Weeks < 0 {
		return res, fmt.Errorf("%w: weeks must be >= 0", ErrInvalidRequest)
	}

	occs, err := e.store.Load(ctx)
	if err != nil {
		return Result{}, err
	}

	window := series.Pattern{Start: timeutil.StartOfWeek(e.now().In(e.loc)), Weeks: req.Weeks}

	var b strings.Builder
	fmt.Fprintf(&b, "%s's office hours for this week:\n", req.Owner.Name)

	res.Occurrences = []model.Occurrence{}
	for _, occ := range occs {
		if window.InWindow(occ.Start) && occ.OwnedBy(req.Owner) {
			res.Occurrences = append(res.Occurrences, occ)
			b.WriteString(timeutil.Format(occ.Start))
			b.WriteString("\n")
		}
	}
	if len(res.Occurrences) == 0 {
		b.WriteString(noneSentinel)
	}
	res.Summary = b.String()

	appLog.Debug("office hours listed", "owner_id", req.Owner.ID, "weeks", req.Weeks, "count", len(res.Occurrences))
	return res, nil
}

type EditRequest struct {
	Owner model.Owner
	// From is the start of one occurrence of the series to change.
	From time.Time
	// To is where that occurrence should move; every matched occurrence is
	// shifted by the same wall clock delta.
	To              time.Time
	DurationHours   int
	DurationMinutes int
	Weeks           int
}

// Edit shifts and resizes every occurrence matching (owner, From, Weeks).
// The number of occurrences in the store never changes.
func (e *Engine) Edit(ctx context.Context, req EditRequest) (res Result, err error) {
	defer observe(opEdit, time.Now(), &res, &err)

	if req.Weeks < 0 {
		return res, fmt.Errorf("%w: weeks must be >= 0", ErrInvalidRequest)
	}
	dur, err := duration(req.DurationHours, req.DurationMinutes)
	if err != nil {
		return res, err
	}

	from := req.From.In(e.loc)
	delta := timeutil.WallDiff(from, req.To.In(e.loc))
	pattern := series.Pattern{Start: from, Weeks: req.Weeks}

	var changes []Change
	err = e.store.Update(ctx, func(current []model.Occurrence) ([]model.Occurrence, bool, error) {
		changes = nil
		next := make([]model.Occurrence, 0, len(current))
		for _, occ := range current {
			if !series.Matches(occ, req.Owner, pattern) {
				next = append(next, occ)
				continue
			}
			updated := occ
			updated.Start = timeutil.AddWall(occ.Start, delta)
			updated.End = timeutil.AddWall(updated.Start, dur)
			next = append(next, updated)
			changes = append(changes, Change{Before: occ, After: updated})
		}
		return next, len(changes) > 0, nil
	})
	if err != nil {
		return Result{}, err
	}

	var b strings.Builder
	b.WriteString("Changed the following office hours:\n")
	res.Occurrences = make([]model.Occurrence, 0, len(changes))
	for _, c := range changes {
		fmt.Fprintf(&b, "%s was changed to %s\n", timeutil.Format(c.Before.Start), timeutil.Format(c.After.Start))
		res.Occurrences = append(res.Occurrences, c.After)
	}
	if len(changes) == 0 {
		b.WriteString(noneSentinel)
	}
	res.Summary = b.String()
	res.Changes = changes

	appLog.Info("office hours edited", "owner_id", req.Owner.ID, "from", from.Format(time.RFC3339), "delta", delta.String(), "count", len(changes))
	return res, nil
}

type DeleteRequest struct {
	Owner model.Owner
	Start time.Time
	Weeks int
}

// Delete removes every occurrence matching (owner, Start, Weeks).
func (e *Engine) Delete(ctx context.Context, req DeleteRequest) (res Result, err error) {
	defer observe(opDelete, time.Now(), &res, &err)

	if req.Weeks < 0 {
		return res, fmt.Errorf("%w: weeks must be >= 0", ErrInvalidRequest)
	}
	pattern := series.Pattern{Start: req.Start.In(e.loc), Weeks: req.Weeks}

	var removed []model.Occurrence
	err = e.store.Update(ctx, func(current []model.Occurrence) ([]model.Occurrence, bool, error) {
		var kept []model.Occurrence
		removed, kept = series.Partition(current, req.Owner, pattern)
		return kept, len(removed) > 0, nil
	})
	if err != nil {
		return Result{}, err
	}

	res.Summary = removalSummary("Deleted the following office hours:\n", removed)
	res.Occurrences = nonNil(removed)

	appLog.Info("office hours deleted", "owner_id", req.Owner.ID, "start", pattern.Start.Format(time.RFC3339), "count", len(removed))
	return res, nil
}

// Prune removes every occurrence, for any owner, that ended before before.
func (e *Engine) Prune(ctx context.Context, before time.Time) (res Result, err error) {
	defer observe(opPrune, time.Now(), &res, &err)

	var removed []model.Occurrence
	err = e.store.Update(ctx, func(current []model.Occurrence) ([]model.Occurrence, bool, error) {
		removed = nil
		kept := make([]model.Occurrence, 0, len(current))
		for _, occ := range current {
			if occ.End.Before(before) {
				removed = append(removed, occ)
				continue
			}
			kept = append(kept, occ)
		}
		return kept, len(removed) > 0, nil
	})
	if err != nil {
		return Result{}, err
	}

	header := fmt.Sprintf("Pruned office hours that ended before %s:\n", timeutil.Format(before.In(e.loc)))
	res.Summary = removalSummary(header, removed)
	res.Occurrences = nonNil(removed)

	appLog.Info("office hours pruned", "before", before.Format(time.RFC3339), "count", len(removed))
	return res, nil
}

func removalSummary(header string, removed []model.Occurrence) string {
	var b strings.Builder
	b.WriteString(header)
	for _, occ := range removed {
		fmt.Fprintf(&b, "Removed office hours at %s\n", timeutil.Format(occ.Start))
	}
	if len(removed) == 0 {
		b.WriteString(noneSentinel)
	}
	return b.String()
}

func duration(hours, minutes int) (time.Duration, error) {
	if hours < 0 || minutes < 0 {
		return 0, fmt.Errorf("%w: duration must be >= 0", ErrInvalidRequest)
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, nil
}

func nonNil(occs []model.Occurrence) []model.Occurrence {
	if occs == nil {
		return []model.Occurrence{}
	}
	return occs
}
