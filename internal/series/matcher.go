// Package series re-identifies the occurrences of a weekly series from a
// reference time and an owner. Series are not keyed in the store; membership
// is derived from weekday, time of day, a window of weeks and ownership.
package series

import (
	"time"

	"officehours/internal/model"
)

// Pattern is the reference a command supplies to pick out a series: the
// start of one occurrence plus how many weeks forward to look.
type Pattern struct {
	Start time.Time
	Weeks int
}

// End is the exclusive end of the window, Weeks calendar weeks after Start.
func (p Pattern) End() time.Time {
	return p.Start.AddDate(0, 0, 7*p.Weeks)
}

// InWindow reports whether t falls in [Start, End).
func (p Pattern) InWindow(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End())
}

// SameSlot reports whether t has the same weekday, hour and minute as
// Start, evaluated in Start's location.
func (p Pattern) SameSlot(t time.Time) bool {
	local := t.In(p.Start.Location())
	return local.Weekday() == p.Start.Weekday() &&
		local.Hour() == p.Start.Hour() &&
		local.Minute() == p.Start.Minute()
}

// Matches reports whether occ belongs to owner's series described by p.
func Matches(occ model.Occurrence, owner model.Owner, p Pattern) bool {
	return p.InWindow(occ.Start) &&
		occ.OwnedBy(owner) &&
		p.SameSlot(occ.Start)
}

// Partition splits occs into those matching and the rest, preserving order.
func Partition(occs []model.Occurrence, owner model.Owner, p Pattern) (matched, rest []model.Occurrence) {
	for _, occ := range occs {
		if Matches(occ, owner, p) {
			matched = append(matched, occ)
		} else {
			rest = append(rest, occ)
		}
	}
	return matched, rest
}
