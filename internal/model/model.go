package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Owner identifies the user a block of office hours belongs to.
type Owner struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Tag renders the label stored on every occurrence the owner holds:
// "<id>, <name>".
func (o Owner) Tag() string {
	return fmt.Sprintf("%d, %s", o.ID, o.Name)
}

// ParseOwner recovers the owner from an occurrence label. The id is the text
// before the first ", "; the rest is the display name (which may itself
// contain commas).
func ParseOwner(label string) (Owner, bool) {
	idPart, name, _ := strings.Cut(label, ", ")
	id, err := strconv.ParseUint(strings.TrimSpace(idPart), 10, 64)
	if err != nil {
		return Owner{}, false
	}
	return Owner{ID: id, Name: name}, true
}

// Occurrence represents a single concrete block of office hours. A weekly
// series is stored as one Occurrence per week.
type Occurrence struct {
	// UID is the iCalendar UID of the backing VEVENT.
	UID string `json:"uid"`
	// SeriesID is shared by all occurrences produced by one create call.
	SeriesID string `json:"series_id,omitempty"`

	// Label is "<owner_id>, <owner_name>" and is the only ownership link.
	Label string `json:"label"`

	// Start / End are in the configured store timezone.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Owner parses the owner out of the label.
func (o Occurrence) Owner() (Owner, bool) {
	return ParseOwner(o.Label)
}

// OwnedBy reports whether the occurrence's label names owner's id exactly.
func (o Occurrence) OwnedBy(owner Owner) bool {
	got, ok := o.Owner()
	return ok && got.ID == owner.ID
}

// Duration is End - Start.
func (o Occurrence) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

// Equal compares field by field, using time.Time.Equal for the timestamps.
func (o Occurrence) Equal(other Occurrence) bool {
	return o.UID == other.UID &&
		o.SeriesID == other.SeriesID &&
		o.Label == other.Label &&
		o.Start.Equal(other.Start) &&
		o.End.Equal(other.End)
}
