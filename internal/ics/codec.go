package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"officehours/internal/model"
)

// PropertySeriesID carries model.Occurrence.SeriesID on the VEVENT.
const PropertySeriesID ical.ComponentProperty = "X-OFFICEHOURS-SERIES"

const localTimestampLayout = "20060102T150405"

var ErrMalformedRecord = errors.New("malformed event record")

// Encode converts an occurrence into a VEVENT. DTSTART/DTEND are written as
// local wall clock times with a TZID parameter naming loc.
//
// Occurrences without a UID (records written by older versions) get a UID
// derived from their label and start, so repeated rewrites stay stable.
func Encode(occ model.Occurrence, loc *time.Location) *ical.VEvent {
	if loc == nil {
		loc = occ.Start.Location()
	}

	uid := occ.UID
	if uid == "" {
		uid = legacyUID(occ)
	}

	ev := ical.NewEvent(uid)
	setZoned(ev, ical.ComponentPropertyDtStart, occ.Start, loc)
	setZoned(ev, ical.ComponentPropertyDtEnd, occ.End, loc)
	ev.SetSummary(occ.Label)
	if occ.SeriesID != "" {
		ev.SetProperty(PropertySeriesID, occ.SeriesID)
	}
	return ev
}

// Decode converts a VEVENT back into an occurrence normalized into loc.
// DTSTART and DTEND are required; end > start is not checked here.
func Decode(ev *ical.VEvent, loc *time.Location) (model.Occurrence, error) {
	var out model.Occurrence
	if ev == nil {
		return out, fmt.Errorf("%w: nil event", ErrMalformedRecord)
	}
	if loc == nil {
		loc = time.Local
	}

	if p := ev.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if p := ev.GetProperty(PropertySeriesID); p != nil {
		out.SeriesID = p.Value
	}
	if p := ev.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Label = p.Value
	}

	// GetStartAt/GetEndAt resolve the TZID parameter through time.LoadLocation.
	if ev.GetProperty(ical.ComponentPropertyDtStart) == nil {
		return out, fmt.Errorf("%w: missing DTSTART (uid %q)", ErrMalformedRecord, out.UID)
	}
	start, err := ev.GetStartAt()
	if err != nil {
		return out, fmt.Errorf("%w: DTSTART (uid %q): %v", ErrMalformedRecord, out.UID, err)
	}

	if ev.GetProperty(ical.ComponentPropertyDtEnd) == nil {
		return out, fmt.Errorf("%w: missing DTEND (uid %q)", ErrMalformedRecord, out.UID)
	}
	end, err := ev.GetEndAt()
	if err != nil {
		return out, fmt.Errorf("%w: DTEND (uid %q): %v", ErrMalformedRecord, out.UID, err)
	}

	out.Start = start.In(loc)
	out.End = end.In(loc)
	return out, nil
}

func setZoned(ev *ical.VEvent, prop ical.ComponentProperty, t time.Time, loc *time.Location) {
	local := t.In(loc)
	if loc == time.UTC {
		ev.SetProperty(prop, local.Format(localTimestampLayout)+"Z")
		return
	}
	ev.SetProperty(prop, local.Format(localTimestampLayout), &ical.KeyValues{
		Key:   string(ical.ParameterTzid),
		Value: []string{loc.String()},
	})
}

func legacyUID(occ model.Occurrence) string {
	name := strings.Join([]string{occ.Label, occ.Start.UTC().Format(time.RFC3339)}, "|")
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
