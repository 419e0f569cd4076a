// Package ics reads labor events from iCalendar feeds. Each VEVENT is one
// event: its SUMMARY (or first CATEGORIES value) names the kind, and the
// X-INCLUDE-CALCULATION / X-LABOR-MINUTES properties carry the fields
// field-service exports add on top of plain calendars.
package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "laborline/internal/log"
)

// Non-standard properties written by field-service exports.
const (
	propIncludeCalculation = "X-INCLUDE-CALCULATION"
	propLaborMinutes       = "X-LABOR-MINUTES"
	propParentID           = "X-PARENT-ID"
)

// ParsedEvent is a VEVENT before recurrence expansion.
type ParsedEvent struct {
	SourceID string

	UID string
	Seq int

	Kind        string
	Description string

	Start   time.Time
	End     time.Time
	HasEnd  bool
	AllDay  bool
	StartTZ string
	EndTZ   string

	IncludeCalculation *int
	Minutes            *float64
	ParentID           string

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID (if present) in event's own timezone
	IsOverride bool       // true if this VEVENT is an override for a recurring instance
}

// Parse parses a single ICS payload into a list of ParsedEvent.
//
//   - It relies on the underlying library's VTIMEZONE/TZID handling to
//     construct proper time.Time values (with Location set).
//   - It records RRULE/EXDATE/RECURRENCE-ID but does not expand recurrences;
//     see Expand.
//
// A VEVENT that cannot be read is logged and skipped.
func Parse(sourceID string, body []byte) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("ics: empty body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(sourceID, comp)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "source", sourceID, "reason", perr.Error())
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "source", sourceID, "event_count", len(events))
	return events, nil
}

func parseVEvent(sourceID string, ve *ical.VEvent) (ParsedEvent, error) {
	out := ParsedEvent{SourceID: sourceID}

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if seqProp := ve.GetProperty(ical.ComponentPropertySequence); seqProp != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(seqProp.Value)); err == nil {
			out.Seq = n
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Kind = strings.TrimSpace(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		if first, _, _ := strings.Cut(p.Value, ","); strings.TrimSpace(first) != "" {
			out.Kind = strings.TrimSpace(first)
		}
	}
	if out.Kind == "" {
		return out, errors.New("missing SUMMARY and CATEGORIES")
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	if strings.EqualFold(param(dtStart, "VALUE"), "DATE") || !strings.Contains(dtStart.Value, "T") {
		// All-day entries are dropped by Expand; the date is kept for logging.
		out.AllDay = true
		out.Start, _ = parseICSTime(dtStart.Value, time.UTC)
		return out, nil
	}
	start, err := ve.GetStartAt()
	if err != nil {
		return out, err
	}
	out.Start = start
	out.StartTZ = param(dtStart, "TZID")

	if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
		if end, err := ve.GetEndAt(); err == nil {
			out.End = end
			out.HasEnd = true
		}
		out.EndTZ = param(dtEnd, "TZID")
	}

	if p := ve.GetProperty(propIncludeCalculation); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.IncludeCalculation = &n
		}
	}
	if p := ve.GetProperty(propLaborMinutes); p != nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(p.Value), 64); err == nil {
			out.Minutes = &f
		}
	}
	if p := ve.GetProperty(propParentID); p != nil {
		out.ParentID = p.Value
	}

	if rruleProp := ve.GetProperty(ical.ComponentPropertyRrule); rruleProp != nil {
		out.RawRRule = rruleProp.Value
	}

	// EXDATE can appear multiple times, each with a comma separated list.
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, start.Location()); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if ridProp := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); ridProp != nil {
		if t, err := parseICSTime(ridProp.Value, start.Location()); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

func param(p *ical.IANAProperty, name string) string {
	if p == nil || p.ICalParameters == nil {
		return ""
	}
	if vs, ok := p.ICalParameters[name]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// parseICSTime parses a basic ICS date/date-time string. Floating values are
// read in loc, which is the owning event's DTSTART location.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if loc == nil {
		loc = time.UTC
	}

	// UTC form, e.g., 20250101T090000Z
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	// Local date-time, e.g., 20250101T090000
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	// Date-only, e.g., 20250101
	return time.ParseInLocation("20060102", v, loc)
}
