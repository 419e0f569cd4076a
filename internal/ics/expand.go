package ics

import (
	"errors"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "laborline/internal/log"
	"laborline/internal/model"
)

const (
	defaultMaxOccurrencesPerEvent = 5000
)

// ExpandConfig controls how recurrence expansion is performed.
type ExpandConfig struct {
	// RangeStart / RangeEnd define the inclusive window for occurrences.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent is a safety cap to avoid infinite or extremely
	// large expansions. If zero, defaultMaxOccurrencesPerEvent is used.
	MaxOccurrencesPerEvent int
}

// ExpandResult wraps the expanded records and the UIDs that were truncated.
type ExpandResult struct {
	Records []model.RawRecord
	// TruncatedEvents records UIDs that hit the MaxOccurrencesPerEvent cap.
	TruncatedEvents []string
	// SkippedAllDay counts all-day entries, which are calendar notes rather
	// than labor and are never emitted.
	SkippedAllDay int
}

// Expand turns parsed events into raw labor records within the window:
//
//   - Single events are kept when they touch the window
//   - RRULE-based recurrence, with EXDATE removal
//   - RECURRENCE-ID overrides replace the matching instance
//
// Output is ordered by start, then ID.
func Expand(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	// Group base events and overrides by UID.
	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	for _, ev := range events {
		if ev.AllDay {
			result.SkippedAllDay++
			continue
		}
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
		} else {
			baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
		}
	}

	type occurrence struct {
		start time.Time
		rec   model.RawRecord
	}
	all := make([]occurrence, 0)

	for uid, baseEvents := range baseByUID {
		ov := overridesByUID[uid]
		truncated := false

		for _, ev := range baseEvents {
			var recs []model.RawRecord
			var starts []time.Time
			if ev.RawRRule == "" {
				recs, starts = expandSingle(ev, ov, cfg)
			} else {
				var hitCap bool
				recs, starts, hitCap = expandRecurring(ev, ov, cfg)
				truncated = truncated || hitCap
			}
			for i := range recs {
				all = append(all, occurrence{start: starts[i], rec: recs[i]})
			}
		}

		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Warn("expand: truncated occurrences for UID due to cap",
				"uid", uid,
				"cap", cfg.MaxOccurrencesPerEvent,
			)
		}
	}

	// Map iteration order is random; sort so the output is reproducible.
	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].start.Equal(all[j].start) {
			return all[i].start.Before(all[j].start)
		}
		return all[i].rec.ID < all[j].rec.ID
	})
	sort.Strings(result.TruncatedEvents)

	result.Records = make([]model.RawRecord, 0, len(all))
	for _, o := range all {
		result.Records = append(result.Records, o.rec)
	}
	return result, nil
}

func expandSingle(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.RawRecord, []time.Time) {
	end := ev.End
	if !ev.HasEnd {
		end = ev.Start
	}
	if !touches(ev.Start, end, cfg.RangeStart, cfg.RangeEnd) {
		return nil, nil
	}
	if o, ok := findOverrideForStart(overrides, ev.Start); ok {
		ev = o
	}
	return []model.RawRecord{toRecord(ev, ev.UID, ev.Start, ev.End)}, []time.Time{ev.Start}
}

func expandRecurring(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]model.RawRecord, []time.Time, bool) {
	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return nil, nil, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	occTimes := set.Between(cfg.RangeStart.In(ev.Start.Location()), cfg.RangeEnd.In(ev.Start.Location()), true)

	hitCap := false
	if len(occTimes) > cfg.MaxOccurrencesPerEvent {
		occTimes = occTimes[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	dur := time.Duration(0)
	if ev.HasEnd {
		dur = ev.End.Sub(ev.Start)
	}

	recs := make([]model.RawRecord, 0, len(occTimes))
	starts := make([]time.Time, 0, len(occTimes))
	for _, occStart := range occTimes {
		id := ev.UID + "/" + occStart.UTC().Format("20060102T150405Z")
		inst := ev
		start, end := occStart, occStart.Add(dur)
		if o, ok := findOverrideForStart(overrides, occStart); ok {
			inst = o
			start, end = o.Start, o.End
		}
		recs = append(recs, toRecord(inst, id, start, end))
		starts = append(starts, start)
	}
	return recs, starts, hitCap
}

// findOverrideForStart finds an override whose RECURRENCE-ID equals start.
func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// toRecord renders an occurrence as a RawRecord. Times are written as
// RFC 3339 so the offset survives; TZIDs become the tz labels.
func toRecord(ev ParsedEvent, id string, start, end time.Time) model.RawRecord {
	rec := model.RawRecord{
		ID:                   id,
		Kind:                 ev.Kind,
		Start:                start.Format(time.RFC3339),
		StartTZ:              ev.StartTZ,
		EndTZ:                ev.EndTZ,
		IncludeInCalculation: ev.IncludeCalculation,
		Minutes:              ev.Minutes,
		Description:          ev.Description,
		ParentID:             ev.ParentID,
	}
	if ev.HasEnd {
		rec.End = end.Format(time.RFC3339)
	}
	return rec
}

func touches(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aEnd.Before(bStart) && !bEnd.Before(aStart)
}
