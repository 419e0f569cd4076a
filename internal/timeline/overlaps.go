package timeline

import (
	"cmp"
	"slices"
	"time"

	"laborline/internal/model"
)

// OverlapResult is the outcome of FindOverlaps.
type OverlapResult struct {
	// Conflicts holds every qualifying pair; pairs are never merged.
	Conflicts []model.OverlapConflict
	// Participants lists each interval in at least one conflict, once.
	Participants []string
}

// FindOverlaps compares every pair of real intervals in the group. A pair
// conflicts when the ranges intersect for longer than threshold; touching
// boundaries and sub-threshold slivers are ignored.
//
// Intervals are first put in a canonical order (start, end, id) so that
// the result does not depend on how the input was ordered.
func FindOverlaps(group model.DayGroup, threshold time.Duration) OverlapResult {
	res := OverlapResult{
		Conflicts:    make([]model.OverlapConflict, 0),
		Participants: make([]string, 0),
	}

	ivs := make([]model.Interval, 0, len(group.Intervals))
	for _, iv := range group.Intervals {
		if iv.Synthetic || iv.Kind == model.KindMissing {
			continue
		}
		ivs = append(ivs, iv)
	}
	slices.SortStableFunc(ivs, canonical)

	involved := make([]bool, len(ivs))
	for i := 0; i < len(ivs); i++ {
		for j := i + 1; j < len(ivs); j++ {
			a, b := ivs[i], ivs[j]
			if !(a.Start.Before(b.End) && b.Start.Before(a.End)) {
				continue
			}
			from := later(a.Start, b.Start)
			to := earlier(a.End, b.End)
			d := to.Sub(from)
			if d <= threshold {
				continue
			}
			res.Conflicts = append(res.Conflicts, model.OverlapConflict{
				Participants: [2]string{a.ID, b.ID},
				Window:       model.TimeRange{From: from, To: to},
				Duration:     d,
			})
			involved[i] = true
			involved[j] = true
		}
	}

	seen := make(map[string]bool)
	for i, iv := range ivs {
		if involved[i] && !seen[iv.ID] {
			seen[iv.ID] = true
			res.Participants = append(res.Participants, iv.ID)
		}
	}
	return res
}

// FindOverlaps runs FindOverlaps with the analyzer's threshold.
func (a *Analyzer) FindOverlaps(group model.DayGroup) OverlapResult {
	return FindOverlaps(group, a.threshold)
}

func canonical(x, y model.Interval) int {
	if c := x.Start.Compare(y.Start); c != 0 {
		return c
	}
	if c := x.End.Compare(y.End); c != 0 {
		return c
	}
	return cmp.Compare(x.ID, y.ID)
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func earlier(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
