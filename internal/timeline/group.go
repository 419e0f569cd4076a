package timeline

import (
	"slices"
	"time"

	"laborline/internal/model"
)

const dateKeyLayout = "2006-01-02"

// GroupByDay buckets intervals by the local calendar date of their start.
// An interval crossing midnight stays with its start date. Groups come out
// in date order; inside a group intervals are sorted by start with ties
// kept in input order.
func (a *Analyzer) GroupByDay(intervals []model.Interval) []model.DayGroup {
	groups := make([]model.DayGroup, 0)
	if len(intervals) == 0 {
		return groups
	}

	sorted := slices.Clone(intervals)
	slices.SortStableFunc(sorted, func(x, y model.Interval) int {
		return x.Start.Compare(y.Start)
	})

	// sorted by start means dates come out in order, so a new group starts
	// whenever the key changes.
	for _, iv := range sorted {
		key := iv.Start.In(a.loc).Format(dateKeyLayout)
		if n := len(groups); n == 0 || groups[n-1].Date != key {
			groups = append(groups, model.DayGroup{
				Date: key,
				Day:  a.dayStart(iv.Start),
			})
		}
		g := &groups[len(groups)-1]
		g.Intervals = append(g.Intervals, iv)
	}

	for i := range groups {
		groups[i].BillableMinutes = billable(groups[i].Intervals).Minutes()
		groups[i].CoveringRange = coveringRange(groups[i].Intervals)
	}
	return groups
}

func (a *Analyzer) dayStart(t time.Time) time.Time {
	lt := t.In(a.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, a.loc)
}

// billable sums the labor duration of real intervals flagged for inclusion.
func billable(intervals []model.Interval) time.Duration {
	var total time.Duration
	for _, iv := range intervals {
		if iv.Synthetic || !iv.IncludeInCalculation {
			continue
		}
		total += iv.Duration
	}
	return total
}

// coveringRange is [min start, max end] over the real intervals.
func coveringRange(intervals []model.Interval) model.TimeRange {
	var r model.TimeRange
	first := true
	for _, iv := range intervals {
		if iv.Synthetic {
			continue
		}
		if first {
			r.From, r.To = iv.Start, iv.End
			first = false
			continue
		}
		if iv.Start.Before(r.From) {
			r.From = iv.Start
		}
		if iv.End.After(r.To) {
			r.To = iv.End
		}
	}
	return r
}
