package timeline

import (
	"time"

	"laborline/internal/model"
)

// Report is the full analysis of one batch of raw records.
type Report struct {
	Days     []model.DaySummary      `json:"days"`
	Errors   []model.ValidationError `json:"errors"`
	Totals   Totals                  `json:"totals"`
	Span     Span                    `json:"span"`
	Location string                  `json:"location"`

	// Tree nests every interval under its parent; see Nest.
	Tree []model.Node `json:"tree"`
}

// Totals aggregates the day summaries.
type Totals struct {
	BillableMinutes float64 `json:"billable_minutes"`
	BillableHours   float64 `json:"billable_hours"`
	GapMinutes      float64 `json:"gap_minutes"`
	OverlapCount    int     `json:"overlap_count"`
	Intervals       int     `json:"intervals"`
	Days            int     `json:"days"`
}

// Span covers the first start to the last end across all days.
type Span struct {
	First     time.Time `json:"first"`
	Last      time.Time `json:"last"`
	TotalDays int       `json:"total_days"`
}

// Analyze runs normalize, group and summarize over raw. Empty input yields
// an empty report.
func (a *Analyzer) Analyze(raw []model.RawRecord) Report {
	intervals, errs := a.Normalize(raw)
	groups := a.GroupByDay(intervals)

	rep := Report{
		Days:     make([]model.DaySummary, 0, len(groups)),
		Errors:   errs,
		Location: a.loc.String(),
	}

	var billableTotal, gapTotal time.Duration
	for _, g := range groups {
		sum := a.Summarize(g)
		rep.Days = append(rep.Days, sum)

		billableTotal += billable(g.Intervals)
		for _, gap := range sum.Gaps {
			gapTotal += gap.To.Sub(gap.From)
		}
		rep.Totals.OverlapCount += sum.OverlapCount
		rep.Totals.Intervals += len(g.Intervals)
	}

	rep.Totals.BillableMinutes = billableTotal.Minutes()
	rep.Totals.BillableHours = billableTotal.Hours()
	rep.Totals.GapMinutes = gapTotal.Minutes()
	rep.Totals.Days = len(groups)
	rep.Span = a.span(intervals)
	rep.Tree = Nest(intervals)
	return rep
}

func (a *Analyzer) span(intervals []model.Interval) Span {
	r := coveringRange(intervals)
	if r.From.IsZero() && r.To.IsZero() {
		return Span{}
	}
	return Span{
		First:     r.From,
		Last:      r.To,
		TotalDays: a.calendarDays(r.From, r.To),
	}
}

// calendarDays counts the local dates from a to b inclusive.
func (a *Analyzer) calendarDays(from, to time.Time) int {
	f := from.In(a.loc)
	t := to.In(a.loc)
	// Noon UTC avoids DST-length days skewing the division.
	fd := time.Date(f.Year(), f.Month(), f.Day(), 12, 0, 0, 0, time.UTC)
	td := time.Date(t.Year(), t.Month(), t.Day(), 12, 0, 0, 0, time.UTC)
	return int(td.Sub(fd)/(24*time.Hour)) + 1
}
