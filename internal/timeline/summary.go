package timeline

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"laborline/internal/model"
)

// missingNamespace seeds the name-based UUIDs of synthetic gap rows, so the
// same gap always gets the same id.
var missingNamespace = uuid.MustParse("8f0c2a47-5d3e-4d8a-9b61-2f7e4c1a9d05")

// Summarize builds the day summary for one group: totals, gaps, overlaps
// and a copy of the interval list with a "Missing times" row per gap.
func (a *Analyzer) Summarize(group model.DayGroup) model.DaySummary {
	gaps := FindGaps(group)
	ov := a.FindOverlaps(group)

	rows := make([]model.Interval, 0, len(group.Intervals)+len(gaps))
	rows = append(rows, group.Intervals...)
	for _, g := range gaps {
		rows = append(rows, a.missingRow(g))
	}
	slices.SortStableFunc(rows, func(x, y model.Interval) int {
		return x.Start.Compare(y.Start)
	})

	return model.DaySummary{
		Date:            group.Date,
		Intervals:       rows,
		BillableMinutes: billable(group.Intervals).Minutes(),
		GapMinutes:      GapMinutes(gaps),
		OverlapCount:    len(ov.Participants),
		OverlapIDs:      ov.Participants,
		Overlaps:        ov.Conflicts,
		Gaps:            gaps,
		CoveringRange:   coveringRange(group.Intervals),
	}
}

func (a *Analyzer) missingRow(g model.Gap) model.Interval {
	key := g.From.UTC().Format(time.RFC3339Nano) + "/" + g.To.UTC().Format(time.RFC3339Nano)
	return model.Interval{
		ID:                   uuid.NewSHA1(missingNamespace, []byte(key)).String(),
		Kind:                 model.KindMissing,
		Start:                g.From,
		End:                  g.To,
		StartTZ:              a.loc.String(),
		EndTZ:                a.loc.String(),
		IncludeInCalculation: false,
		Duration:             g.To.Sub(g.From),
		Synthetic:            true,
		Seq:                  -1,
	}
}
