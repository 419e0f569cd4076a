package timeline

import (
	"time"

	"laborline/internal/model"
)

// FindGaps sweeps a day's intervals (sorted by start, possibly
// overlapping) and returns the stretches between them that no interval
// covers.
//
// Only gaps strictly between the first start and the last covered end are
// reported; time after the last interval is never treated as missing.
func FindGaps(group model.DayGroup) []model.Gap {
	gaps := make([]model.Gap, 0)
	cursor := coveringRange(group.Intervals).From

	for _, iv := range group.Intervals {
		if iv.Synthetic {
			continue
		}
		switch {
		case !iv.Start.After(cursor) && !iv.End.Before(cursor):
			// Absorbed: the interval covers the cursor.
			if iv.End.After(cursor) {
				cursor = iv.End
			}
		case iv.End.Before(cursor):
			// Already covered by an earlier, longer interval.
		default:
			gaps = append(gaps, model.Gap{From: cursor, To: iv.Start})
			cursor = iv.End
		}
	}
	return gaps
}

// GapMinutes sums the length of gaps in minutes.
func GapMinutes(gaps []model.Gap) float64 {
	var total time.Duration
	for _, g := range gaps {
		total += g.To.Sub(g.From)
	}
	return total.Minutes()
}
