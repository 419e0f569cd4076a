// Package render draws an analysis report as a terminal timeline.
package render

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"laborline/internal/model"
	"laborline/internal/timeline"
)

var (
	red    = lipgloss.Color("#f38ba8")
	yellow = lipgloss.Color("#f9e2af")
	blue   = lipgloss.Color("#74c7ec")
	grey   = lipgloss.Color("#a6adc8")

	dayStyle     = lipgloss.NewStyle().Foreground(blue).Bold(true)
	missingStyle = lipgloss.NewStyle().Foreground(red)
	overlapStyle = lipgloss.NewStyle().Foreground(yellow)
	mutedStyle   = lipgloss.NewStyle().Foreground(grey)
	errorStyle   = lipgloss.NewStyle().Foreground(red).Bold(true)
)

const clock = "15:04"

// Text renders one block per day: a row per interval with start, end,
// kind and labor time, then a footer with the day's totals. Missing-time
// rows are red and rows taking part in an overlap are yellow.
func Text(rep timeline.Report, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	var b strings.Builder

	if len(rep.Days) == 0 {
		b.WriteString(mutedStyle.Render("no labor events"))
		b.WriteString("\n")
	}

	for i, day := range rep.Days {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(dayStyle.Render(dayTitle(day, loc)))
		b.WriteString("\n")

		for _, iv := range day.Intervals {
			line := row(iv, loc)
			switch {
			case iv.Synthetic:
				line = missingStyle.Render(line)
			case slices.Contains(day.OverlapIDs, iv.ID):
				line = overlapStyle.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}

		b.WriteString(mutedStyle.Render(fmt.Sprintf("  billable %s   missing %s   overlaps %d",
			timeline.FormatMinutes(day.BillableMinutes, timeline.FormatShort),
			timeline.FormatMinutes(day.GapMinutes, timeline.FormatShort),
			day.OverlapCount,
		)))
		b.WriteString("\n")
	}

	if rep.Totals.Days > 1 {
		b.WriteString("\n")
		b.WriteString(dayStyle.Render(fmt.Sprintf("total %s over %d days",
			timeline.FormatMinutes(rep.Totals.BillableMinutes, timeline.FormatLong),
			rep.Span.TotalDays,
		)))
		b.WriteString("\n")
	}

	if len(rep.Errors) > 0 {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("%d record(s) skipped", len(rep.Errors))))
		b.WriteString("\n")
		for _, e := range rep.Errors {
			b.WriteString("  " + e.Error() + "\n")
		}
	}
	return b.String()
}

func dayTitle(day model.DaySummary, loc *time.Location) string {
	d, err := time.ParseInLocation("2006-01-02", day.Date, loc)
	if err != nil {
		return day.Date
	}
	return d.Format("Monday, Jan 2 2006")
}

func row(iv model.Interval, loc *time.Location) string {
	labor := "-"
	switch {
	case iv.Synthetic:
		labor = timeline.FormatMinutes(iv.End.Sub(iv.Start).Minutes(), timeline.FormatShort)
	case iv.IncludeInCalculation:
		labor = timeline.FormatMinutes(iv.Minutes(), timeline.FormatShort)
	}
	return fmt.Sprintf("  %s  %s  %-14s %6s  %s",
		iv.Start.In(loc).Format(clock),
		iv.End.In(loc).Format(clock),
		iv.Kind,
		labor,
		iv.ID,
	)
}
