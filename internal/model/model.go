package model

import (
	"fmt"
	"time"
)

// Kind labels a labor event. The set is open; the constants below are the
// labels the engine gives special meaning to.
type Kind string

const (
	KindWork     Kind = "Work"
	KindTravel   Kind = "Travel"
	KindBreak    Kind = "Break"
	KindLunch    Kind = "Lunch"
	KindClockIn  Kind = "Clock-In"
	KindClockOut Kind = "Clock-Out"

	// KindMissing marks synthetic rows covering a gap between events.
	KindMissing Kind = "Missing times"
)

// IsPoint reports whether the kind is a point-in-time event (start == end).
func (k Kind) IsPoint() bool {
	return k == KindClockIn || k == KindClockOut
}

// Billable is the default includeInCalculation for a kind when the record
// does not state it explicitly.
func (k Kind) Billable() bool {
	switch k {
	case KindBreak, KindLunch, KindClockIn, KindClockOut, KindMissing:
		return false
	default:
		return true
	}
}

// RawRecord is a labor event as delivered by an event store, before
// normalization. Timestamps are kept as strings so that unparseable values
// can be reported per record instead of failing a whole decode.
type RawRecord struct {
	ID   string `json:"id" bson:"id"`
	Kind string `json:"kind" bson:"event_name"`

	Start   string `json:"start" bson:"projectStart"`
	End     string `json:"end,omitempty" bson:"projectFinish,omitempty"`
	StartTZ string `json:"start_tz,omitempty" bson:"projectStartTz,omitempty"`
	EndTZ   string `json:"end_tz,omitempty" bson:"projectFinishTz,omitempty"`

	// IncludeInCalculation is 0 or 1; nil means "use the kind's default".
	IncludeInCalculation *int `json:"include_calculation,omitempty" bson:"include_calculation,omitempty"`

	// Minutes is a precomputed, possibly signed, duration.
	Minutes *float64 `json:"mins,omitempty" bson:"mins,omitempty"`

	// BreakStart/BreakEnd describe a break taken inside the event.
	BreakStart string `json:"br_start,omitempty" bson:"brStart,omitempty"`
	BreakEnd   string `json:"br_end,omitempty" bson:"brEnd,omitempty"`

	Description string `json:"description,omitempty" bson:"description,omitempty"`
	ParentID    string `json:"parent_id,omitempty" bson:"parent_id,omitempty"`
}

// Interval is a normalized labor event. End >= Start always holds.
type Interval struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	// Display timezone labels; informational only.
	StartTZ string `json:"start_tz,omitempty"`
	EndTZ   string `json:"end_tz,omitempty"`

	IncludeInCalculation bool `json:"include_in_calculation"`

	// Duration is the labor time this interval contributes when included.
	Duration time.Duration `json:"duration"`

	Description string `json:"description,omitempty"`
	ParentID    string `json:"parent_id,omitempty"`

	// Synthetic is set on display-only rows produced by the engine.
	Synthetic bool `json:"synthetic,omitempty"`

	// Seq is the position of the source record in the input.
	Seq int `json:"-"`
}

// Node is an interval with the intervals whose ParentID names it.
type Node struct {
	Interval
	Children []Node `json:"children,omitempty"`
}

// Minutes returns Duration in minutes.
func (iv Interval) Minutes() float64 {
	return iv.Duration.Minutes()
}

// TimeRange is a closed range of instants.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) Duration() time.Duration {
	return r.To.Sub(r.From)
}

// DayGroup holds the intervals whose start falls on the same local date.
type DayGroup struct {
	// Date is the local calendar date in YYYY-MM-DD form.
	Date string `json:"date"`
	// Day is local midnight of Date.
	Day time.Time `json:"day"`

	// Intervals are sorted by start, ties kept in input order.
	Intervals []Interval `json:"intervals"`

	BillableMinutes float64   `json:"billable_minutes"`
	CoveringRange   TimeRange `json:"covering_range"`
}

// Gap is a part of a day's covering range not covered by any interval.
type Gap struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (g Gap) Minutes() float64 {
	return g.To.Sub(g.From).Minutes()
}

// OverlapConflict is one pair of intervals intersecting by more than the
// overlap threshold.
type OverlapConflict struct {
	Participants [2]string     `json:"participants"`
	Window       TimeRange     `json:"window"`
	Duration     time.Duration `json:"duration"`
}

// DaySummary is the per-day result handed to the rendering layer.
type DaySummary struct {
	Date string `json:"date"`

	// Intervals includes synthetic "Missing times" rows, sorted by start.
	Intervals []Interval `json:"intervals"`

	BillableMinutes float64 `json:"billable_minutes"`
	GapMinutes      float64 `json:"gap_minutes"`
	OverlapCount    int     `json:"overlap_count"`

	// OverlapIDs lists every interval taking part in a qualifying overlap.
	OverlapIDs []string          `json:"overlap_ids"`
	Overlaps   []OverlapConflict `json:"overlaps"`
	Gaps       []Gap             `json:"gaps"`

	CoveringRange TimeRange `json:"covering_range"`

	Receipts map[string]ReceiptMatch `json:"receipts,omitempty"`
}

// ValidationError describes a raw record that could not be normalized.
type ValidationError struct {
	RecordID string `json:"record_id"`
	Index    int    `json:"index"`
	Reason   string `json:"reason"`
}

func (e ValidationError) Error() string {
	if e.RecordID == "" {
		return fmt.Sprintf("record #%d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("record %s: %s", e.RecordID, e.Reason)
}

// Receipt is an expense receipt captured on a job. Time is a wall clock
// label such as "9:15am"; the literal "null" means midnight.
type Receipt struct {
	ID     string  `json:"id" bson:"id"`
	Date   string  `json:"date" bson:"date"`
	Time   string  `json:"time" bson:"time"`
	Vendor string  `json:"vendor,omitempty" bson:"vendor,omitempty"`
	Amount float64 `json:"amount,omitempty" bson:"amount,omitempty"`

	// At is filled in during matching.
	At time.Time `json:"at,omitempty" bson:"-"`
}

// ReceiptMatch holds the receipts sharing an interval's calendar date.
type ReceiptMatch struct {
	// Within lists receipts timed inside [start, end].
	Within []Receipt `json:"within"`
	// NoTime lists same-date receipts outside the interval.
	NoTime []Receipt `json:"no_time"`
}
