package records

import (
	"errors"
	"testing"
)

func TestDecodeEventStoreNames(t *testing.T) {
	recs, err := Decode([]byte(`{"data": [
		{"id": 41, "event_name": "Work", "projectStart": "2024-03-04 09:00", "projectFinish": "2024-03-04 12:00",
		 "projectStartTz": "America/Los_Angeles", "include_calculation": "1", "mins": "180",
		 "brStart": "2024-03-04 10:00", "brEnd": "2024-03-04 10:15"},
		{"id": "c1", "event_name": "Clock-In", "projectStart": "2024-03-04 08:55", "include_calculation": 0, "mins": null}
	]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}

	w := recs[0]
	if w.ID != "41" || w.Kind != "Work" {
		t.Errorf("unexpected id/kind %q/%q", w.ID, w.Kind)
	}
	if w.Start != "2024-03-04 09:00" || w.End != "2024-03-04 12:00" || w.StartTZ != "America/Los_Angeles" {
		t.Errorf("unexpected times %+v", w)
	}
	if w.IncludeInCalculation == nil || *w.IncludeInCalculation != 1 {
		t.Errorf("expected include flag 1, got %v", w.IncludeInCalculation)
	}
	if w.Minutes == nil || *w.Minutes != 180 {
		t.Errorf("expected 180 minutes, got %v", w.Minutes)
	}
	if w.BreakStart != "2024-03-04 10:00" || w.BreakEnd != "2024-03-04 10:15" {
		t.Errorf("expected break window, got %q-%q", w.BreakStart, w.BreakEnd)
	}

	c := recs[1]
	if c.IncludeInCalculation == nil || *c.IncludeInCalculation != 0 {
		t.Errorf("expected include flag 0, got %v", c.IncludeInCalculation)
	}
	if c.Minutes != nil {
		t.Errorf("expected null mins to stay nil, got %v", *c.Minutes)
	}
}

func TestDecodeEngineNames(t *testing.T) {
	recs, err := Decode([]byte(`[{"id": "t1", "kind": "Travel", "start": "2024-03-04T08:00:00Z", "end": "2024-03-04T08:30:00Z", "include_calculation": true}]`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(recs) != 1 || recs[0].Kind != "Travel" || recs[0].End != "2024-03-04T08:30:00Z" {
		t.Fatalf("unexpected records %+v", recs)
	}
	if f := recs[0].IncludeInCalculation; f == nil || *f != 1 {
		t.Errorf("expected true to map to 1, got %v", f)
	}
}

func TestDecodeDropsNonFiniteMinutes(t *testing.T) {
	recs, err := Decode([]byte(`[
		{"id": "a", "kind": "Work", "start": "2024-03-04T09:00", "mins": "NaN"},
		{"id": "b", "kind": "Work", "start": "2024-03-04T09:00", "mins": "Inf"},
		{"id": "c", "kind": "Work", "start": "2024-03-04T09:00", "mins": "-infinity"},
		{"id": "d", "kind": "Work", "start": "2024-03-04T09:00", "mins": 1e12}
	]`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for _, r := range recs[:3] {
		if r.Minutes != nil {
			t.Errorf("%s: expected non-finite mins to be dropped, got %v", r.ID, *r.Minutes)
		}
	}
	// Finite but oversized values are left for the analyzer to reject.
	if recs[3].Minutes == nil || *recs[3].Minutes != 1e12 {
		t.Errorf("expected 1e12 to decode, got %v", recs[3].Minutes)
	}
}

func TestDecodeRejectsOtherPayloads(t *testing.T) {
	for _, in := range []string{``, `"hello"`, `{"items": []}`} {
		if _, err := Decode([]byte(in)); !errors.Is(err, ErrNotRecords) {
			t.Errorf("Decode(%q): expected ErrNotRecords, got %v", in, err)
		}
	}
	if _, err := Decode([]byte(`[{"id": `)); err == nil {
		t.Error("expected syntax error")
	}
}

func TestDecodeEmptyList(t *testing.T) {
	recs, err := Decode([]byte(`{"data": []}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", recs)
	}
}
