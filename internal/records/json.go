// Package records decodes labor events from JSON exports and the event
// store. Both the engine's own field names and the event store's
// (event_name, projectStart, projectFinish, ...) are accepted.
package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"laborline/internal/model"
)

// ErrNotRecords is returned when a payload is neither an array of records
// nor an object with a "data" array.
var ErrNotRecords = errors.New("records: payload is not a record list")

// wireRecord is the union of both naming schemes. Fields that the event
// store sends with loose types are kept raw and coerced in toRaw.
type wireRecord struct {
	ID        json.RawMessage `json:"id"`
	Kind      string          `json:"kind"`
	EventName string          `json:"event_name"`

	Start         string `json:"start"`
	ProjectStart  string `json:"projectStart"`
	End           string `json:"end"`
	ProjectFinish string `json:"projectFinish"`

	StartTZ         string `json:"start_tz"`
	ProjectStartTz  string `json:"projectStartTz"`
	EndTZ           string `json:"end_tz"`
	FinishTZ        string `json:"finish_tz"`
	ProjectFinishTz string `json:"projectFinishTz"`

	IncludeCalculation json.RawMessage `json:"include_calculation"`
	Mins               json.RawMessage `json:"mins"`

	BrStart    string `json:"br_start"`
	BrStartAlt string `json:"brStart"`
	BrEnd      string `json:"br_end"`
	BrEndAlt   string `json:"brEnd"`

	Description string          `json:"description"`
	ParentID    json.RawMessage `json:"parent_id"`
}

// Decode reads a JSON array of records, or an object whose "data" field is
// such an array. Fields that cannot be coerced are left empty so that the
// analyzer reports them per record.
func Decode(data []byte) ([]model.RawRecord, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrNotRecords
	}

	var wire []wireRecord
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("records: %w", err)
		}
	case '{':
		var envelope struct {
			Data *[]wireRecord `json:"data"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("records: %w", err)
		}
		if envelope.Data == nil {
			return nil, ErrNotRecords
		}
		wire = *envelope.Data
	default:
		return nil, ErrNotRecords
	}

	out := make([]model.RawRecord, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.toRaw())
	}
	return out, nil
}

func (w wireRecord) toRaw() model.RawRecord {
	return model.RawRecord{
		ID:                   scalar(w.ID),
		Kind:                 first(w.Kind, w.EventName),
		Start:                first(w.Start, w.ProjectStart),
		End:                  first(w.End, w.ProjectFinish),
		StartTZ:              first(w.StartTZ, w.ProjectStartTz),
		EndTZ:                first(w.EndTZ, w.FinishTZ, w.ProjectFinishTz),
		IncludeInCalculation: flag(w.IncludeCalculation),
		Minutes:              number(w.Mins),
		BreakStart:           first(w.BrStart, w.BrStartAlt),
		BreakEnd:             first(w.BrEnd, w.BrEndAlt),
		Description:          w.Description,
		ParentID:             scalar(w.ParentID),
	}
}

func first(vs ...string) string {
	for _, v := range vs {
		if v != "" {
			return v
		}
	}
	return ""
}

// scalar renders a JSON string or number as a string; anything else is "".
func scalar(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// number accepts 12.5 or "12.5".
func number(raw json.RawMessage) *float64 {
	s := scalar(raw)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// flag accepts 0/1, "0"/"1" and true/false.
func flag(raw json.RawMessage) *int {
	raw = bytes.TrimSpace(raw)
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		n := 0
		if b {
			n = 1
		}
		return &n
	}
	f := number(raw)
	if f == nil {
		return nil
	}
	n := 0
	if *f != 0 {
		n = 1
	}
	return &n
}
