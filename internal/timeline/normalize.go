package timeline

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"laborline/internal/model"
)

// Normalize converts raw records into intervals. Records that cannot be
// normalized are dropped and reported; they never abort the batch.
//
// Rules applied per record:
//   - start is required and must parse
//   - point kinds (Clock-In/Clock-Out) get end := start
//   - a missing end becomes start + |mins| when mins is known, else start
//   - includeInCalculation is decided here, once: an explicit 0/1 wins,
//     otherwise the kind's default applies
//   - a precomputed mins value is the labor duration; Break takes |mins|
//   - without mins the duration is end-start minus the optional break window
func (a *Analyzer) Normalize(raw []model.RawRecord) ([]model.Interval, []model.ValidationError) {
	out := make([]model.Interval, 0, len(raw))
	errs := make([]model.ValidationError, 0)

	for i, rec := range raw {
		iv, err := a.normalizeRecord(i, rec)
		if err != nil {
			errs = append(errs, model.ValidationError{
				RecordID: rec.ID,
				Index:    i,
				Reason:   err.Error(),
			})
			continue
		}
		out = append(out, iv)
	}
	return out, errs
}

func (a *Analyzer) normalizeRecord(i int, rec model.RawRecord) (model.Interval, error) {
	kind := model.Kind(strings.TrimSpace(rec.Kind))

	start, err := parseTimestamp(rec.Start, rec.StartTZ, a.loc)
	if err != nil {
		if errors.Is(err, errEmptyTimestamp) {
			return model.Interval{}, errors.New("missing start")
		}
		return model.Interval{}, fmt.Errorf("invalid start: %w", err)
	}

	if rec.Minutes != nil {
		if err := checkMinutes(*rec.Minutes); err != nil {
			return model.Interval{}, err
		}
	}

	var end time.Time
	switch {
	case kind.IsPoint():
		end = start
	case strings.TrimSpace(rec.End) != "" && rec.End != "null":
		end, err = parseTimestamp(rec.End, rec.EndTZ, a.loc)
		if err != nil {
			return model.Interval{}, fmt.Errorf("invalid end: %w", err)
		}
	case rec.Minutes != nil:
		end = start.Add(minutes(math.Abs(*rec.Minutes)))
	default:
		end = start
	}

	if end.Before(start) {
		return model.Interval{}, errors.New("end before start")
	}

	include := a.defaultInclude(kind)
	if rec.IncludeInCalculation != nil {
		include = *rec.IncludeInCalculation != 0
	}

	dur, err := a.laborDuration(kind, rec, start, end)
	if err != nil {
		return model.Interval{}, err
	}

	id := rec.ID
	if id == "" {
		id = fmt.Sprintf("#%d", i)
	}

	return model.Interval{
		ID:                   id,
		Kind:                 kind,
		Start:                start.In(a.loc),
		End:                  end.In(a.loc),
		StartTZ:              rec.StartTZ,
		EndTZ:                rec.EndTZ,
		IncludeInCalculation: include,
		Duration:             dur,
		Description:          rec.Description,
		ParentID:             rec.ParentID,
		Seq:                  i,
	}, nil
}

func (a *Analyzer) laborDuration(kind model.Kind, rec model.RawRecord, start, end time.Time) (time.Duration, error) {
	if rec.Minutes != nil {
		m := *rec.Minutes
		if kind == model.KindBreak {
			m = math.Abs(m)
		}
		if m < 0 {
			return 0, errors.New("negative duration")
		}
		return minutes(m), nil
	}

	dur := end.Sub(start)
	if rec.BreakStart == "" || rec.BreakEnd == "" {
		return dur, nil
	}

	brStart, err := parseTimestamp(rec.BreakStart, rec.StartTZ, a.loc)
	if err != nil {
		return 0, fmt.Errorf("invalid break start: %w", err)
	}
	brEnd, err := parseTimestamp(rec.BreakEnd, rec.EndTZ, a.loc)
	if err != nil {
		return 0, fmt.Errorf("invalid break end: %w", err)
	}
	brk := brEnd.Sub(brStart)
	if brk < 0 {
		return 0, errors.New("break ends before it starts")
	}
	if brk > dur {
		return 0, errors.New("break longer than event")
	}
	return dur - brk, nil
}

// maxMinutes is the largest magnitude a time.Duration can hold, in minutes.
const maxMinutes = float64(math.MaxInt64) / float64(time.Minute)

// checkMinutes rejects mins values that cannot be a duration.
func checkMinutes(m float64) error {
	if math.IsNaN(m) || math.IsInf(m, 0) || math.Abs(m) >= maxMinutes {
		return fmt.Errorf("invalid duration %v", m)
	}
	return nil
}

func minutes(m float64) time.Duration {
	return time.Duration(math.Round(m * float64(time.Minute)))
}
