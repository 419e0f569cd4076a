// Package timeline turns raw labor events into per-day summaries: billable
// totals, missing-time gaps and overlapping events.
//
// Everything here is a pure function of its input. Callers keep the latest
// Report themselves and re-run the analysis whenever the data changes.
package timeline

import (
	"errors"
	"time"

	"laborline/internal/model"
)

// DefaultOverlapThreshold is the minimum intersection two intervals need
// before they are reported as overlapping.
const DefaultOverlapThreshold = time.Minute

var ErrInvalidOptions = errors.New("timeline: invalid options")

// Options control an Analyzer. The zero value is usable.
type Options struct {
	// Location decides calendar-day boundaries and how naive timestamps
	// without a tz label are read. Nil means time.Local.
	Location *time.Location

	// OverlapThreshold; zero means DefaultOverlapThreshold.
	OverlapThreshold time.Duration

	// Include overrides the per-kind includeInCalculation default for
	// records that do not state it explicitly.
	Include map[model.Kind]bool
}

// Analyzer runs the analysis with a fixed set of options. It holds no
// mutable state and is safe for concurrent use.
type Analyzer struct {
	loc       *time.Location
	threshold time.Duration
	include   map[model.Kind]bool
}

// New validates opts and returns an Analyzer.
func New(opts Options) (*Analyzer, error) {
	if opts.OverlapThreshold < 0 {
		return nil, errors.Join(ErrInvalidOptions, errors.New("negative overlap threshold"))
	}
	a := &Analyzer{
		loc:       opts.Location,
		threshold: opts.OverlapThreshold,
		include:   make(map[model.Kind]bool, len(opts.Include)),
	}
	if a.loc == nil {
		a.loc = time.Local
	}
	if a.threshold == 0 {
		a.threshold = DefaultOverlapThreshold
	}
	for k, v := range opts.Include {
		a.include[k] = v
	}
	return a, nil
}

// Default returns an Analyzer with default options in loc.
func Default(loc *time.Location) *Analyzer {
	a, _ := New(Options{Location: loc})
	return a
}

// Location returns the location used for day boundaries.
func (a *Analyzer) Location() *time.Location {
	return a.loc
}

func (a *Analyzer) defaultInclude(k model.Kind) bool {
	if v, ok := a.include[k]; ok {
		return v
	}
	return k.Billable()
}
