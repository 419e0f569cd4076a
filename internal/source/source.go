// Package source turns configured event sources into raw labor records.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"laborline/internal/config"
	"laborline/internal/fetch"
	"laborline/internal/ics"
	appLog "laborline/internal/log"
	"laborline/internal/model"
	"laborline/internal/records"
)

// ErrNoSources is returned by Collect when nothing is configured.
var ErrNoSources = errors.New("source: no sources configured")

// Window bounds the records a source returns. ICS recurrences are expanded
// inside it and the event store filters by it; JSON exports are returned
// whole.
type Window struct {
	From time.Time
	To   time.Time
}

// Source yields raw records for one configured feed.
type Source interface {
	ID() string
	Records(ctx context.Context, w Window) ([]model.RawRecord, error)
}

// RecordStore is the part of records.MongoStore the mongo source needs.
type RecordStore interface {
	Records(ctx context.Context, workOrder string, from, to time.Time) ([]model.RawRecord, error)
}

// Build creates one Source per config entry. store may be nil when no
// mongo source is configured.
func Build(cfgs []config.SourceConfig, f *fetch.Fetcher, store RecordStore) ([]Source, error) {
	out := make([]Source, 0, len(cfgs))
	for _, c := range cfgs {
		switch c.Type {
		case config.SourceICS:
			out = append(out, &icsSource{id: c.ID, fetcher: f, url: c.URL})
		case config.SourceJSON:
			out = append(out, &jsonSource{id: c.ID, fetcher: f, url: c.URL})
		case config.SourceFile:
			out = append(out, &fileSource{id: c.ID, path: c.Path})
		case config.SourceMongo:
			if store == nil {
				return nil, fmt.Errorf("source %s: mongo store is not connected", c.ID)
			}
			out = append(out, &mongoSource{id: c.ID, store: store, workOrder: c.WorkOrder})
		default:
			return nil, fmt.Errorf("source %s: unknown type %q", c.ID, c.Type)
		}
	}
	return out, nil
}

// Collect reads every source concurrently and concatenates their records
// in source order. A failing source is logged and skipped; its error is
// joined into the returned error alongside whatever the others produced.
func Collect(ctx context.Context, sources []Source, w Window) ([]model.RawRecord, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}

	results := make([][]model.RawRecord, len(sources))
	errs := make([]error, len(sources))

	var wg sync.WaitGroup
	for i, s := range sources {
		wg.Add(1)
		go func(i int, s Source) {
			defer wg.Done()
			recs, err := s.Records(ctx, w)
			if err != nil {
				errs[i] = fmt.Errorf("source %s: %w", s.ID(), err)
				appLog.Error("source read failed", err, "source", s.ID())
				return
			}
			results[i] = recs
		}(i, s)
	}
	wg.Wait()

	out := make([]model.RawRecord, 0)
	for _, recs := range results {
		out = append(out, recs...)
	}
	return out, errors.Join(errs...)
}

type icsSource struct {
	id      string
	fetcher *fetch.Fetcher
	url     string
}

func (s *icsSource) ID() string { return s.id }

func (s *icsSource) Records(ctx context.Context, w Window) ([]model.RawRecord, error) {
	res, err := s.fetcher.Fetch(ctx, fetch.Target{ID: s.id, URL: s.url, Accept: "text/calendar"})
	if err != nil {
		return nil, err
	}
	return fromICS(s.id, res.Body, w)
}

type jsonSource struct {
	id      string
	fetcher *fetch.Fetcher
	url     string
}

func (s *jsonSource) ID() string { return s.id }

func (s *jsonSource) Records(ctx context.Context, _ Window) ([]model.RawRecord, error) {
	res, err := s.fetcher.Fetch(ctx, fetch.Target{ID: s.id, URL: s.url, Accept: "application/json"})
	if err != nil {
		return nil, err
	}
	return records.Decode(res.Body)
}

type fileSource struct {
	id   string
	path string
}

func (s *fileSource) ID() string { return s.id }

func (s *fileSource) Records(_ context.Context, w Window) ([]model.RawRecord, error) {
	return ReadFile(s.path, w)
}

type mongoSource struct {
	id        string
	store     RecordStore
	workOrder string
}

func (s *mongoSource) ID() string { return s.id }

func (s *mongoSource) Records(ctx context.Context, w Window) ([]model.RawRecord, error) {
	return s.store.Records(ctx, s.workOrder, w.From, w.To)
}

// ReadFile loads records from a .ics or .json file. ICS recurrences are
// expanded within w.
func ReadFile(path string, w Window) ([]model.RawRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".ics") {
		return fromICS(filepath.Base(path), data, w)
	}
	return records.Decode(data)
}

func fromICS(id string, body []byte, w Window) ([]model.RawRecord, error) {
	events, err := ics.Parse(id, body)
	if err != nil {
		return nil, err
	}
	res, err := ics.Expand(events, ics.ExpandConfig{RangeStart: w.From, RangeEnd: w.To})
	if err != nil {
		return nil, err
	}
	if res.SkippedAllDay > 0 {
		appLog.Debug("ics all-day entries ignored", "source", id, "count", res.SkippedAllDay)
	}
	return res.Records, nil
}
