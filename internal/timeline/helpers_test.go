package timeline

import (
	"testing"
	"time"

	"laborline/internal/model"
)

func utcAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	a, err := New(Options{Location: time.UTC})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func rec(id, kind, start, end string) model.RawRecord {
	return model.RawRecord{ID: id, Kind: kind, Start: start, End: end}
}

func at(hhmm string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", "2024-03-04 "+hhmm, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
