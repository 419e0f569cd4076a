package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestFetchConditionalRequest(t *testing.T) {
	var hits, conditional atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("BEGIN:VCALENDAR"))
	}))
	defer srv.Close()

	f := New(t.TempDir())
	target := Target{ID: "crew", URL: srv.URL + "/crew.ics"}

	first, err := f.Fetch(context.Background(), target)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if first.FromCache || string(first.Body) != "BEGIN:VCALENDAR" {
		t.Fatalf("unexpected first result %+v", first)
	}

	second, err := f.Fetch(context.Background(), target)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !second.FromCache || string(second.Body) != "BEGIN:VCALENDAR" {
		t.Errorf("expected cached body on 304, got %+v", second)
	}
	if hits.Load() != 2 || conditional.Load() != 1 {
		t.Errorf("expected one conditional request, got hits=%d conditional=%d", hits.Load(), conditional.Load())
	}
}

func TestFetchFallsBackToCacheOnServerError(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	f := New(t.TempDir())
	target := Target{ID: "json", URL: srv.URL}
	if _, err := f.Fetch(context.Background(), target); err != nil {
		t.Fatalf("warm fetch: %v", err)
	}

	fail.Store(true)
	res, err := f.Fetch(context.Background(), target)
	if err != nil {
		t.Fatalf("expected fallback, got %v", err)
	}
	if !res.FromCache || string(res.Body) != "[]" {
		t.Errorf("unexpected fallback result %+v", res)
	}
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	var big, down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case down.Load():
			http.Error(w, "down", http.StatusServiceUnavailable)
		case big.Load():
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		default:
			_, _ = w.Write([]byte(`[{"id":"1"}]`))
		}
	}))
	defer srv.Close()

	f := New(t.TempDir()).WithMaxBody(32)
	target := Target{ID: "json", URL: srv.URL}
	if _, err := f.Fetch(context.Background(), target); err != nil {
		t.Fatalf("warm fetch: %v", err)
	}

	big.Store(true)
	res, err := f.Fetch(context.Background(), target)
	if err != nil {
		t.Fatalf("expected fallback to cached body, got %v", err)
	}
	if !res.FromCache || string(res.Body) != `[{"id":"1"}]` {
		t.Errorf("oversized body must not be served, got %q", res.Body)
	}

	// The oversized body must not have replaced the cache on disk.
	down.Store(true)
	res, err = f.Fetch(context.Background(), target)
	if err != nil {
		t.Fatalf("expected fallback, got %v", err)
	}
	if string(res.Body) != `[{"id":"1"}]` {
		t.Errorf("cache was overwritten, got %q", res.Body)
	}

	down.Store(false)
	_, err = New(t.TempDir()).WithMaxBody(32).Fetch(context.Background(), target)
	if !errors.Is(err, ErrBodyTooLarge) {
		t.Errorf("expected ErrBodyTooLarge without a cache, got %v", err)
	}
}

func TestFetchErrorWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	if _, err := New(t.TempDir()).Fetch(context.Background(), Target{URL: srv.URL}); err == nil {
		t.Fatal("expected error for 404 with empty cache")
	}
	if _, err := New(t.TempDir()).Fetch(context.Background(), Target{}); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestRedactURL(t *testing.T) {
	cases := map[string]string{
		"https://example.com/path/to/private.ics?token=abcd": "https://example.com/...(redacted)",
		"https://example.com?token=abcd":                     "https://example.com/...(redacted)",
		"not a url":                                          "feed://...(redacted)",
	}
	for in, want := range cases {
		if got := RedactURL(in); got != want {
			t.Errorf("RedactURL(%q) = %q, want %q", in, got, want)
		}
	}
}
