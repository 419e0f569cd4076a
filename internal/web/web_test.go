package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"laborline/internal/config"
	"laborline/internal/model"
	"laborline/internal/source"
	"laborline/internal/timeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubSource returns fixed records and counts calls.
type stubSource struct {
	id    string
	recs  []model.RawRecord
	err   error
	calls atomic.Int32
}

func (s *stubSource) ID() string { return s.id }

func (s *stubSource) Records(context.Context, source.Window) ([]model.RawRecord, error) {
	s.calls.Add(1)
	return s.recs, s.err
}

var fixedNow = time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.RateLimitPerMinute = 0
	return cfg
}

func newTestServer(cfg *config.Config, sources ...source.Source) *Server {
	return NewServer(cfg, Deps{
		Analyzer: timeline.Default(time.UTC),
		Sources:  sources,
		Now:      func() time.Time { return fixedNow },
	})
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func workDay() []model.RawRecord {
	return []model.RawRecord{
		{ID: "w1", Kind: "Work", Start: "2024-03-04 09:00", End: "2024-03-04 12:00"},
		{ID: "w2", Kind: "Work", Start: "2024-03-04 13:00", End: "2024-03-04 15:00"},
	}
}

func TestHealth(t *testing.T) {
	w := do(newTestServer(testConfig()), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK || w.Body.String() != "OK" {
		t.Fatalf("unexpected health response %d %q", w.Code, w.Body.String())
	}
}

func TestTimelineCachesUntilRefresh(t *testing.T) {
	src := &stubSource{id: "crew", recs: workDay()}
	s := newTestServer(testConfig(), src)

	w := do(s, http.MethodGet, "/api/timeline", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp timelineResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Report.Totals.BillableMinutes != 300 || resp.Report.Totals.GapMinutes != 60 {
		t.Errorf("unexpected totals %+v", resp.Report.Totals)
	}
	if !resp.RangeStart.Equal(time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected range start %v", resp.RangeStart)
	}

	do(s, http.MethodGet, "/api/timeline", "")
	if src.calls.Load() != 1 {
		t.Errorf("expected second request to be served from cache, got %d calls", src.calls.Load())
	}

	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if src.calls.Load() != 2 {
		t.Errorf("expected refresh to re-collect, got %d calls", src.calls.Load())
	}
	if !s.LastRefresh().Equal(fixedNow) {
		t.Errorf("expected last refresh to be recorded, got %v", s.LastRefresh())
	}
}

func TestTimelineText(t *testing.T) {
	s := newTestServer(testConfig(), &stubSource{id: "crew", recs: workDay()})
	w := do(s, http.MethodGet, "/api/timeline?format=text&days=3&backfill=0", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Missing times") {
		t.Errorf("expected missing row in text output:\n%s", w.Body.String())
	}
}

func TestTimelinePartialAndFailedSources(t *testing.T) {
	good := &stubSource{id: "good", recs: workDay()}
	bad := &stubSource{id: "bad", err: errors.New("unreachable")}

	w := do(newTestServer(testConfig(), good, bad), http.MethodGet, "/api/timeline", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected partial 200, got %d", w.Code)
	}
	var resp timelineResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.SourceErrors) != 1 || !strings.Contains(resp.SourceErrors[0], "source bad") {
		t.Errorf("expected the failing source to be listed, got %v", resp.SourceErrors)
	}

	w = do(newTestServer(testConfig(), bad), http.MethodGet, "/api/timeline", "")
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected 502 when every source fails, got %d", w.Code)
	}

	w = do(newTestServer(testConfig()), http.MethodGet, "/api/timeline", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected empty 200 without sources, got %d", w.Code)
	}
}

func TestTimelinePartialResultNotCached(t *testing.T) {
	good := &stubSource{id: "good", recs: workDay()}
	bad := &stubSource{id: "bad", err: errors.New("unreachable")}
	s := newTestServer(testConfig(), good, bad)

	for i := 0; i < 2; i++ {
		if w := do(s, http.MethodGet, "/api/timeline", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
	if good.calls.Load() != 2 || bad.calls.Load() != 2 {
		t.Errorf("expected partial result to be rebuilt, got good=%d bad=%d", good.calls.Load(), bad.calls.Load())
	}
}

func TestAnalyze(t *testing.T) {
	s := newTestServer(testConfig())
	body := `{
		"records": [
			{"id": 1, "event_name": "Work", "projectStart": "2024-03-04 09:00", "projectFinish": "2024-03-04 12:00"},
			{"id": 2, "event_name": "Work", "projectStart": "2024-03-04 11:30", "projectFinish": "2024-03-04 13:00"},
			{"id": 3, "event_name": "Work"}
		],
		"receipts": [{"id": "fuel", "date": "2024-03-04", "time": "10:00am"}]
	}`
	w := do(s, http.MethodPost, "/api/analyze", body)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var rep timeline.Report
	if err := json.Unmarshal(w.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rep.Days) != 1 || rep.Days[0].OverlapCount != 2 {
		t.Fatalf("expected one day with two overlapping records, got %+v", rep.Days)
	}
	if len(rep.Errors) != 1 || rep.Errors[0].RecordID != "3" {
		t.Errorf("expected record 3 to be rejected, got %+v", rep.Errors)
	}
	if m := rep.Days[0].Receipts["1"]; len(m.Within) != 1 {
		t.Errorf("expected fuel receipt within record 1, got %+v", rep.Days[0].Receipts)
	}
}

func TestAnalyzeBadRequests(t *testing.T) {
	s := newTestServer(testConfig())
	for _, body := range []string{`not json`, `{}`, `{"records": {"items": []}}`} {
		if w := do(s, http.MethodPost, "/api/analyze", body); w.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, w.Code)
		}
	}
}

func TestFormat(t *testing.T) {
	s := newTestServer(testConfig())
	w := do(s, http.MethodGet, "/api/format?minutes=125&style=long", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var got struct {
		Text  string  `json:"text"`
		Hours float64 `json:"hours"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got.Text != "2 hours and 5 minutes" {
		t.Errorf("unexpected text %q", got.Text)
	}

	if w := do(s, http.MethodGet, "/api/format?minutes=abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad minutes, got %d", w.Code)
	}
}

func TestBasicAuth(t *testing.T) {
	cfg := testConfig()
	cfg.BasicAuth = &config.BasicAuthConfig{Username: "ops", Password: "secret"}
	s := newTestServer(cfg)

	if w := do(s, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Errorf("health must stay open, got %d", w.Code)
	}
	if w := do(s, http.MethodGet, "/api/format?minutes=1", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without credentials, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/format?minutes=1", nil)
	req.SetBasicAuth("ops", "secret")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with credentials, got %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 2
	s := newTestServer(cfg)

	body := `{"records": []}`
	for i := 0; i < 2; i++ {
		if w := do(s, http.MethodPost, "/api/analyze", body); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
	if w := do(s, http.MethodPost, "/api/analyze", body); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 after the burst, got %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	cfg := testConfig()
	cfg.CORSOrigins = []string{"https://dispatch.example.com"}
	s := newTestServer(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/format?minutes=1", nil)
	req.Header.Set("Origin", "https://dispatch.example.com")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dispatch.example.com" {
		t.Errorf("expected CORS header, got %q", got)
	}
}
