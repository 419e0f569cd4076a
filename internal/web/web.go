package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"laborline/internal/cache"
	"laborline/internal/config"
	appLog "laborline/internal/log"
	"laborline/internal/model"
	"laborline/internal/records"
	"laborline/internal/render"
	"laborline/internal/source"
	"laborline/internal/timeline"
)

const (
	timelinePrefix = "timeline:"
	maxDays        = 366
	maxBodyBytes   = 8 << 20
)

// Deps are the collaborators a Server needs. Cache defaults to an
// in-memory cache and Now to time.Now.
type Deps struct {
	Analyzer *timeline.Analyzer
	Sources  []source.Source
	Cache    cache.Cache
	Now      func() time.Time
}

// Server provides the HTTP API over the configured sources and the
// interval analysis engine. It is shared between gin handlers and the
// cron refresh job.
type Server struct {
	cfg      *config.Config
	analyzer *timeline.Analyzer
	sources  []source.Source
	cache    cache.Cache
	now      func() time.Time
	engine   *gin.Engine
	limiters *limiterStore

	mu          sync.RWMutex
	lastRefresh time.Time
}

// NewServer constructs a Server and registers its routes.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		cfg:      cfg,
		analyzer: deps.Analyzer,
		sources:  deps.Sources,
		cache:    deps.Cache,
		now:      deps.Now,
	}
	if s.analyzer == nil {
		s.analyzer = timeline.Default(cfg.Location())
	}
	if s.cache == nil {
		s.cache = cache.NewMemory()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if cfg.RateLimitPerMinute > 0 {
		s.limiters = newLimiterStore(cfg.RateLimitPerMinute)
	}
	s.engine = s.routes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(corsConfig(s.cfg.CORSOrigins)))
	}
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		r.Use(s.basicAuth())
	}

	r.GET("/health", s.handleHealth)

	api := r.Group("/api")
	api.GET("/timeline", s.handleTimeline)
	api.GET("/format", s.handleFormat)
	if s.limiters != nil {
		api.POST("/analyze", s.limiters.middleware(), s.handleAnalyze)
	} else {
		api.POST("/analyze", s.handleAnalyze)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	c.AllowOrigins = origins
	return c
}

// requestLogger logs one line per request through appLog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		appLog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password disables auth.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuth guards every route except /health.
func (s *Server) basicAuth() gin.HandlerFunc {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}
		u, p, ok := c.Request.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			c.Header("WWW-Authenticate", `Basic realm="laborline", charset="UTF-8"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// timelineResponse is the JSON response shape for /api/timeline.
type timelineResponse struct {
	Report       timeline.Report `json:"report"`
	RangeStart   time.Time       `json:"range_start"`
	RangeEnd     time.Time       `json:"range_end"`
	Timezone     string          `json:"timezone"`
	SourceErrors []string        `json:"source_errors,omitempty"`
	GeneratedAt  time.Time       `json:"generated_at"`
}

// handleTimeline analyzes the configured sources within a window around
// today.
//
// GET /api/timeline?days=7&backfill=7&format=json
//   - days:     how many days ahead to include (default horizon_days)
//   - backfill: how many past days to include (default backfill_days)
//   - format:   json (default) or text
func (s *Server) handleTimeline(c *gin.Context) {
	days := parseIntDefault(c.Query("days"), s.cfg.HorizonDays)
	if days <= 0 || days > maxDays {
		days = s.cfg.HorizonDays
	}
	backfill := parseIntDefault(c.Query("backfill"), s.cfg.BackfillDays)
	if backfill < 0 || backfill > maxDays {
		backfill = s.cfg.BackfillDays
	}

	resp, err := s.timeline(c.Request.Context(), days, backfill)
	if err != nil {
		appLog.Error("api timeline failed", err, "days", days, "backfill", backfill)
		writeError(c, http.StatusBadGateway, "failed to collect events")
		return
	}

	if c.Query("format") == "text" {
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(render.Text(resp.Report, s.analyzer.Location())))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// timeline serves the window from cache, building and caching it on a miss.
func (s *Server) timeline(ctx context.Context, days, backfill int) (timelineResponse, error) {
	key := timelineKey(days, backfill)

	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		appLog.Warn("timeline cache read failed", "key", key, "reason", err.Error())
	} else if ok {
		var resp timelineResponse
		if err := json.Unmarshal(data, &resp); err == nil {
			return resp, nil
		}
	}

	resp, err := s.buildTimeline(ctx, days, backfill)
	if err != nil {
		return timelineResponse{}, err
	}
	// A partial result is rebuilt on the next request so a recovered source
	// shows up without waiting out the TTL.
	if len(resp.SourceErrors) > 0 {
		return resp, nil
	}
	if data, err := json.Marshal(resp); err == nil {
		if err := s.cache.Set(ctx, key, data, s.cfg.CacheTTL()); err != nil {
			appLog.Warn("timeline cache write failed", "key", key, "reason", err.Error())
		}
	}
	return resp, nil
}

func (s *Server) buildTimeline(ctx context.Context, days, backfill int) (timelineResponse, error) {
	loc := s.analyzer.Location()
	now := s.now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	w := source.Window{
		From: today.AddDate(0, 0, -backfill),
		To:   today.AddDate(0, 0, days),
	}

	appLog.Info("timeline build",
		"days", days,
		"backfill", backfill,
		"range_start", w.From.Format(time.RFC3339),
		"range_end", w.To.Format(time.RFC3339),
		"timezone", loc.String(),
	)

	resp := timelineResponse{
		RangeStart:  w.From,
		RangeEnd:    w.To,
		Timezone:    loc.String(),
		GeneratedAt: now,
	}

	raw, err := source.Collect(ctx, s.sources, w)
	switch {
	case errors.Is(err, source.ErrNoSources):
		raw = nil
	case err != nil && len(raw) == 0:
		return timelineResponse{}, err
	case err != nil:
		// Partial result: report which sources failed alongside the data.
		for _, e := range unwrapJoined(err) {
			resp.SourceErrors = append(resp.SourceErrors, e.Error())
		}
	}

	resp.Report = s.analyzer.Analyze(raw)
	return resp, nil
}

// Refresh drops cached timelines and rebuilds the default window, so the
// first request after a refresh is served warm.
func (s *Server) Refresh(ctx context.Context) error {
	if err := s.cache.Purge(ctx, timelinePrefix); err != nil {
		appLog.Warn("timeline cache purge failed", "reason", err.Error())
	}
	resp, err := s.timeline(ctx, s.cfg.HorizonDays, s.cfg.BackfillDays)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.lastRefresh = resp.GeneratedAt
	s.mu.Unlock()

	appLog.Info("timeline refreshed",
		"days", resp.Report.Totals.Days,
		"billable", timeline.FormatMinutes(resp.Report.Totals.BillableMinutes, timeline.FormatShort),
		"invalid_records", len(resp.Report.Errors),
		"source_errors", len(resp.SourceErrors),
	)
	return nil
}

// LastRefresh returns when Refresh last completed; zero if it never has.
func (s *Server) LastRefresh() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefresh
}

// analyzeRequest is the body of POST /api/analyze. Records accept both
// the engine's and the event store's field names.
type analyzeRequest struct {
	Records  json.RawMessage `json:"records"`
	Receipts []model.Receipt `json:"receipts"`
}

// handleAnalyze runs a one-shot analysis over the posted records.
func (s *Server) handleAnalyze(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)

	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Records) == 0 {
		writeError(c, http.StatusBadRequest, "records is required")
		return
	}
	raw, err := records.Decode(req.Records)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	rep := s.analyzer.Analyze(raw)
	if len(req.Receipts) > 0 {
		s.analyzer.AttachReceipts(&rep, req.Receipts)
	}
	c.JSON(http.StatusOK, rep)
}

// handleFormat exposes the minute formatter.
//
// GET /api/format?minutes=125&style=long
func (s *Server) handleFormat(c *gin.Context) {
	m, err := strconv.ParseFloat(c.Query("minutes"), 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, "minutes must be a number")
		return
	}
	style := timeline.FormatShort
	if strings.EqualFold(c.Query("style"), "long") {
		style = timeline.FormatLong
	}
	c.JSON(http.StatusOK, gin.H{
		"minutes": m,
		"hours":   timeline.Hours(m),
		"text":    timeline.FormatMinutes(m, style),
	})
}

func timelineKey(days, backfill int) string {
	return fmt.Sprintf("%s%d:%d", timelinePrefix, days, backfill)
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// unwrapJoined flattens an errors.Join result.
func unwrapJoined(err error) []error {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
