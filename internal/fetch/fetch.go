// Package fetch downloads remote feeds (ICS calendars, JSON event exports)
// with HTTP conditional requests and a disk-backed cache, so a flaky
// upstream still yields the last good body.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "laborline/internal/log"
)

// defaultMaxBody caps a single feed download.
const defaultMaxBody = 32 << 20

// ErrBodyTooLarge is returned when a feed exceeds the fetcher's size limit.
var ErrBodyTooLarge = errors.New("fetch: body exceeds size limit")

// Target is a single remote feed.
type Target struct {
	// ID is the config source ID, used for logging.
	ID string
	// URL is the feed endpoint. webcal:// is rewritten to https://.
	URL string
	// Accept is sent as the Accept header when non-empty.
	Accept string
}

// Result contains the outcome of fetching a single target.
type Result struct {
	Target    Target
	Body      []byte // payload (either freshly fetched or from cache)
	FromCache bool   // true if we reused the cached body
}

// cacheEntry holds HTTP cache metadata for a single URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher fetches feeds with HTTP caching (ETag / Last-Modified) and a
// disk-backed cache.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	maxBody  int64
}

// New creates a Fetcher.
//
// cacheDir is the base directory where per-URL cache subdirectories and
// metadata are stored, e.g. "/var/lib/laborline/feed-cache".
func New(cacheDir string) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/feed-cache"
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cacheDir: cacheDir,
		maxBody:  defaultMaxBody,
	}
}

// WithClient replaces the HTTP client; tests use it to shorten timeouts.
func (f *Fetcher) WithClient(c *http.Client) *Fetcher {
	f.client = c
	return f
}

// WithMaxBody sets the largest body accepted from a feed. Larger bodies
// are rejected, never truncated.
func (f *Fetcher) WithMaxBody(n int64) *Fetcher {
	if n > 0 {
		f.maxBody = n
	}
	return f
}

// Fetch fetches a single target, honoring ETag and Last-Modified.
func (f *Fetcher) Fetch(ctx context.Context, t Target) (Result, error) {
	if t.URL == "" {
		return Result{}, errors.New("fetch: target URL is empty")
	}
	url := t.URL
	if strings.HasPrefix(url, "webcal://") {
		url = "https://" + strings.TrimPrefix(url, "webcal://")
	}

	cachePath := f.cachePathForURL(url)
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return Result{}, err
	}

	meta, _ := loadCacheMeta(cachePath)
	cachedBody, _ := os.ReadFile(filepath.Join(cachePath, "body"))

	fallback := func(reason error, kv ...any) (Result, error) {
		if len(cachedBody) == 0 {
			return Result{}, reason
		}
		appLog.Error("feed fetch failed, using cached body", reason, append([]any{"id", t.ID, "url", RedactURL(url)}, kv...)...)
		return Result{Target: t, Body: cachedBody, FromCache: true}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, err
	}
	if t.Accept != "" {
		req.Header.Set("Accept", t.Accept)
	}
	// Conditional headers only make sense when we can serve the cached body.
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Debug("feed fetch start", "id", t.ID, "url", RedactURL(url))

	resp, err := f.client.Do(req)
	if err != nil {
		return fallback(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
		if readErr != nil {
			return fallback(readErr)
		}
		if int64(len(body)) > f.maxBody {
			return fallback(fmt.Errorf("%w (%d bytes)", ErrBodyTooLarge, f.maxBody), "limit", f.maxBody)
		}

		newMeta := cacheEntry{
			URL:          url,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := saveCache(cachePath, newMeta, body); err != nil {
			// Log but still return the freshly fetched body.
			appLog.Error("feed cache save failed", err, "id", t.ID, "url", RedactURL(url))
		}

		appLog.Info("feed fetch success", "id", t.ID, "url", RedactURL(url), "bytes", len(body))
		return Result{Target: t, Body: body}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return Result{}, errors.New("fetch: 304 Not Modified but no cached body available")
		}
		appLog.Debug("feed not modified; using cache", "id", t.ID, "url", RedactURL(url))
		return Result{Target: t, Body: cachedBody, FromCache: true}, nil

	default:
		return fallback(fmt.Errorf("fetch: unexpected status %s", resp.Status), "status", resp.StatusCode)
	}
}

func (f *Fetcher) cachePathForURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	// First 16 hex chars as directory name.
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// RedactURL keeps only scheme and host of a feed URL for logging, since
// private calendar links carry their token in the path or query.
//
//	https://example.com/path/to/private.ics?token=abcd
//	-> https://example.com/...(redacted)
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := strings.Index(u, "://")
	if i == -1 {
		return "feed://...(redacted)"
	}
	rest := u[i+3:]
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	if j := strings.IndexByte(rest, '?'); j >= 0 {
		rest = rest[:j]
	}
	return u[:i+3] + rest + redactedSuffix
}
