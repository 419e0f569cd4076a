package config

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Source types understood by internal/source.
const (
	SourceICS   = "ics"
	SourceJSON  = "json"
	SourceFile  = "file"
	SourceMongo = "mongo"
)

// SourceConfig describes a single event source.
type SourceConfig struct {
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Type is one of ics, json, file, mongo.
	Type string `yaml:"type" json:"type"`
	// URL is the feed endpoint for ics and json sources.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// Path is a local file for file sources (.json or .ics).
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// WorkOrder selects the events of one job in a mongo source.
	WorkOrder string `yaml:"work_order,omitempty" json:"work_order,omitempty"`
}

// MongoConfig points at the event store collection.
type MongoConfig struct {
	URI        string `yaml:"uri" json:"uri"`
	Database   string `yaml:"database" json:"database"`
	Collection string `yaml:"collection" json:"collection"`
}

// RedisConfig enables the shared report cache when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	DB       int    `yaml:"db" json:"db"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone deciding calendar-day boundaries.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Env is "development" or "production"; production logs JSON.
	Env string `yaml:"env" json:"env"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for re-collecting sources.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// OverlapThresholdMinutes is the intersection two events need before
	// they count as overlapping. Zero selects the default; negative values
	// fail Validate.
	OverlapThresholdMinutes float64 `yaml:"overlap_threshold_minutes" json:"overlap_threshold_minutes"`

	// HorizonDays / BackfillDays bound the analysis window around now.
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	// Kinds overrides whether an event kind counts toward labor when the
	// record does not say so, e.g. {"Lunch": true}.
	Kinds map[string]bool `yaml:"kinds,omitempty" json:"kinds,omitempty"`

	Sources []SourceConfig `yaml:"sources" json:"sources"`

	Mongo MongoConfig `yaml:"mongo" json:"mongo"`
	Redis RedisConfig `yaml:"redis" json:"redis"`

	// CacheTTLSeconds bounds how long an analyzed timeline is served from cache.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	// CORSOrigins enables CORS for the listed origins.
	CORSOrigins []string `yaml:"cors_origins,omitempty" json:"cors_origins,omitempty"`

	// RateLimitPerMinute caps POST /api/analyze; 0 disables the limit.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute" json:"rate_limit_per_minute"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:                  "127.0.0.1:8080",
		Timezone:                "America/Los_Angeles",
		Env:                     "development",
		LogLevel:                "info",
		RefreshCron:             "*/15 * * * *",
		OverlapThresholdMinutes: 1,
		HorizonDays:             7,
		BackfillDays:            7,
		Sources:                 []SourceConfig{},
		Mongo: MongoConfig{
			Database:   "fieldservice",
			Collection: "events",
		},
		CacheTTLSeconds:    30,
		RateLimitPerMinute: 120,
		BasicAuth:          nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	switch strings.ToLower(c.Env) {
	case "production", "development":
		c.Env = strings.ToLower(c.Env)
	default:
		c.Env = def.Env
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.OverlapThresholdMinutes == 0 {
		c.OverlapThresholdMinutes = def.OverlapThresholdMinutes
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	for i := range c.Sources {
		s := &c.Sources[i]
		s.Type = strings.ToLower(strings.TrimSpace(s.Type))
		if s.Type == "" {
			s.Type = guessSourceType(*s)
		}
		if s.ID == "" {
			switch {
			case s.Name != "":
				s.ID = s.Name
			case s.URL != "":
				s.ID = s.URL
			default:
				s.ID = s.Path
			}
		}
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = def.Mongo.Database
	}
	if c.Mongo.Collection == "" {
		c.Mongo.Collection = def.Mongo.Collection
	}
	if c.CacheTTLSeconds <= 0 {
		c.CacheTTLSeconds = def.CacheTTLSeconds
	}
	if c.RateLimitPerMinute < 0 {
		c.RateLimitPerMinute = 0
	}
}

func guessSourceType(s SourceConfig) string {
	switch {
	case s.Path != "":
		return SourceFile
	case strings.HasSuffix(strings.ToLower(s.URL), ".ics"), strings.HasPrefix(s.URL, "webcal://"):
		return SourceICS
	case s.WorkOrder != "":
		return SourceMongo
	default:
		return SourceJSON
	}
}

// Validate reports settings that cannot be normalized away.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, errors.New("timezone: "+err.Error()))
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		errs = append(errs, errors.New("refresh: "+err.Error()))
	}
	if c.OverlapThresholdMinutes < 0 || math.IsNaN(c.OverlapThresholdMinutes) {
		errs = append(errs, errors.New("overlap_threshold_minutes: must not be negative"))
	}
	for _, s := range c.Sources {
		switch s.Type {
		case SourceICS, SourceJSON:
			if s.URL == "" {
				errs = append(errs, errors.New("source "+s.ID+": url is required"))
			}
		case SourceFile:
			if s.Path == "" {
				errs = append(errs, errors.New("source "+s.ID+": path is required"))
			}
		case SourceMongo:
			if c.Mongo.URI == "" {
				errs = append(errs, errors.New("source "+s.ID+": mongo.uri is required"))
			}
		default:
			errs = append(errs, errors.New("source "+s.ID+": unknown type "+s.Type))
		}
	}
	return errors.Join(errs...)
}

// Location returns the configured timezone, or time.Local if it is invalid.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// CacheTTL returns CacheTTLSeconds as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// OverlapThreshold returns OverlapThresholdMinutes as a duration.
func (c *Config) OverlapThreshold() time.Duration {
	return time.Duration(c.OverlapThresholdMinutes * float64(time.Minute))
}

// ApplyEnv overrides selected fields from LABORLINE_* environment
// variables, e.g. LABORLINE_LISTEN or LABORLINE_REDIS_ADDR.
func (c *Config) ApplyEnv() {
	v := viper.New()
	v.SetEnvPrefix("laborline")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range []string{"listen", "timezone", "env", "log_level", "refresh", "redis.addr", "redis.password", "mongo.uri"} {
		_ = v.BindEnv(key)
	}

	set := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	set("listen", &c.Listen)
	set("timezone", &c.Timezone)
	set("env", &c.Env)
	set("log_level", &c.LogLevel)
	set("refresh", &c.RefreshCron)
	set("redis.addr", &c.Redis.Addr)
	set("redis.password", &c.Redis.Password)
	set("mongo.uri", &c.Mongo.URI)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides are applied last in both cases.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.ApplyEnv()
				return cfg, err
			}
			cfg.ApplyEnv()
			cfg.Normalize()
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".laborline-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
