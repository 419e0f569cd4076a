package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != DefaultConfig().Listen {
		t.Errorf("expected default listen, got %q", cfg.Listen)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected config file to be created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600 perms, got %o", perm)
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
timezone: UTC
env: PRODUCTION
overlap_threshold_minutes: 0
sources:
  - name: crew
    path: ./events.json
  - url: https://example.com/crew.ics
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "production" {
		t.Errorf("expected env to be lowercased, got %q", cfg.Env)
	}
	if cfg.OverlapThresholdMinutes != 1 {
		t.Errorf("expected default threshold, got %v", cfg.OverlapThresholdMinutes)
	}
	if cfg.Sources[0].Type != SourceFile || cfg.Sources[0].ID != "crew" {
		t.Errorf("unexpected first source %+v", cfg.Sources[0])
	}
	if cfg.Sources[1].Type != SourceICS || cfg.Sources[1].ID != "https://example.com/crew.ics" {
		t.Errorf("unexpected second source %+v", cfg.Sources[1])
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Timezone = "Europe/Berlin"
	cfg.BasicAuth = &BasicAuthConfig{Username: "ops", Password: "secret"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Timezone != "Europe/Berlin" {
		t.Errorf("expected timezone to survive, got %q", got.Timezone)
	}
	if got.BasicAuth == nil || got.BasicAuth.Username != "ops" {
		t.Errorf("expected basic auth to survive, got %+v", got.BasicAuth)
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".laborline-config-*.tmp"))
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("LABORLINE_LISTEN", ":9999")
	t.Setenv("LABORLINE_REDIS_ADDR", "localhost:6379")
	t.Setenv("LABORLINE_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.Listen != ":9999" {
		t.Errorf("expected listen override, got %q", cfg.Listen)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("expected redis override, got %q", cfg.Redis.Addr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level override, got %q", cfg.LogLevel)
	}
	if cfg.Timezone != DefaultConfig().Timezone {
		t.Errorf("unset variables must not clear fields, got %q", cfg.Timezone)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Mars/Olympus"
	cfg.RefreshCron = "every now and then"
	cfg.OverlapThresholdMinutes = -2
	cfg.Sources = []SourceConfig{
		{ID: "a", Type: SourceICS},
		{ID: "b", Type: SourceMongo},
		{ID: "c", Type: "ftp"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"timezone", "refresh", "overlap_threshold_minutes", "source a", "source b", "unknown type ftp"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestNormalizeKeepsNegativeThresholdForValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OverlapThresholdMinutes = -1
	cfg.Normalize()
	if cfg.OverlapThresholdMinutes != -1 {
		t.Fatalf("negative threshold must not be replaced, got %v", cfg.OverlapThresholdMinutes)
	}
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "overlap_threshold_minutes") {
		t.Errorf("expected threshold validation error, got %v", err)
	}

	cfg.OverlapThresholdMinutes = 0.01
	cfg.Normalize()
	if cfg.OverlapThresholdMinutes != 0.01 {
		t.Errorf("small positive threshold must be kept, got %v", cfg.OverlapThresholdMinutes)
	}
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OverlapThresholdMinutes = 2.5
	if got := cfg.OverlapThreshold().Seconds(); got != 150 {
		t.Errorf("expected 150s, got %v", got)
	}
	if got := cfg.CacheTTL().Seconds(); got != 30 {
		t.Errorf("expected 30s, got %v", got)
	}
}
