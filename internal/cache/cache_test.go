package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if err := m.Set(ctx, "timeline:7:7", []byte("report"), 30*time.Second); err != nil {
		t.Fatal(err)
	}
	if v, ok, _ := m.Get(ctx, "timeline:7:7"); !ok || string(v) != "report" {
		t.Fatalf("expected fresh hit, got %q %v", v, ok)
	}

	now = now.Add(30 * time.Second)
	if _, ok, _ := m.Get(ctx, "timeline:7:7"); ok {
		t.Fatal("expected entry to expire at its ttl")
	}
	if len(m.entries) != 0 {
		t.Errorf("expected expired entry to be evicted, got %d", len(m.entries))
	}
}

func TestMemoryZeroTTLIsNotStored(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Set(ctx, "k", []byte("v"), 0)
	if _, ok, _ := m.Get(ctx, "k"); ok {
		t.Fatal("zero ttl must not cache")
	}
}

func TestMemoryPurge(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.Set(ctx, "timeline:a", []byte("1"), time.Minute)
	_ = m.Set(ctx, "timeline:b", []byte("2"), time.Minute)
	_ = m.Set(ctx, "format:c", []byte("3"), time.Minute)

	if err := m.Purge(ctx, "timeline:"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := m.Get(ctx, "timeline:a"); ok {
		t.Error("timeline:a should be purged")
	}
	if _, ok, _ := m.Get(ctx, "format:c"); !ok {
		t.Error("format:c should survive")
	}
}

// TestRedis needs a reachable server, e.g. LABORLINE_TEST_REDIS=localhost:6379.
func TestRedis(t *testing.T) {
	addr := os.Getenv("LABORLINE_TEST_REDIS")
	if addr == "" {
		t.Skip("LABORLINE_TEST_REDIS not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, addr, "", 0)
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer r.Close()

	prefix := "test-" + uuid.NewString() + ":"
	defer r.Purge(ctx, prefix)

	if _, ok, err := r.Get(ctx, prefix+"missing"); ok || err != nil {
		t.Fatalf("expected clean miss, got ok=%v err=%v", ok, err)
	}
	if err := r.Set(ctx, prefix+"k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, err := r.Get(ctx, prefix+"k"); !ok || err != nil || string(v) != "v" {
		t.Fatalf("expected hit, got %q ok=%v err=%v", v, ok, err)
	}
	if err := r.Purge(ctx, prefix); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, ok, _ := r.Get(ctx, prefix+"k"); ok {
		t.Fatal("expected key to be purged")
	}
}
