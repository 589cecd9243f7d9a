package cache

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache("orquestador")
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v1", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := c.Get(ctx, "k")
	if err != nil || !ok || got != "v1" {
		t.Fatalf("get = (%q, %v, %v), want (v1, true, nil)", got, ok, err)
	}

	// Overwrite is silent.
	if err := c.Set(ctx, "k", "v2", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, _ = c.Get(ctx, "k")
	if !ok || got != "v2" {
		t.Fatalf("get after overwrite = (%q, %v), want (v2, true)", got, ok)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewMemoryCache("orquestador").WithClock(func() time.Time { return now })
	ctx := context.Background()

	if err := c.Set(ctx, "k", "v", 2*time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	now = now.Add(119 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); !ok {
		t.Fatal("entry expired before its TTL")
	}

	now = now.Add(2 * time.Second)
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("entry survived past its TTL")
	}

	// Lazy eviction removed the entry; looking it up again still misses.
	if _, ok, _ := c.Get(ctx, "k"); ok {
		t.Fatal("expired entry resurrected")
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache("orquestador")
	if _, ok, err := c.Get(context.Background(), "nope"); ok || err != nil {
		t.Fatalf("get missing key = (ok=%v, err=%v), want miss", ok, err)
	}
}

func TestMemoryCacheGenerateKey(t *testing.T) {
	c := NewMemoryCache("orquestador")
	if got := c.GenerateKey("dispensa", "abc"); got != "orquestador:dispensa:abc" {
		t.Fatalf("GenerateKey = %q", got)
	}
}

func TestMemoryCacheConcurrentAccess(t *testing.T) {
	c := NewMemoryCache("orquestador")
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Set(ctx, "shared", "v", time.Minute)
				_, _, _ = c.Get(ctx, "shared")
			}
		}()
	}
	wg.Wait()

	if _, ok, _ := c.Get(ctx, "shared"); !ok {
		t.Fatal("expected entry to survive concurrent writes")
	}
}
