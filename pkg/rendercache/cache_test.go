package rendercache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, 0)
	defer c.Close()

	if err := c.Set(ctx, "a", []byte("one"), 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	data, hit, err := c.Get(ctx, "a")
	if err != nil || !hit {
		t.Fatalf("Get: hit=%v err=%v", hit, err)
	}
	if string(data) != "one" {
		t.Errorf("Get = %q, want %q", data, "one")
	}

	// Least-recently-used entry is evicted when capacity is exceeded.
	_ = c.Set(ctx, "b", []byte("two"), 0)
	_, _, _ = c.Get(ctx, "a") // touch "a" so "b" is the LRU entry
	_ = c.Set(ctx, "c", []byte("three"), 0)

	if _, hit, _ := c.Get(ctx, "b"); hit {
		t.Error("LRU entry should have been evicted")
	}
	if _, hit, _ := c.Get(ctx, "a"); !hit {
		t.Error("recently used entry should survive eviction")
	}

	if err := c.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "a"); hit {
		t.Error("deleted entry still present")
	}
}

func TestFileCache(t *testing.T) {
	ctx := context.Background()
	c, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileCache error: %v", err)
	}
	defer c.Close()

	// Miss on unknown key
	if _, hit, err := c.Get(ctx, "missing"); err != nil || hit {
		t.Errorf("Get missing: hit=%v err=%v", hit, err)
	}

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	data, hit, err := c.Get(ctx, "key")
	if err != nil || !hit {
		t.Fatalf("Get: hit=%v err=%v", hit, err)
	}
	if string(data) != "value" {
		t.Errorf("Get = %q", data)
	}

	// Expired entries read as a miss.
	if err := c.Set(ctx, "stale", []byte("old"), -time.Second); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := c.Get(ctx, "stale"); hit {
		t.Error("expired entry should miss")
	}

	if err := c.Delete(ctx, "key"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "key"); hit {
		t.Error("deleted entry still present")
	}

	// Deleting a missing key is fine.
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

// A file that is not a well-formed entry reads as a miss and is
// cleaned up, never surfaced as data.
func TestFileCacheCorruptEntry(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := NewFileCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Set(ctx, "key", []byte("value"), 0); err != nil {
		t.Fatal(err)
	}
	hash := Hash([]byte("key"))
	path := filepath.Join(dir, hash[:2], hash[2:]+".bin")
	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, hit, err := c.Get(ctx, "key"); err != nil || hit {
		t.Errorf("corrupt entry: hit=%v err=%v", hit, err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt entry should be removed on read")
	}
}

func TestFileCachePrune(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := NewFileCache(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Set(ctx, "fresh", []byte("keep"), time.Hour); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(ctx, "stale", []byte("drop"), -time.Second); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "junk"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := c.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune error: %v", err)
	}
	if removed != 2 {
		t.Errorf("Prune removed %d files, want 2", removed)
	}

	data, hit, err := c.Get(ctx, "fresh")
	if err != nil || !hit {
		t.Fatalf("fresh entry after prune: hit=%v err=%v", hit, err)
	}
	if string(data) != "keep" {
		t.Errorf("fresh entry = %q", data)
	}
	if _, hit, _ := c.Get(ctx, "stale"); hit {
		t.Error("stale entry survived prune")
	}
}

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}
	if _, hit, err := c.Get(ctx, "key"); err != nil || hit {
		t.Errorf("NullCache should never store: hit=%v err=%v", hit, err)
	}
	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestHash(t *testing.T) {
	// Test determinism
	h1 := Hash([]byte("hello"))
	h2 := Hash([]byte("hello"))
	if h1 != h2 {
		t.Error("Hash should be deterministic")
	}

	// Test different inputs produce different hashes
	h3 := Hash([]byte("world"))
	if h1 == h3 {
		t.Error("Different inputs should produce different hashes")
	}

	// Test hash length (SHA-256 produces 64 hex chars)
	if len(h1) != 64 {
		t.Errorf("Hash length should be 64, got %d", len(h1))
	}
}
