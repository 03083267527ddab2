package stagecache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/slighter12/usd-mcp-go/usd"
)

const testLayer = `#usda 1.0
(
    defaultPrim = "hello"
)

def Xform "hello"
{
    def Sphere "world"
    {
    }
}
`

func writeTestLayer(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write layer: %v", err)
	}
	return path
}

func newTestCache(t *testing.T, opts Options) *Cache {
	t.Helper()
	cache, err := New(opts)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestLoadCachesStage(t *testing.T) {
	dir := t.TempDir()
	path := writeTestLayer(t, dir, "scene.usda", testLayer)
	cache := newTestCache(t, Options{})

	first, err := cache.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	second, err := cache.Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if first != second {
		t.Error("expected the cached stage instance on reload")
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 cache entry, got %d", cache.Len())
	}

	abs, _ := filepath.Abs(path)
	if got, ok := cache.Get(abs); !ok || got != first {
		t.Error("Get should return the cached stage")
	}
}

func TestLoadFailureIsNotCached(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.usda")
	cache := newTestCache(t, Options{})

	if _, err := cache.Load(path); err == nil {
		t.Fatal("expected load of a missing file to fail")
	}
	if usd.KindOf(mustLoadErr(t, cache, path)) != usd.KindNotFound {
		t.Error("expected not_found kind")
	}
	if cache.Len() != 0 {
		t.Fatalf("failed load must not create an entry, got %d", cache.Len())
	}

	// A corrected retry succeeds.
	writeTestLayer(t, dir, "scene.usda", testLayer)
	if _, err := cache.Load(path); err != nil {
		t.Fatalf("retry after fix: %v", err)
	}
}

func mustLoadErr(t *testing.T, cache *Cache, path string) error {
	t.Helper()
	_, err := cache.Load(path)
	if err == nil {
		t.Fatal("expected error")
	}
	return err
}

func TestAllowedRoots(t *testing.T) {
	allowed := t.TempDir()
	outside := t.TempDir()
	inside := writeTestLayer(t, allowed, "scene.usda", testLayer)
	forbidden := writeTestLayer(t, outside, "scene.usda", testLayer)

	cache := newTestCache(t, Options{AllowedRoots: []string{allowed}})

	if _, err := cache.Load(inside); err != nil {
		t.Fatalf("load inside allowed root: %v", err)
	}
	err := mustLoadErr(t, cache, forbidden)
	if usd.KindOf(err) != usd.KindInvalidArgument {
		t.Errorf("expected invalid_argument for path outside roots, got %v", err)
	}
}

func TestInvalidateAndClear(t *testing.T) {
	dir := t.TempDir()
	first := writeTestLayer(t, dir, "a.usda", testLayer)
	second := writeTestLayer(t, dir, "b.usda", testLayer)
	cache := newTestCache(t, Options{})

	for _, path := range []string{first, second} {
		if _, err := cache.Load(path); err != nil {
			t.Fatalf("load %s: %v", path, err)
		}
	}

	if !cache.Invalidate(first) {
		t.Error("expected Invalidate to report a removed entry")
	}
	if cache.Invalidate(first) {
		t.Error("second Invalidate should report nothing to remove")
	}
	if cache.Len() != 1 {
		t.Fatalf("expected 1 entry after invalidate, got %d", cache.Len())
	}
	if removed := cache.Clear(); removed != 1 {
		t.Errorf("expected Clear to remove 1 entry, removed %d", removed)
	}
	if cache.Len() != 0 {
		t.Errorf("expected empty cache after Clear, got %d", cache.Len())
	}
}

func TestInfoSnapshot(t *testing.T) {
	dir := t.TempDir()
	second := writeTestLayer(t, dir, "b.usda", testLayer)
	first := writeTestLayer(t, dir, "a.usda", testLayer)
	cache := newTestCache(t, Options{})

	for _, path := range []string{second, first} {
		if _, err := cache.Load(path); err != nil {
			t.Fatalf("load %s: %v", path, err)
		}
	}

	infos := cache.Info()
	if len(infos) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(infos))
	}
	if infos[0].Path > infos[1].Path {
		t.Error("Info should be sorted by path")
	}
	if infos[0].PrimCount != 2 || infos[0].Format != "usda" {
		t.Errorf("unexpected entry info %+v", infos[0])
	}
	if infos[0].DefaultPrim != "hello" {
		t.Errorf("unexpected default prim %q", infos[0].DefaultPrim)
	}
}

func TestWatchInvalidatesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeTestLayer(t, dir, "scene.usda", testLayer)
	cache := newTestCache(t, Options{WatchFiles: true})

	if _, err := cache.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}

	writeTestLayer(t, dir, "scene.usda", testLayer+"\ndef Cube \"extra\"\n{\n}\n")

	deadline := time.Now().Add(2 * time.Second)
	for cache.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("cache entry was not invalidated after file change")
		}
		time.Sleep(10 * time.Millisecond)
	}

	stage, err := cache.Load(path)
	if err != nil {
		t.Fatalf("reload after change: %v", err)
	}
	if stage.PrimCount() != 3 {
		t.Errorf("expected reload to pick up changes, got %d prims", stage.PrimCount())
	}
}
