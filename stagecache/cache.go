// Package stagecache holds loaded USD stages keyed by absolute file path.
// The cache is created by the server at startup and handed to tools
// explicitly; stages are treated as read-only after load, so concurrent
// reads need no coordination beyond the entry map lock. Repeated loads of
// the same path are idempotent: a racing first load may re-parse and
// overwrite the entry harmlessly.
package stagecache

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/slighter12/usd-mcp-go/logger"
	"github.com/slighter12/usd-mcp-go/usd"
)

// Options configure a Cache.
type Options struct {
	// AllowedRoots restricts loads to files under the given absolute
	// directories. Empty means unrestricted.
	AllowedRoots []string
	// WatchFiles invalidates cache entries when the backing file changes
	// on disk. Without it, a loaded stage is never invalidated
	// automatically.
	WatchFiles bool
}

type entry struct {
	stage    *usd.Stage
	loadedAt time.Time
}

// Cache maps absolute file paths to loaded stages.
type Cache struct {
	mu           sync.RWMutex
	entries      map[string]*entry
	allowedRoots []string
	watcher      *watcher
}

// EntryInfo describes one cached stage.
type EntryInfo struct {
	Path        string    `json:"path"`
	Format      string    `json:"format"`
	PrimCount   int       `json:"prim_count"`
	DefaultPrim string    `json:"default_prim,omitempty"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// New creates a cache. The caller owns its lifetime and must Close it when
// file watching is enabled.
func New(opts Options) (*Cache, error) {
	roots := make([]string, 0, len(opts.AllowedRoots))
	for _, root := range opts.AllowedRoots {
		trimmed := strings.TrimSpace(root)
		if trimmed == "" {
			continue
		}
		abs, err := filepath.Abs(trimmed)
		if err != nil {
			return nil, err
		}
		roots = append(roots, abs)
	}

	c := &Cache{
		entries:      make(map[string]*entry),
		allowedRoots: roots,
	}
	if opts.WatchFiles {
		w, err := newWatcher(c.handleFileChange)
		if err != nil {
			return nil, err
		}
		c.watcher = w
	}
	return c, nil
}

// Load returns the cached stage for path, parsing and caching it on first
// use. A failed load never creates a cache entry, so a corrected retry can
// succeed.
func (c *Cache) Load(path string) (*usd.Stage, error) {
	key, err := c.resolve(path)
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return cached.stage, nil
	}

	stage, err := usd.Open(key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = &entry{stage: stage, loadedAt: time.Now()}
	c.mu.Unlock()

	if c.watcher != nil {
		if err := c.watcher.add(key); err != nil {
			logger.Warn("Failed to watch stage file", "path", key, "error", err)
		}
	}
	logger.Debug("Stage loaded", "path", key, "prim_count", stage.PrimCount())
	return stage, nil
}

// Get returns a cached stage without loading.
func (c *Cache) Get(path string) (*usd.Stage, bool) {
	key, err := c.resolve(path)
	if err != nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	cached, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return cached.stage, true
}

// Invalidate drops one cache entry. It reports whether an entry existed.
func (c *Cache) Invalidate(path string) bool {
	key, err := c.resolve(path)
	if err != nil {
		return false
	}
	return c.remove(key)
}

// Clear drops all cache entries and returns how many were removed.
func (c *Cache) Clear() int {
	c.mu.Lock()
	removed := len(c.entries)
	keys := make([]string, 0, removed)
	for key := range c.entries {
		keys = append(keys, key)
	}
	c.entries = make(map[string]*entry)
	c.mu.Unlock()

	if c.watcher != nil {
		for _, key := range keys {
			c.watcher.forget(key)
		}
	}
	return removed
}

// Len returns the number of cached stages.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Info returns a snapshot of all cache entries in path order.
func (c *Cache) Info() []EntryInfo {
	c.mu.RLock()
	infos := make([]EntryInfo, 0, len(c.entries))
	for path, cached := range c.entries {
		info := EntryInfo{
			Path:      path,
			Format:    cached.stage.Format(),
			PrimCount: cached.stage.PrimCount(),
			LoadedAt:  cached.loadedAt,
		}
		info.DefaultPrim = cached.stage.Metadata().DefaultPrim
		infos = append(infos, info)
	}
	c.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos
}

// Close stops the file watcher if one is running.
func (c *Cache) Close() error {
	if c.watcher == nil {
		return nil
	}
	return c.watcher.close()
}

func (c *Cache) resolve(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", usd.Errorf(usd.KindInvalidArgument, "file path cannot be empty")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", usd.Errorf(usd.KindInvalidArgument, "cannot resolve file path %s: %v", trimmed, err)
	}
	if len(c.allowedRoots) > 0 && !withinAnyRoot(abs, c.allowedRoots) {
		return "", usd.Errorf(usd.KindInvalidArgument, "file path is outside the allowed roots: %s", abs)
	}
	return abs, nil
}

func (c *Cache) remove(key string) bool {
	c.mu.Lock()
	_, existed := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()

	if existed && c.watcher != nil {
		c.watcher.forget(key)
	}
	return existed
}

func (c *Cache) handleFileChange(path string) {
	if c.remove(path) {
		logger.Info("Cached stage invalidated after file change", "path", path)
	}
}

func withinAnyRoot(path string, roots []string) bool {
	for _, root := range roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
