package imageio

import (
	"os"
	"sync"
	"time"

	"cgmatch/internal/raster"
)

// Cache keeps decoded buffers keyed by path and modification time, so that a
// base image paired against many diffs is decoded once per run. Entries are
// refreshed automatically when the file on disk changes.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	modTime time.Time
	size    int64
	buf     *raster.PixelBuffer
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Load returns a clone of the cached buffer for path, decoding it first if
// the cache has no current entry. Callers own the returned buffer.
func (c *Cache) Load(path string) (*raster.PixelBuffer, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	entry, ok := c.entries[path]
	c.mu.Unlock()
	if ok && entry.modTime.Equal(info.ModTime()) && entry.size == info.Size() {
		return entry.buf.Clone(), nil
	}
	buf, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entries[path] = cacheEntry{modTime: info.ModTime(), size: info.Size(), buf: buf}
	c.mu.Unlock()
	return buf.Clone(), nil
}

// Invalidate drops the entry for path, if present.
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	delete(c.entries, path)
	c.mu.Unlock()
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
