// Package filecache is canopy's in-memory asset cache, adapted from the
// teacher's coffer.go: a fastcache-backed byte cache keyed by content
// checksum, invalidated on the underlying file's write/remove/rename
// events via fsnotify. It lets a content callback serve a file's bytes
// (e.g. via canopy.Bytes) without re-reading the disk on every request.
package filecache

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/fsnotify/fsnotify"
)

// Cache is a read-through, invalidating byte cache for file contents.
type Cache struct {
	maxBytes int
	once     sync.Once
	cache    *fastcache.Cache
	entries  sync.Map // path -> *entry
	watcher  *fsnotify.Watcher

	// OnEvent, if set, observes every fsnotify event the cache reacts to
	// (adapted from the teacher's a.DEBUG asset-event logging).
	OnEvent func(path, op string)
	// OnWatchError observes watcher errors.
	OnWatchError func(error)
}

type entry struct {
	path     string
	checksum [sha256.Size]byte
}

// New returns a Cache with the given in-memory budget. The watcher
// goroutine is started immediately and runs until Close.
func New(maxBytes int) (*Cache, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("canopy: failed to build filecache watcher: %w", err)
	}

	c := &Cache{maxBytes: maxBytes, watcher: w}
	go c.watch()
	return c, nil
}

func (c *Cache) watch() {
	for {
		select {
		case e, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if c.OnEvent != nil {
				c.OnEvent(e.Name, e.Op.String())
			}
			if ei, ok := c.entries.Load(e.Name); ok {
				en := ei.(*entry)
				c.entries.Delete(en.path)
				c.cache.Del(en.checksum[:])
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			if c.OnWatchError != nil {
				c.OnWatchError(err)
			}
		}
	}
}

// Get returns path's contents, reading and caching it on first access and
// serving from memory thereafter until an fsnotify event invalidates it.
func (c *Cache) Get(path string) ([]byte, error) {
	c.once.Do(func() { c.cache = fastcache.New(c.maxBytes) })

	if ei, ok := c.entries.Load(path); ok {
		en := ei.(*entry)
		if b := c.cache.Get(nil, en.checksum[:]); len(b) > 0 {
			return b, nil
		}
		c.entries.Delete(path)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := c.watcher.Add(path); err != nil {
		return nil, err
	}

	en := &entry{path: path, checksum: sha256.Sum256(b)}
	c.cache.Set(en.checksum[:], b)
	c.entries.Store(path, en)

	return b, nil
}

// Close stops the watcher goroutine.
func (c *Cache) Close() error {
	return c.watcher.Close()
}
