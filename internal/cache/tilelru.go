package cache

import (
	"context"
	"sync"

	"github.com/harborlight/relief-offline/internal/domain"
	"github.com/harborlight/relief-offline/internal/storage"
)

// TileLRU wraps a Manager with an in-memory LRU over tile reads. Map panning
// requests the same tiles over and over; serving repeats from memory skips
// the store read and envelope decode. Entries keep the record's original
// write timestamp and are re-checked against the TTL on every hit, so the
// decorator never extends a tile's life.
type TileLRU struct {
	*Manager
	lru *tileCache
}

// NewTileLRU creates the tile read cache holding at most maxEntries blobs.
func NewTileLRU(inner *Manager, maxEntries int) *TileLRU {
	return &TileLRU{
		Manager: inner,
		lru:     newTileCache(maxEntries),
	}
}

// CacheTiles writes through to the store and drops the affected URLs from
// memory; the next read repopulates them with the fresh timestamp. The URLs
// are dropped even when the write fails: tiles persist one by one, so an
// error partway through the batch may leave earlier tiles already rewritten
// on disk, and a retained memory entry would keep serving the old blob.
func (c *TileLRU) CacheTiles(ctx context.Context, tiles []domain.TileRecord) error {
	err := c.Manager.CacheTiles(ctx, tiles)
	for _, tile := range tiles {
		c.lru.delete(tile.URL)
	}
	return err
}

// CachedTile serves from memory when the cached record is still fresh and
// falls back to the store otherwise.
func (c *TileLRU) CachedTile(ctx context.Context, url string) ([]byte, bool) {
	if tile, ok := c.lru.get(url); ok {
		if !c.Manager.expired(tile.Timestamp) {
			c.Manager.metrics.CacheReads.WithLabelValues(string(storage.CollectionTiles), "fresh").Inc()
			return tile.Blob, true
		}
		c.lru.delete(url)
	}

	tile, ok := c.Manager.cachedTileRecord(ctx, url)
	if !ok {
		return nil, false
	}
	c.lru.put(url, tile)
	return tile.Blob, true
}

// tileCache is a simple thread-safe LRU for decoded tile records.
type tileCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*tileEntry
	head       *tileEntry // most recently used
	tail       *tileEntry // least recently used
}

type tileEntry struct {
	url  string
	tile domain.TileRecord
	prev *tileEntry
	next *tileEntry
}

func newTileCache(maxEntries int) *tileCache {
	return &tileCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*tileEntry),
	}
}

func (c *tileCache) get(url string) (domain.TileRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok {
		return domain.TileRecord{}, false
	}
	c.moveToFront(e)
	return e.tile, true
}

func (c *tileCache) put(url string, tile domain.TileRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[url]; ok {
		e.tile = tile
		c.moveToFront(e)
		return
	}

	e := &tileEntry{url: url, tile: tile}
	c.entries[url] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *tileCache) delete(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[url]
	if !ok {
		return
	}
	delete(c.entries, url)
	c.remove(e)
}

func (c *tileCache) moveToFront(e *tileEntry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *tileCache) addToFront(e *tileEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *tileCache) remove(e *tileEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *tileCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.url)
	c.remove(c.tail)
}
