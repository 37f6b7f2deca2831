// Package cache enforces the offline layer's cache-then-expire policy: every
// write stamps the current time, every read filters out records older than
// the TTL, and a periodic sweep deletes what the reads have been skipping.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/harborlight/relief-offline/internal/domain"
	"github.com/harborlight/relief-offline/internal/observability"
	"github.com/harborlight/relief-offline/internal/storage"
)

// DefaultTTL is the age past which a cached record is treated as stale.
const DefaultTTL = 7 * 24 * time.Hour

// Store is the slice of the persistent store the cache manager uses.
type Store interface {
	Put(ctx context.Context, collection storage.Collection, key string, value []byte) error
	Get(ctx context.Context, collection storage.Collection, key string) ([]byte, error)
	GetAll(ctx context.Context, collection storage.Collection) ([][]byte, error)
	Items(ctx context.Context, collection storage.Collection) ([]storage.Item, error)
	Delete(ctx context.Context, collection storage.Collection, key string) error
}

// Manager wraps the persistent store with a uniform freshness policy.
//
// Overwrite semantics are last-write-wins: caching an item whose key already
// exists replaces the old record entirely, with no versioning and no merge.
// Bulk writes are issued in input order but are not atomic as a set; a crash
// mid-write leaves a partially updated cache, which the next successful
// network fetch fully overwrites.
type Manager struct {
	store   Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewManager creates a cache manager over the given store. A non-positive ttl
// falls back to DefaultTTL.
func NewManager(store Store, ttl time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:   store,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

// TTL returns the configured freshness window.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// CacheDisasters stores the aggregated disaster-event list.
func (m *Manager) CacheDisasters(ctx context.Context, events []domain.DisasterEvent) error {
	return putAll(ctx, m, storage.CollectionDisasters, events,
		func(e domain.DisasterEvent) string { return e.ID })
}

// CachedDisasters returns all fresh disaster events. Store failures degrade
// to an empty result so rendering is never blocked on cache trouble.
func (m *Manager) CachedDisasters(ctx context.Context) []domain.DisasterEvent {
	return freshAll[domain.DisasterEvent](ctx, m, storage.CollectionDisasters)
}

// CacheWeather stores one weather snapshot keyed by its normalized location
// string, so differently spelled requests for the same place share a slot.
func (m *Manager) CacheWeather(ctx context.Context, snapshot domain.WeatherSnapshot) error {
	if domain.NormalizeLocation(snapshot.Location) == "" {
		return fmt.Errorf("cache weather: location is required")
	}
	return putAll(ctx, m, storage.CollectionWeather, []domain.WeatherSnapshot{snapshot},
		func(s domain.WeatherSnapshot) string { return domain.NormalizeLocation(s.Location) })
}

// CachedWeather returns the fresh snapshot for a location, or ok=false when
// none is cached or the cached one has expired.
func (m *Manager) CachedWeather(ctx context.Context, location string) (domain.WeatherSnapshot, bool) {
	return getFresh[domain.WeatherSnapshot](ctx, m, storage.CollectionWeather, domain.NormalizeLocation(location), true)
}

// CacheFacilities stores the emergency-facility list.
func (m *Manager) CacheFacilities(ctx context.Context, facilities []domain.Facility) error {
	return putAll(ctx, m, storage.CollectionFacilities, facilities,
		func(f domain.Facility) string { return f.ID })
}

// CachedFacilities returns all fresh facilities.
func (m *Manager) CachedFacilities(ctx context.Context) []domain.Facility {
	return freshAll[domain.Facility](ctx, m, storage.CollectionFacilities)
}

// CacheGuidelines stores safety guidelines keyed by disaster type.
func (m *Manager) CacheGuidelines(ctx context.Context, guidelines []domain.Guideline) error {
	return putAll(ctx, m, storage.CollectionGuidelines, guidelines,
		func(g domain.Guideline) string { return g.Type })
}

// CachedGuideline returns the guideline for a disaster type. Guidelines are
// exempt from the TTL filter: stale safety text is preferred over none, so a
// guideline is returned however old it is. The record still carries its write
// timestamp, and a refresh overwrites it like any other cache entry.
func (m *Manager) CachedGuideline(ctx context.Context, disasterType string) (domain.Guideline, bool) {
	return getFresh[domain.Guideline](ctx, m, storage.CollectionGuidelines, disasterType, false)
}

// CachedGuidelines returns every stored guideline, regardless of age.
func (m *Manager) CachedGuidelines(ctx context.Context) []domain.Guideline {
	items, err := m.store.Items(ctx, storage.CollectionGuidelines)
	if err != nil {
		m.readFailed(storage.CollectionGuidelines, err)
		return nil
	}
	out := make([]domain.Guideline, 0, len(items))
	for _, item := range items {
		var rec domain.CacheRecord
		if err := json.Unmarshal(item.Value, &rec); err != nil {
			m.corruptRecord(storage.CollectionGuidelines, item.Key, err)
			continue
		}
		var g domain.Guideline
		if err := json.Unmarshal(rec.Data, &g); err != nil {
			m.corruptRecord(storage.CollectionGuidelines, item.Key, err)
			continue
		}
		out = append(out, g)
	}
	m.metrics.CacheReads.WithLabelValues(string(storage.CollectionGuidelines), "fresh").Add(float64(len(out)))
	return out
}

// CacheTiles stores map tile blobs keyed by tile URL, stamping each with the
// current time.
func (m *Manager) CacheTiles(ctx context.Context, tiles []domain.TileRecord) error {
	now := domain.Now().UnixMilli()
	for _, tile := range tiles {
		if tile.URL == "" {
			return fmt.Errorf("cache tile: url is required")
		}
		tile.Timestamp = now
		payload, err := json.Marshal(tile)
		if err != nil {
			return fmt.Errorf("marshal tile record: %w", err)
		}
		if err := m.store.Put(ctx, storage.CollectionTiles, tile.URL, payload); err != nil {
			return fmt.Errorf("cache tile %q: %w", tile.URL, err)
		}
	}
	m.metrics.CacheWrites.WithLabelValues(string(storage.CollectionTiles)).Add(float64(len(tiles)))
	return nil
}

// CachedTile returns the blob for a tile URL, or ok=false when missing or
// stale.
func (m *Manager) CachedTile(ctx context.Context, url string) ([]byte, bool) {
	tile, ok := m.cachedTileRecord(ctx, url)
	if !ok {
		return nil, false
	}
	return tile.Blob, true
}

// cachedTileRecord fetches the full tile record so decorators can reuse the
// write timestamp for their own expiry checks.
func (m *Manager) cachedTileRecord(ctx context.Context, url string) (domain.TileRecord, bool) {
	value, err := m.store.Get(ctx, storage.CollectionTiles, url)
	if err != nil {
		m.recordMiss(storage.CollectionTiles, err)
		return domain.TileRecord{}, false
	}
	var tile domain.TileRecord
	if err := json.Unmarshal(value, &tile); err != nil {
		m.corruptRecord(storage.CollectionTiles, url, err)
		m.metrics.CacheReads.WithLabelValues(string(storage.CollectionTiles), "miss").Inc()
		return domain.TileRecord{}, false
	}
	if m.expired(tile.Timestamp) {
		m.metrics.CacheReads.WithLabelValues(string(storage.CollectionTiles), "stale").Inc()
		return domain.TileRecord{}, false
	}
	m.metrics.CacheReads.WithLabelValues(string(storage.CollectionTiles), "fresh").Inc()
	return tile, true
}

// ClearOldCache deletes every record older than the TTL from the TTL-bearing
// collections and returns how many were removed. Guidelines are exempt.
// Reads already filter stale records, so skipping a sweep is harmless; the
// sweep only bounds storage growth.
func (m *Manager) ClearOldCache(ctx context.Context) (int, error) {
	removed := 0
	for _, collection := range []storage.Collection{
		storage.CollectionDisasters,
		storage.CollectionWeather,
		storage.CollectionFacilities,
		storage.CollectionTiles,
	} {
		items, err := m.store.Items(ctx, collection)
		if err != nil {
			return removed, fmt.Errorf("sweep %s: %w", collection, err)
		}
		for _, item := range items {
			ts, ok := recordTimestamp(item.Value)
			if !ok {
				m.corruptRecord(collection, item.Key, nil)
				continue
			}
			if !m.expired(ts) {
				continue
			}
			if err := m.store.Delete(ctx, collection, item.Key); err != nil {
				return removed, fmt.Errorf("sweep %s %q: %w", collection, item.Key, err)
			}
			removed++
		}
	}
	m.metrics.CacheSweepRemoved.Add(float64(removed))
	if removed > 0 {
		m.logger.Info("stale cache records removed", "count", removed)
	}
	return removed, nil
}

func (m *Manager) expired(timestamp int64) bool {
	return domain.Now().UnixMilli()-timestamp > m.ttl.Milliseconds()
}

func (m *Manager) readFailed(collection storage.Collection, err error) {
	m.logger.Warn("cache read failed, serving empty result", "collection", collection, "error", err)
	m.metrics.CacheReads.WithLabelValues(string(collection), "miss").Inc()
}

func (m *Manager) recordMiss(collection storage.Collection, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		m.metrics.CacheReads.WithLabelValues(string(collection), "miss").Inc()
		return
	}
	m.readFailed(collection, err)
}

func (m *Manager) corruptRecord(collection storage.Collection, key string, err error) {
	m.logger.Warn("corrupt cache record skipped", "collection", collection, "key", key, "error", err)
}

// putAll stamps and writes one CacheRecord per item, in input order.
func putAll[T any](ctx context.Context, m *Manager, collection storage.Collection, items []T, key func(T) string) error {
	now := domain.Now().UnixMilli()
	for _, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", collection, err)
		}
		rec := domain.CacheRecord{ID: key(item), Data: data, Timestamp: now}
		if rec.ID == "" {
			return fmt.Errorf("cache %s: record key is required", collection)
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", collection, err)
		}
		if err := m.store.Put(ctx, collection, rec.ID, payload); err != nil {
			return fmt.Errorf("cache %s %q: %w", collection, rec.ID, err)
		}
	}
	m.metrics.CacheWrites.WithLabelValues(string(collection)).Add(float64(len(items)))
	return nil
}

// freshAll reads a whole collection and returns only the payloads whose
// records are within the TTL.
func freshAll[T any](ctx context.Context, m *Manager, collection storage.Collection) []T {
	values, err := m.store.GetAll(ctx, collection)
	if err != nil {
		m.readFailed(collection, err)
		return nil
	}

	out := make([]T, 0, len(values))
	var fresh, stale int
	for _, raw := range values {
		var rec domain.CacheRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			m.corruptRecord(collection, "", err)
			continue
		}
		if m.expired(rec.Timestamp) {
			stale++
			continue
		}
		var item T
		if err := json.Unmarshal(rec.Data, &item); err != nil {
			m.corruptRecord(collection, rec.ID, err)
			continue
		}
		out = append(out, item)
		fresh++
	}

	m.metrics.CacheReads.WithLabelValues(string(collection), "fresh").Add(float64(fresh))
	m.metrics.CacheReads.WithLabelValues(string(collection), "stale").Add(float64(stale))
	return out
}

// getFresh reads a single record, applying the TTL filter unless the
// collection is exempt.
func getFresh[T any](ctx context.Context, m *Manager, collection storage.Collection, key string, enforceTTL bool) (T, bool) {
	var zero T

	value, err := m.store.Get(ctx, collection, key)
	if err != nil {
		m.recordMiss(collection, err)
		return zero, false
	}

	var rec domain.CacheRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		m.corruptRecord(collection, key, err)
		m.metrics.CacheReads.WithLabelValues(string(collection), "miss").Inc()
		return zero, false
	}
	if enforceTTL && m.expired(rec.Timestamp) {
		m.metrics.CacheReads.WithLabelValues(string(collection), "stale").Inc()
		return zero, false
	}

	var item T
	if err := json.Unmarshal(rec.Data, &item); err != nil {
		m.corruptRecord(collection, key, err)
		m.metrics.CacheReads.WithLabelValues(string(collection), "miss").Inc()
		return zero, false
	}

	m.metrics.CacheReads.WithLabelValues(string(collection), "fresh").Inc()
	return item, true
}

// recordTimestamp extracts the write timestamp from either envelope shape
// (CacheRecord and TileRecord both carry a "timestamp" field).
func recordTimestamp(value []byte) (int64, bool) {
	var probe struct {
		Timestamp int64 `json:"timestamp"`
	}
	if err := json.Unmarshal(value, &probe); err != nil || probe.Timestamp == 0 {
		return 0, false
	}
	return probe.Timestamp, true
}
