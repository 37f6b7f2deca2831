// Command inspect examines an offline store file and reports its health:
// per-collection record counts, decode failures, timestamp sanity, freshness
// under a given TTL, and the state of the pending-alert queue.
//
// Usage:
//
//	go run ./cmd/inspect -db data/offline.db [-ttl 168h] [-pending]
//
// The store is opened read-only. bbolt still takes a file lock, so run
// inspect against a copy or while the daemon is stopped.
package main

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/harborlight/relief-offline/internal/domain"
	"github.com/harborlight/relief-offline/internal/storage"
	"github.com/harborlight/relief-offline/internal/storage/bbolt"
)

// clockSkewTolerance allows for records written by a machine whose clock ran
// slightly ahead.
const clockSkewTolerance = time.Minute

// phase tracks pass/fail for one inspection phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	dbPath := flag.String("db", "", "path to the offline store file")
	ttl := flag.Duration("ttl", 7*24*time.Hour, "freshness window used for stale counts")
	showPending := flag.Bool("pending", false, "print every pending alert")
	flag.Parse()

	if *dbPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*dbPath, *ttl, *showPending); code != 0 {
		os.Exit(code)
	}
}

func run(path string, ttl time.Duration, showPending bool) int {
	store, err := bbolt.OpenReadOnly(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: open store: %v\n", err)
		return 1
	}
	defer store.Close()

	ctx := context.Background()

	fmt.Println("=== Offline Store Inspection ===")
	fmt.Println()
	fmt.Printf("File: %s\n", store.Path())
	if size, err := store.Size(); err == nil {
		fmt.Printf("Size: %d bytes\n", size)
	}
	fmt.Println()

	// ── Collection counts ──
	total := 0
	for _, collection := range storage.Collections() {
		n, err := store.Count(ctx, collection)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: count %s: %v\n", collection, err)
			return 1
		}
		fmt.Printf("  %-16s %5d records\n", collection, n)
		total += n
	}
	fmt.Printf("  %-16s %5d records\n", "total", total)

	// ── Run inspection phases ──
	phases := []*phase{
		inspectCacheCollections(ctx, store, ttl),
		inspectTiles(ctx, store, ttl),
		inspectPendingAlerts(ctx, store, showPending),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nStore is consistent.")
		return 0
	}
	fmt.Println("\nInspection FAILED.")
	return 1
}

// ── Phase 1: Cache record integrity ──
// Every cached value must decode as a CacheRecord whose ID matches its key
// and whose timestamp is plausible.

func inspectCacheCollections(ctx context.Context, store *bbolt.Store, ttl time.Duration) *phase {
	p := &phase{name: "Phase 1: Cache Integrity (records)"}

	for _, collection := range []storage.Collection{
		storage.CollectionDisasters,
		storage.CollectionWeather,
		storage.CollectionFacilities,
		storage.CollectionGuidelines,
	} {
		items, err := store.Items(ctx, collection)
		if err != nil {
			p.errorf("%s: read failed: %v", collection, err)
			continue
		}

		fresh, stale := 0, 0
		for _, item := range items {
			var rec domain.CacheRecord
			if err := json.Unmarshal(item.Value, &rec); err != nil {
				p.errorf("%s %q: undecodable record: %v", collection, item.Key, err)
				continue
			}
			if rec.ID != item.Key {
				p.errorf("%s %q: record id %q does not match key", collection, item.Key, rec.ID)
			}
			if !json.Valid(rec.Data) {
				p.errorf("%s %q: payload is not valid JSON", collection, item.Key)
			}
			checkTimestamp(p, string(collection), item.Key, rec.Timestamp)
			if isStale(rec.Timestamp, ttl) {
				stale++
			} else {
				fresh++
			}
		}

		note := ""
		if collection == storage.CollectionGuidelines {
			note = " (age-exempt on read)"
		}
		fmt.Printf("  %-16s %4d fresh, %4d stale under %s%s\n", collection, fresh, stale, ttl, note)
	}
	return p
}

// ── Phase 2: Tile integrity ──

func inspectTiles(ctx context.Context, store *bbolt.Store, ttl time.Duration) *phase {
	p := &phase{name: "Phase 2: Tile Integrity (blobs)"}

	items, err := store.Items(ctx, storage.CollectionTiles)
	if err != nil {
		p.errorf("tiles: read failed: %v", err)
		return p
	}

	fresh, stale, bytes := 0, 0, 0
	for _, item := range items {
		var tile domain.TileRecord
		if err := json.Unmarshal(item.Value, &tile); err != nil {
			p.errorf("tile %q: undecodable record: %v", item.Key, err)
			continue
		}
		if tile.URL != item.Key {
			p.errorf("tile %q: record url %q does not match key", item.Key, tile.URL)
		}
		if len(tile.Blob) == 0 {
			p.errorf("tile %q: empty blob", item.Key)
		}
		checkTimestamp(p, "tiles", item.Key, tile.Timestamp)
		if isStale(tile.Timestamp, ttl) {
			stale++
		} else {
			fresh++
		}
		bytes += len(tile.Blob)
	}

	fmt.Printf("  %-16s %4d fresh, %4d stale, %d blob bytes\n", "tiles", fresh, stale, bytes)
	return p
}

// ── Phase 3: Pending alert queue ──
// Alerts must decode, carry usable idempotency keys and payloads, and sit
// under big-endian keys in ascending id order.

func inspectPendingAlerts(ctx context.Context, store *bbolt.Store, showPending bool) *phase {
	p := &phase{name: "Phase 3: Alert Queue (pending alerts)"}

	items, err := store.Items(ctx, storage.CollectionAlerts)
	if err != nil {
		p.errorf("alerts: read failed: %v", err)
		return p
	}

	var prevID uint64
	for _, item := range items {
		var alert domain.PendingAlert
		if err := json.Unmarshal(item.Value, &alert); err != nil {
			p.errorf("alert key %x: undecodable record: %v", item.Key, err)
			continue
		}

		if len(item.Key) != 8 {
			p.errorf("alert %d: key is %d bytes, want 8", alert.ID, len(item.Key))
		} else if keyID := binary.BigEndian.Uint64([]byte(item.Key)); keyID != alert.ID {
			p.errorf("alert %d: stored under key for id %d", alert.ID, keyID)
		}
		if alert.ID <= prevID {
			p.errorf("alert %d: id not ascending after %d", alert.ID, prevID)
		}
		prevID = alert.ID

		if _, err := uuid.Parse(alert.IdempotencyKey); err != nil {
			p.errorf("alert %d: idempotency key %q is not a UUID", alert.ID, alert.IdempotencyKey)
		}
		if !json.Valid(alert.Payload) {
			p.errorf("alert %d: payload is not valid JSON", alert.ID)
		}
		checkTimestamp(p, "alerts", item.Key, alert.Timestamp)

		if showPending {
			fmt.Printf("  alert %4d  queued %s  key %s  %d payload bytes\n",
				alert.ID, alert.QueuedAt().Format(time.RFC3339), alert.IdempotencyKey, len(alert.Payload))
		}
	}

	fmt.Printf("  %-16s %4d pending\n", "alerts", len(items))
	return p
}

// ── Helpers ──

func checkTimestamp(p *phase, collection, key string, ts int64) {
	if ts <= 0 {
		p.errorf("%s %q: missing timestamp", collection, key)
		return
	}
	if time.UnixMilli(ts).After(time.Now().Add(clockSkewTolerance)) {
		p.errorf("%s %q: timestamp %s is in the future", collection, key, time.UnixMilli(ts).Format(time.RFC3339))
	}
}

func isStale(ts int64, ttl time.Duration) bool {
	return time.Since(time.UnixMilli(ts)) > ttl
}
