// Package domain models the records the offline layer persists on behalf of
// the disaster-response dashboard.
//
// # Record Envelopes
//
// Everything cached for offline use is wrapped in a [CacheRecord]: the
// payload bytes plus the write timestamp that drives expiration. Map tiles
// are the one exception; they carry their blob directly in a [TileRecord]
// keyed by tile URL. Timestamps are epoch milliseconds, set once at write
// time and never mutated. A record is stale once
//
//	now - timestamp > TTL (7 days by default)
//
// Reads filter stale records instead of deleting them; deletion happens only
// in the periodic stale-sweep. Guideline records are exempt from the TTL on
// read: stale safety guidance is preferred over no guidance at all, at the
// documented cost of possible staleness.
//
// # Cache Keys
//
// Each collection has a single-attribute key:
//
//	disasters:  DisasterEvent.ID (upstream feed identifier)
//	weather:    WeatherSnapshot.Location (normalized location string)
//	facilities: Facility.ID
//	guidelines: Guideline.Type ("earthquake", "flood", ...)
//	tiles:      TileRecord.URL
//
// Writes upsert by key: the same key always overwrites, with no versioning
// and no merge. A fresher network fetch fully replaces whatever was cached.
//
// # Pending Alerts
//
// A [PendingAlert] represents an emergency notification that has not yet been
// confirmed delivered. It exists in storage if and only if delivery is
// unconfirmed: created when a send fails or the device is offline, deleted
// only after the destination acknowledges receipt. Alert ids are assigned by
// the store's auto-increment sequence, so ascending id order is insertion
// order. Every alert also carries an idempotency key (UUID v4, generated at
// first send attempt) that travels with the payload so the destination can
// deduplicate the resends inherent in at-least-once delivery.
//
// The alert payload itself is opaque JSON to this layer. The documented shape
// the dashboard sends is [AlertPayload].
package domain
