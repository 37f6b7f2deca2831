// Package storage defines the named collections of the offline store and the
// sentinel errors shared by its backends and callers.
package storage

import "errors"

// ErrNotFound indicates a key has no record in its collection. Callers treat
// it as a cache miss, never as a failure.
var ErrNotFound = errors.New("record not found")

// ErrUnavailable indicates the platform denied persistent storage entirely
// (bad path, permissions, lock held). Fatal for the offline layer: without a
// store, queued alerts cannot be guaranteed.
var ErrUnavailable = errors.New("storage unavailable")

// Collection names a key-value namespace inside the store. Collections are
// independent: no transaction spans more than one.
type Collection string

const (
	CollectionDisasters  Collection = "disasters"
	CollectionWeather    Collection = "weather"
	CollectionFacilities Collection = "facilities"
	CollectionTiles      Collection = "tiles"
	CollectionGuidelines Collection = "guidelines"
	CollectionAlerts     Collection = "pending_alerts"
)

// Collections returns every collection the store provisions at open time.
func Collections() []Collection {
	return []Collection{
		CollectionDisasters,
		CollectionWeather,
		CollectionFacilities,
		CollectionTiles,
		CollectionGuidelines,
		CollectionAlerts,
	}
}

// Item is one key-value pair read from a collection.
type Item struct {
	Key   string
	Value []byte
}
