package domain

import (
	"encoding/json"
	"time"
)

// CacheRecord is the envelope persisted for every cached domain object.
// Data holds the payload as written; Timestamp is epoch milliseconds at
// write time and is never mutated afterwards.
type CacheRecord struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// TileRecord is a cached map tile, keyed by tile URL. Same TTL semantics as
// CacheRecord, but the blob is stored directly instead of a JSON payload.
type TileRecord struct {
	URL       string `json:"url"`
	Blob      []byte `json:"blob"`
	Timestamp int64  `json:"timestamp"`
}

// PendingAlert is an emergency notification awaiting confirmed delivery.
// It exists in storage iff the alert has not been acknowledged by the
// destination. ID is assigned by the store's auto-increment sequence.
type PendingAlert struct {
	ID             uint64          `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	Payload        json.RawMessage `json:"payload"`
	Timestamp      int64           `json:"timestamp"`
}

// QueuedAt returns the enqueue time as a UTC time.Time.
func (a PendingAlert) QueuedAt() time.Time {
	return time.UnixMilli(a.Timestamp).UTC()
}

// Geo is a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DisasterEvent is one entry of the aggregated disaster feed shown on the
// dashboard map (earthquakes, floods, wildfires, storms).
type DisasterEvent struct {
	ID         string    `json:"id"`
	EventType  string    `json:"type"`
	Title      string    `json:"title"`
	Severity   string    `json:"severity,omitempty"`
	Geo        Geo       `json:"geo"`
	Magnitude  float64   `json:"magnitude,omitempty"`
	ReportedAt time.Time `json:"reported_at"`
	Source     string    `json:"source,omitempty"`
	DetailURL  string    `json:"detail_url,omitempty"`
}

// WeatherSnapshot is the current-conditions summary for one location. The
// normalized location string is the cache key.
type WeatherSnapshot struct {
	Location     string    `json:"location"`
	Condition    string    `json:"condition"`
	TemperatureC float64   `json:"temperature_c"`
	WindKph      float64   `json:"wind_kph,omitempty"`
	HumidityPct  int       `json:"humidity_pct,omitempty"`
	ObservedAt   time.Time `json:"observed_at"`
	Warnings     []string  `json:"warnings,omitempty"`
}

// Facility is an emergency facility (shelter, hospital, pharmacy) near the
// user.
type Facility struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Geo     Geo    `json:"geo"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Guideline is static safety reference text for one disaster type.
type Guideline struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// AlertLocation pins an alert to where the sender was.
type AlertLocation struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// AlertPayload is the documented shape of an emergency alert as the dashboard
// sends it. The offline layer treats the payload as opaque JSON; this type
// exists for the delivery boundary and for tooling.
type AlertPayload struct {
	Contacts                []string      `json:"contacts"`
	SenderName              string        `json:"sender_name"`
	Location                AlertLocation `json:"location"`
	StatusText              string        `json:"status_text"`
	Timestamp               time.Time     `json:"timestamp"`
	NearbyDisasterSummaries []string      `json:"nearby_disaster_summaries,omitempty"`
}

// StorageUsage reports consumed versus available on-device storage. It is
// ephemeral: recomputed on demand, never persisted.
type StorageUsage struct {
	UsedBytes  uint64  `json:"used_bytes"`
	QuotaBytes uint64  `json:"quota_bytes"`
	Percentage float64 `json:"percentage"`
}
