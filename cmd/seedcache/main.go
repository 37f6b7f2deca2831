// Command seedcache fills an offline store with deterministic demo data so a
// dashboard can be exercised with no upstream network at all. It writes
// through the real cache manager, so every record carries the same envelope
// and timestamps the daemon itself would produce.
//
// Usage:
//
//	go run ./cmd/seedcache \
//	  -db data/offline.db \
//	  -lat 37.7749 -lng -122.4194 \
//	  -locations "San Francisco, CA; Oakland, CA"
//
// seedcache opens the store for writing and therefore cannot run while the
// daemon holds the file. Pass -stamp to backdate every record, which is handy
// for producing stale fixtures for sweep and inspection testing.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/harborlight/relief-offline/internal/cache"
	"github.com/harborlight/relief-offline/internal/domain"
	"github.com/harborlight/relief-offline/internal/observability"
	"github.com/harborlight/relief-offline/internal/storage/bbolt"
)

var disasterTypes = []string{"earthquake", "flood", "wildfire", "storm"}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	dbPath := flag.String("db", "", "path to the offline store file")
	lat := flag.Float64("lat", 37.7749, "center latitude for generated events")
	lng := flag.Float64("lng", -122.4194, "center longitude for generated events")
	events := flag.Int("events", 16, "number of disaster events to generate")
	facilities := flag.Int("facilities", 9, "number of emergency facilities to generate")
	locations := flag.String("locations", "San Francisco, CA; Oakland, CA; San Jose, CA",
		"semicolon-separated locations to generate weather for")
	zoom := flag.Int("zoom", 13, "tile zoom level for the seeded map tiles")
	seed := flag.Int64("seed", 1, "random seed for reproducible data")
	stamp := flag.String("stamp", "", "RFC3339 time to stamp records with (default: now)")
	flag.Parse()

	if *dbPath == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -db")
	}

	if *stamp != "" {
		at, err := time.Parse(time.RFC3339, *stamp)
		if err != nil {
			return fmt.Errorf("parse -stamp: %w", err)
		}
		domain.SetClock(clockwork.NewFakeClockAt(at))
		defer domain.SetClock(nil)
	}

	store, err := bbolt.Open(*dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	manager := cache.NewManager(store, 0, logger, observability.NewMetrics())
	rng := rand.New(rand.NewSource(*seed))
	ctx := context.Background()

	if err := manager.CacheDisasters(ctx, makeDisasters(rng, *lat, *lng, *events)); err != nil {
		return fmt.Errorf("seed disasters: %w", err)
	}
	log.Printf("disasters: %d events", *events)

	names := splitLocations(*locations)
	for _, name := range names {
		if err := manager.CacheWeather(ctx, makeWeather(rng, name)); err != nil {
			return fmt.Errorf("seed weather for %q: %w", name, err)
		}
	}
	log.Printf("weather: %d locations", len(names))

	if err := manager.CacheFacilities(ctx, makeFacilities(rng, *lat, *lng, *facilities)); err != nil {
		return fmt.Errorf("seed facilities: %w", err)
	}
	log.Printf("facilities: %d records", *facilities)

	if err := manager.CacheGuidelines(ctx, makeGuidelines()); err != nil {
		return fmt.Errorf("seed guidelines: %w", err)
	}
	log.Printf("guidelines: %d types", len(disasterTypes))

	tiles, err := makeTiles(rng, *lat, *lng, *zoom)
	if err != nil {
		return fmt.Errorf("render tiles: %w", err)
	}
	if err := manager.CacheTiles(ctx, tiles); err != nil {
		return fmt.Errorf("seed tiles: %w", err)
	}
	log.Printf("tiles: %d blobs at zoom %d", len(tiles), *zoom)

	printSummary(store)
	return nil
}

func splitLocations(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ";") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// makeDisasters scatters events around the center point, cycling through the
// disaster types the dashboard knows how to render.
func makeDisasters(rng *rand.Rand, lat, lng float64, count int) []domain.DisasterEvent {
	events := make([]domain.DisasterEvent, 0, count)
	for i := 0; i < count; i++ {
		eventType := disasterTypes[i%len(disasterTypes)]
		geo := domain.Geo{
			Lat: lat + (rng.Float64()-0.5),
			Lon: lng + (rng.Float64()-0.5),
		}

		e := domain.DisasterEvent{
			ID:         fmt.Sprintf("seed-%s-%03d", eventType, i+1),
			EventType:  eventType,
			Geo:        geo,
			ReportedAt: domain.Now().Add(-time.Duration(rng.Intn(48)) * time.Hour).UTC(),
			Source:     "seed",
		}

		switch eventType {
		case "earthquake":
			e.Magnitude = math.Round((2.5+rng.Float64()*4.5)*10) / 10
			e.Severity = quakeSeverity(e.Magnitude)
			e.Title = fmt.Sprintf("M%.1f earthquake near %.2f, %.2f", e.Magnitude, geo.Lat, geo.Lon)
		case "flood":
			e.Severity = pickSeverity(rng)
			e.Title = fmt.Sprintf("Flood warning near %.2f, %.2f", geo.Lat, geo.Lon)
		case "wildfire":
			e.Severity = pickSeverity(rng)
			e.Title = fmt.Sprintf("Wildfire reported near %.2f, %.2f", geo.Lat, geo.Lon)
		case "storm":
			e.Severity = pickSeverity(rng)
			e.Title = fmt.Sprintf("Severe storm cell near %.2f, %.2f", geo.Lat, geo.Lon)
		}

		events = append(events, e)
	}
	return events
}

func quakeSeverity(magnitude float64) string {
	switch {
	case magnitude >= 6.0:
		return "extreme"
	case magnitude >= 5.0:
		return "severe"
	case magnitude >= 4.0:
		return "moderate"
	default:
		return "minor"
	}
}

func pickSeverity(rng *rand.Rand) string {
	return []string{"minor", "moderate", "severe"}[rng.Intn(3)]
}

func makeWeather(rng *rand.Rand, location string) domain.WeatherSnapshot {
	conditions := []string{"clear", "partly cloudy", "overcast", "rain", "high winds"}
	condition := conditions[rng.Intn(len(conditions))]

	snapshot := domain.WeatherSnapshot{
		Location:     location,
		Condition:    condition,
		TemperatureC: math.Round((8+rng.Float64()*22)*10) / 10,
		WindKph:      math.Round(rng.Float64()*60*10) / 10,
		HumidityPct:  30 + rng.Intn(60),
		ObservedAt:   domain.Now().UTC(),
	}
	if condition == "high winds" {
		snapshot.Warnings = []string{"wind advisory in effect"}
	}
	return snapshot
}

func makeFacilities(rng *rand.Rand, lat, lng float64, count int) []domain.Facility {
	kinds := []string{"shelter", "hospital", "pharmacy"}
	names := map[string]string{
		"shelter":  "Community Shelter",
		"hospital": "General Hospital",
		"pharmacy": "Relief Pharmacy",
	}

	facilities := make([]domain.Facility, 0, count)
	for i := 0; i < count; i++ {
		kind := kinds[i%len(kinds)]
		facilities = append(facilities, domain.Facility{
			ID:      fmt.Sprintf("seed-%s-%03d", kind, i+1),
			Name:    fmt.Sprintf("%s #%d", names[kind], i/len(kinds)+1),
			Kind:    kind,
			Geo:     domain.Geo{Lat: lat + (rng.Float64()-0.5)/4, Lon: lng + (rng.Float64()-0.5)/4},
			Address: fmt.Sprintf("%d Main St", 100+rng.Intn(900)),
			Phone:   fmt.Sprintf("555-%04d", rng.Intn(10000)),
			Status:  "open",
		})
	}
	return facilities
}

func makeGuidelines() []domain.Guideline {
	return []domain.Guideline{
		{
			Type:  "earthquake",
			Title: "During an Earthquake",
			Content: "Drop, cover, and hold on. Stay away from windows and exterior walls. " +
				"If outdoors, move to open ground clear of buildings and power lines. " +
				"Expect aftershocks and do not re-enter damaged structures.",
		},
		{
			Type:  "flood",
			Title: "Flood Safety",
			Content: "Move to higher ground immediately. Never walk or drive through moving water; " +
				"fifteen centimeters can knock an adult down. Disconnect electrical equipment " +
				"only if you can do so without standing in water.",
		},
		{
			Type:  "wildfire",
			Title: "Wildfire Evacuation",
			Content: "Follow posted evacuation routes and leave early. Keep windows and vents closed " +
				"while driving. If trapped, shelter in a cleared area away from vegetation and " +
				"call emergency services with your position.",
		},
		{
			Type:  "storm",
			Title: "Severe Storm Precautions",
			Content: "Shelter in an interior room on the lowest floor. Stay clear of windows. " +
				"Charge devices while power is available and keep a battery radio within reach. " +
				"After the storm, treat every downed line as live.",
		},
	}
}

// makeTiles renders a 3x3 grid of solid-color PNG tiles centered on the
// slippy-map tile containing the center coordinate.
func makeTiles(rng *rand.Rand, lat, lng float64, zoom int) ([]domain.TileRecord, error) {
	centerX, centerY := tileXY(lat, lng, zoom)

	var tiles []domain.TileRecord
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			blob, err := renderTile(rng)
			if err != nil {
				return nil, err
			}
			tiles = append(tiles, domain.TileRecord{
				URL:  fmt.Sprintf("https://tile.openstreetmap.org/%d/%d/%d.png", zoom, centerX+dx, centerY+dy),
				Blob: blob,
			})
		}
	}
	return tiles, nil
}

// tileXY converts a coordinate to slippy-map tile indices.
func tileXY(lat, lng float64, zoom int) (int, int) {
	n := math.Exp2(float64(zoom))
	x := int((lng + 180.0) / 360.0 * n)
	latRad := lat * math.Pi / 180.0
	y := int((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n)
	return x, y
}

func renderTile(rng *rand.Rand) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	shade := uint8(200 + rng.Intn(40))
	fill := color.RGBA{R: shade - 30, G: shade, B: shade - 10, A: 255}
	for y := 0; y < 256; y++ {
		for x := 0; x < 256; x++ {
			img.SetRGBA(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode tile: %w", err)
	}
	return buf.Bytes(), nil
}

func printSummary(store *bbolt.Store) {
	fmt.Println("\n=== Seed complete ===")
	fmt.Printf("Store: %s\n", store.Path())
	if size, err := store.Size(); err == nil {
		fmt.Printf("Size:  %d bytes\n", size)
	}
	fmt.Println("Run cmd/inspect against the file to verify its contents.")
}
