// Package zone maps coordinates to KSDMA flood-vulnerability zones (1 very
// low .. 5 very high), by polygon containment against a zone map when one is
// loaded and by an elevation heuristic otherwise.
package zone

import (
	"context"
	"time"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/safeland/floodrisk-cli/internal/cache"
	"github.com/safeland/floodrisk-cli/internal/geo"
	"github.com/safeland/floodrisk-cli/internal/geoio"
	"github.com/safeland/floodrisk-cli/internal/source/elevation"
)

// DefaultZone is returned in polygon mode when no zone polygon contains the
// point: moderate risk.
const DefaultZone = 3

// FloodProneThreshold is the zone level at and above which a location counts
// as flood-prone.
const FloodProneThreshold = 4

// Source records how a zone level was derived.
type Source string

const (
	// SourceMap means the level came from a containing zone polygon.
	SourceMap Source = "map"
	// SourceDefault means the zone map was loaded but no polygon contained
	// the point.
	SourceDefault Source = "default"
	// SourceElevation means no zone map is loaded and the level came from
	// the elevation heuristic.
	SourceElevation Source = "elevation"
)

// Result is a classified vulnerability zone with its derivation source, so
// callers can tell a mapped zone from a heuristic one.
type Result struct {
	Level  int
	Source Source
}

// FromElevation derives a vulnerability zone from elevation alone: low
// ground floods first. This is the single shared fallback rule; the flood
// history heuristic reuses it rather than redefining the thresholds.
func FromElevation(elevM float64) int {
	switch {
	case elevM < 10:
		return 5
	case elevM < 30:
		return 4
	case elevM < 60:
		return 3
	case elevM < 100:
		return 2
	default:
		return 1
	}
}

type zoneFeature struct {
	geometry geom.T
	level    int
}

// Classifier answers vulnerability-zone queries.
type Classifier struct {
	features []zoneFeature
	elev     *elevation.Client
	cache    *cache.Cache
	ttl      time.Duration
}

// Option configures the Classifier.
type Option func(*Classifier)

// WithCacheTTL sets the cache expiry (default 30 days).
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Classifier) { c.ttl = ttl }
}

// WithZoneMap installs zone features directly, bypassing file loading.
// Containment checks preserve the given order: when polygons overlap, the
// earliest-listed feature wins.
func WithZoneMap(features []geoio.Feature) Option {
	return func(c *Classifier) { c.features = toZoneFeatures(features) }
}

// New creates a Classifier. Without a zone map it runs in elevation
// fallback mode.
func New(elev *elevation.Client, store *cache.Cache, opts ...Option) *Classifier {
	c := &Classifier{
		elev:  elev,
		cache: store,
		ttl:   30 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load creates a Classifier from a zone map file. A missing or malformed
// file is a one-time warning, not an error: the classifier starts in
// elevation fallback mode.
func Load(path string, elev *elevation.Client, store *cache.Cache, opts ...Option) *Classifier {
	c := New(elev, store, opts...)

	features, err := geoio.LoadVector(path)
	if err != nil {
		zap.L().Warn("zone: map unavailable, using elevation fallback",
			zap.String("path", path),
			zap.Error(err),
		)
		return c
	}

	c.features = toZoneFeatures(features)
	zap.L().Info("zone: map loaded", zap.Int("features", len(c.features)))
	return c
}

func toZoneFeatures(features []geoio.Feature) []zoneFeature {
	out := make([]zoneFeature, 0, len(features))
	for _, f := range features {
		level := geoio.IntProperty(f.Properties, DefaultZone, "vulnerability", "zone", "level")
		if level < 1 {
			level = 1
		}
		if level > 5 {
			level = 5
		}
		out = append(out, zoneFeature{geometry: f.Geometry, level: level})
	}
	return out
}

// MapLoaded reports whether a zone map is active.
func (c *Classifier) MapLoaded() bool { return len(c.features) > 0 }

// Zone classifies a coordinate. In polygon mode the first containing
// feature in load order wins; without containment the default moderate zone
// is returned. Without a map, the level comes from FromElevation over the
// elevation source.
func (c *Classifier) Zone(ctx context.Context, coord geo.Coordinate) Result {
	key := cache.Key("zone", coord.Lat, coord.Lon)
	if r, ok := cache.Lookup[Result](c.cache, key, c.ttl); ok {
		return r
	}

	var result Result
	if c.MapLoaded() {
		result = c.classifyByMap(coord)
	} else {
		sample := c.elev.Elevation(ctx, coord)
		result = Result{Level: FromElevation(sample.Meters), Source: SourceElevation}
		if sample.Fallback {
			// Heuristic over a substituted elevation: usable, not cacheable.
			return result
		}
	}

	c.cache.Put(key, result)
	return result
}

func (c *Classifier) classifyByMap(coord geo.Coordinate) Result {
	for _, f := range c.features {
		if containsPoint(coord, f.geometry) {
			return Result{Level: f.level, Source: SourceMap}
		}
	}
	return Result{Level: DefaultZone, Source: SourceDefault}
}

func containsPoint(coord geo.Coordinate, g geom.T) bool {
	switch s := g.(type) {
	case *geom.Polygon:
		return geo.PointInPolygon(coord, s)
	case *geom.MultiPolygon:
		return geo.PointInMultiPolygon(coord, s)
	default:
		return false
	}
}

// InFloodProneArea reports whether the coordinate lies in a high or very
// high vulnerability zone.
func (c *Classifier) InFloodProneArea(ctx context.Context, coord geo.Coordinate) bool {
	return c.Zone(ctx, coord).Level >= FloodProneThreshold
}

// Metadata describes a zone level for presentation.
type Metadata struct {
	Level          int    `json:"zone_level"`
	Label          string `json:"level"`
	Color          string `json:"color"`
	Recommendation string `json:"recommendation"`
}

var metadataTable = map[int]Metadata{
	1: {1, "Very Low", "#00C853", "Suitable for construction"},
	2: {2, "Low", "#64DD17", "Generally suitable with standard precautions"},
	3: {3, "Moderate", "#FFD600", "Requires flood mitigation measures"},
	4: {4, "High", "#FF6D00", "Construction discouraged, extensive mitigation needed"},
	5: {5, "Very High", "#DD2C00", "Not recommended for construction"},
}

// MetadataFor returns presentation metadata for a zone level; unknown levels
// map to moderate.
func MetadataFor(level int) Metadata {
	if m, ok := metadataTable[level]; ok {
		return m
	}
	return metadataTable[DefaultZone]
}
