// Package floodhist labels coordinates with historical flood occurrence per
// event year, from Sentinel-derived footprint polygons or rasterized flood
// extents, with an elevation and zone heuristic when neither is available.
package floodhist

import (
	"context"
	"fmt"
	"time"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/safeland/floodrisk-cli/internal/cache"
	"github.com/safeland/floodrisk-cli/internal/geo"
	"github.com/safeland/floodrisk-cli/internal/geoio"
	"github.com/safeland/floodrisk-cli/internal/source/elevation"
	"github.com/safeland/floodrisk-cli/internal/zone"
)

// DefaultYears are the major Kerala flood events with usable satellite
// coverage.
var DefaultYears = []int{2018, 2019, 2021}

// Occurrence is a per-year flood label. Known is false when the coordinate
// falls outside the study area for that year, which must be excluded from
// training rather than read as "not flooded".
type Occurrence struct {
	Flooded bool
	Known   bool
}

// CountResult is the multi-year flood count. Fallback marks a
// heuristic-derived count; Known false means the coordinate is outside the
// study area entirely.
type CountResult struct {
	Count    int
	Known    bool
	Fallback bool
}

// Extractor answers flood history queries over loaded footprint or raster
// layers.
type Extractor struct {
	years      []int
	footprints map[int][]geom.T
	rasters    map[int]*Raster
	elev       *elevation.Client
	zones      *zone.Classifier
	cache      *cache.Cache
	ttl        time.Duration
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCacheTTL sets the cache expiry (default 30 days).
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Extractor) { e.ttl = ttl }
}

// WithFootprints installs already-loaded footprint polygons keyed by flood
// year.
func WithFootprints(footprints map[int][]geom.T) Option {
	return func(e *Extractor) { e.footprints = footprints }
}

// WithRasters installs already-loaded flood extent rasters keyed by year.
// Raster layers take precedence over footprints.
func WithRasters(rasters map[int]*Raster) Option {
	return func(e *Extractor) { e.rasters = rasters }
}

// New creates an Extractor. With no footprints or rasters it answers from
// the elevation and vulnerability-zone heuristic.
func New(years []int, elev *elevation.Client, zones *zone.Classifier, store *cache.Cache, opts ...Option) *Extractor {
	if len(years) == 0 {
		years = DefaultYears
	}
	e := &Extractor{
		years: years,
		elev:  elev,
		zones: zones,
		cache: store,
		ttl:   30 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadFootprints reads a combined footprint GeoJSON whose features carry a
// flood_year property and groups the polygons by year. Years outside the
// extractor's configured set are ignored. Missing or malformed files are a
// one-time warning; the extractor stays in heuristic mode.
func (e *Extractor) LoadFootprints(path string) {
	features, err := geoio.LoadVector(path)
	if err != nil {
		zap.L().Warn("floodhist: footprints unavailable, using heuristic fallback",
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}

	byYear := make(map[int][]geom.T)
	for _, f := range features {
		year := geoio.IntProperty(f.Properties, 0, "flood_year", "year")
		if !e.hasYear(year) {
			continue
		}
		switch f.Geometry.(type) {
		case *geom.Polygon, *geom.MultiPolygon:
			byYear[year] = append(byYear[year], f.Geometry)
		}
	}
	e.footprints = byYear
	zap.L().Info("floodhist: footprints loaded",
		zap.String("path", path),
		zap.Int("years", len(byYear)),
	)
}

// LoadRasters reads one flood-extent raster per configured year by
// substituting the year into the pattern, e.g.
// "data/kerala_flood_%d_raster.asc". A year whose file is missing is
// skipped with a warning; its labels come back unknown.
func (e *Extractor) LoadRasters(pattern string) {
	rasters := make(map[int]*Raster)
	for _, year := range e.years {
		path := fmt.Sprintf(pattern, year)
		r, err := LoadASCIIGrid(path)
		if err != nil {
			zap.L().Warn("floodhist: raster unavailable",
				zap.Int("year", year),
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}
		rasters[year] = r
	}
	if len(rasters) > 0 {
		e.rasters = rasters
		zap.L().Info("floodhist: rasters loaded", zap.Int("years", len(rasters)))
	}
}

func (e *Extractor) hasYear(year int) bool {
	for _, y := range e.years {
		if y == year {
			return true
		}
	}
	return false
}

// Years returns the configured flood event years in order.
func (e *Extractor) Years() []int { return e.years }

// HasData reports whether any footprint or raster layer is loaded.
func (e *Extractor) HasData() bool {
	return len(e.rasters) > 0 || len(e.footprints) > 0
}

// Label reports whether the coordinate flooded in the given year. Raster
// layers win over footprints when both are loaded.
func (e *Extractor) Label(coord geo.Coordinate, year int) Occurrence {
	if len(e.rasters) > 0 {
		r, ok := e.rasters[year]
		if !ok {
			return Occurrence{}
		}
		v, in := r.Sample(coord.Lon, coord.Lat)
		if !in {
			return Occurrence{}
		}
		return Occurrence{Flooded: v > 0 && v != r.NoData(), Known: true}
	}

	if len(e.footprints) > 0 {
		for _, g := range e.footprints[year] {
			if containsPoint(coord, g) {
				return Occurrence{Flooded: true, Known: true}
			}
		}
		return Occurrence{Known: true}
	}

	return Occurrence{}
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

// Count sums flood occurrences across the configured years. With layers
// loaded, a coordinate unknown in every year yields Known false. Without
// layers the count comes from the elevation and zone heuristic.
func (e *Extractor) Count(ctx context.Context, coord geo.Coordinate) CountResult {
	key := cache.Key("flood_count", coord.Lat, coord.Lon)
	if r, ok := cache.Lookup[CountResult](e.cache, key, e.ttl); ok {
		return r
	}

	var result CountResult
	if e.HasData() {
		anyKnown := false
		for _, year := range e.years {
			occ := e.Label(coord, year)
			if !occ.Known {
				continue
			}
			anyKnown = true
			if occ.Flooded {
				result.Count++
			}
		}
		result.Known = anyKnown
	} else {
		result = e.heuristicCount(ctx, coord)
	}

	if result.Known && !result.Fallback {
		e.cache.Put(key, result)
	}
	return result
}

// heuristicCount estimates flood history from terrain: low-lying ground in
// a high vulnerability zone has almost certainly flooded in the event
// years.
func (e *Extractor) heuristicCount(ctx context.Context, coord geo.Coordinate) CountResult {
	sample := e.elev.Elevation(ctx, coord)
	level := e.zones.Zone(ctx, coord).Level

	result := CountResult{Known: true, Fallback: true}
	switch {
	case sample.Meters < 10 && level >= 4:
		result.Count = 3
	case sample.Meters < 30 && level >= 3:
		result.Count = 1
	}
	return result
}

// History reduces the multi-year count to a binary flooded-before label.
func (e *Extractor) History(ctx context.Context, coord geo.Coordinate) int {
	if r := e.Count(ctx, coord); r.Count > 0 {
		return 1
	}
	return 0
}
