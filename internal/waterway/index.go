// Package waterway holds an in-memory index of river and stream geometries
// and answers nearest-distance and drainage-density queries against it.
package waterway

import (
	"math"
	"time"

	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/safeland/floodrisk-cli/internal/cache"
	"github.com/safeland/floodrisk-cli/internal/geo"
	"github.com/safeland/floodrisk-cli/internal/geoio"
)

const (
	// FallbackDistanceKM is reported when no waterway lies within the
	// search window.
	FallbackDistanceKM = 10.0

	// PrefilterDegrees bounds the nearest-distance search to a local box
	// around the query point. At Kerala latitudes 0.5 degrees is roughly
	// 55 km, well past any distance the classifier cares about.
	PrefilterDegrees = 0.5

	// DensitySaturationKM is the total waterway length that saturates
	// drainage density to 1.0. Heuristic, kept fixed so training-time and
	// serving-time enrichment agree.
	DensitySaturationKM = 10.0

	// DefaultDensityRadiusKM is the analysis radius for drainage density.
	DefaultDensityRadiusKM = 1.0
)

// Distance is a nearest-distance answer. Fallback is set when the index had
// nothing within the search window and the fixed default was substituted.
type Distance struct {
	KM       float64
	Fallback bool
}

type polyline struct {
	points []geo.Coordinate
	bounds geo.BBox
}

// Index is a loaded waterway layer, read-only after construction.
type Index struct {
	lines       []polyline
	waterBodies []polyline
	cache       *cache.Cache
	ttl         time.Duration
}

// Option configures an Index.
type Option func(*Index)

// WithCacheTTL sets the query cache expiry (default 7 days, waterway
// geometry changes slowly).
func WithCacheTTL(ttl time.Duration) Option {
	return func(x *Index) { x.ttl = ttl }
}

// New builds an Index over already-loaded features. Line geometries become
// waterways; polygon geometries become water bodies (lakes, reservoirs).
func New(features []geoio.Feature, store *cache.Cache, opts ...Option) *Index {
	x := &Index{
		cache: store,
		ttl:   7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(x)
	}

	for _, f := range features {
		switch g := f.Geometry.(type) {
		case *geom.LineString:
			x.addLine(lineCoords(g.FlatCoords(), g.Stride()))
		case *geom.MultiLineString:
			for i := 0; i < g.NumLineStrings(); i++ {
				ls := g.LineString(i)
				x.addLine(lineCoords(ls.FlatCoords(), ls.Stride()))
			}
		case *geom.Polygon:
			if g.NumLinearRings() > 0 {
				ring := g.LinearRing(0)
				x.addWaterBody(lineCoords(ring.FlatCoords(), ring.Stride()))
			}
		case *geom.MultiPolygon:
			for i := 0; i < g.NumPolygons(); i++ {
				p := g.Polygon(i)
				if p.NumLinearRings() > 0 {
					ring := p.LinearRing(0)
					x.addWaterBody(lineCoords(ring.FlatCoords(), ring.Stride()))
				}
			}
		}
	}
	return x
}

// Load reads a waterway layer file and builds an Index over it.
func Load(path string, store *cache.Cache, opts ...Option) (*Index, error) {
	features, err := geoio.LoadVector(path)
	if err != nil {
		return nil, err
	}
	x := New(features, store, opts...)
	zap.L().Info("waterway: index loaded",
		zap.String("path", path),
		zap.Int("lines", len(x.lines)),
		zap.Int("water_bodies", len(x.waterBodies)),
	)
	return x, nil
}

func lineCoords(flat []float64, stride int) []geo.Coordinate {
	pts := make([]geo.Coordinate, 0, len(flat)/stride)
	for i := 0; i+1 < len(flat); i += stride {
		pts = append(pts, geo.Coordinate{Lat: flat[i+1], Lon: flat[i]})
	}
	return pts
}

func (x *Index) addLine(pts []geo.Coordinate) {
	if len(pts) < 2 {
		return
	}
	x.lines = append(x.lines, polyline{points: pts, bounds: boundsOf(pts)})
}

func (x *Index) addWaterBody(pts []geo.Coordinate) {
	if len(pts) < 3 {
		return
	}
	x.waterBodies = append(x.waterBodies, polyline{points: pts, bounds: boundsOf(pts)})
}

func boundsOf(pts []geo.Coordinate) geo.BBox {
	b := geo.BBox{MinLat: math.MaxFloat64, MaxLat: -math.MaxFloat64, MinLon: math.MaxFloat64, MaxLon: -math.MaxFloat64}
	for _, p := range pts {
		b.MinLat = math.Min(b.MinLat, p.Lat)
		b.MaxLat = math.Max(b.MaxLat, p.Lat)
		b.MinLon = math.Min(b.MinLon, p.Lon)
		b.MaxLon = math.Max(b.MaxLon, p.Lon)
	}
	return b
}

// Lines reports the number of indexed waterway polylines.
func (x *Index) Lines() int { return len(x.lines) }

func searchWindow(coord geo.Coordinate, degrees float64) geo.BBox {
	return geo.BBox{
		MinLat: coord.Lat - degrees,
		MaxLat: coord.Lat + degrees,
		MinLon: coord.Lon - degrees,
		MaxLon: coord.Lon + degrees,
	}
}

func overlaps(a, b geo.BBox) bool {
	return a.MinLat <= b.MaxLat && a.MaxLat >= b.MinLat &&
		a.MinLon <= b.MaxLon && a.MaxLon >= b.MinLon
}

// NearestDistance returns the distance in km from the coordinate to the
// nearest indexed waterway segment. Only polylines whose bounding box
// intersects a local window around the point are examined; an empty window
// yields the fixed fallback.
func (x *Index) NearestDistance(coord geo.Coordinate) Distance {
	key := cache.Key("river_distance", coord.Lat, coord.Lon)
	if d, ok := cache.Lookup[Distance](x.cache, key, x.ttl); ok {
		return d
	}

	d := x.nearestTo(coord, x.lines)
	if !d.Fallback {
		x.cache.Put(key, d)
	}
	return d
}

// NearestWaterBody returns the distance in km to the nearest water body
// shoreline, with the same fallback behavior as NearestDistance.
func (x *Index) NearestWaterBody(coord geo.Coordinate) Distance {
	key := cache.Key("water_body", coord.Lat, coord.Lon)
	if d, ok := cache.Lookup[Distance](x.cache, key, x.ttl); ok {
		return d
	}

	d := x.nearestTo(coord, x.waterBodies)
	if !d.Fallback {
		x.cache.Put(key, d)
	}
	return d
}

func (x *Index) nearestTo(coord geo.Coordinate, lines []polyline) Distance {
	window := searchWindow(coord, PrefilterDegrees)
	min := math.Inf(1)
	for _, line := range lines {
		if !overlaps(window, line.bounds) {
			continue
		}
		for i := 0; i+1 < len(line.points); i++ {
			d := geo.PointSegmentDistanceKM(coord, line.points[i], line.points[i+1])
			if d < min {
				min = d
			}
		}
	}
	if math.IsInf(min, 1) {
		return Distance{KM: FallbackDistanceKM, Fallback: true}
	}
	return Distance{KM: min}
}

// DrainageDensity measures waterway presence around the coordinate on a 0..1
// scale: total length of indexed segments within radiusKm, saturating at
// DensitySaturationKM. An empty neighborhood is genuinely zero drainage, not
// a fallback.
func (x *Index) DrainageDensity(coord geo.Coordinate, radiusKm float64) float64 {
	if radiusKm <= 0 {
		radiusKm = DefaultDensityRadiusKM
	}
	key := cache.Key("drainage_density", coord.Lat, coord.Lon, radiusKm)
	density, _ := cache.GetOrCompute(x.cache, key, x.ttl, func() (float64, error) {
		// Window pad keeps the prefilter conservative: never drop a
		// segment that might still fall inside the radius.
		window := searchWindow(coord, radiusKm*1000/geo.MetersPerDegree+0.1)
		var total float64
		for _, line := range x.lines {
			if !overlaps(window, line.bounds) {
				continue
			}
			for i := 0; i+1 < len(line.points); i++ {
				a, b := line.points[i], line.points[i+1]
				if geo.PointSegmentDistanceKM(coord, a, b) <= radiusKm {
					total += geo.Haversine(a, b)
				}
			}
		}
		return math.Min(total/DensitySaturationKM, 1.0), nil
	})
	return density
}
