// Package geo provides coordinate types and planar/spherical distance
// primitives shared by the feature sources.
package geo

import (
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// EarthRadiusKM is the mean Earth radius used for haversine distances.
const EarthRadiusKM = 6371.0

// MetersPerDegree approximates one degree of latitude at mid-latitudes.
const MetersPerDegree = 111000.0

// Coordinate is a WGS84 (latitude, longitude) pair.
type Coordinate struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Validate checks that the coordinate is within the valid WGS84 range.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return eris.Errorf("geo: latitude %f out of range [-90,90]", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return eris.Errorf("geo: longitude %f out of range [-180,180]", c.Lon)
	}
	return nil
}

// BBox is a latitude/longitude bounding box.
type BBox struct {
	MinLat float64 `mapstructure:"min_lat"`
	MaxLat float64 `mapstructure:"max_lat"`
	MinLon float64 `mapstructure:"min_lon"`
	MaxLon float64 `mapstructure:"max_lon"`
}

// KeralaBBox bounds the study region. Coordinates outside it are still
// accepted by every source; they just tend to hit fallback paths.
var KeralaBBox = BBox{MinLat: 8.2, MaxLat: 12.8, MinLon: 74.8, MaxLon: 77.5}

// Contains reports whether the coordinate falls inside the box.
func (b BBox) Contains(c Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat &&
		c.Lon >= b.MinLon && c.Lon <= b.MaxLon
}

// Haversine returns the great-circle distance between two coordinates in km.
func Haversine(a, b Coordinate) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusKM * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// localScale returns km-per-degree factors (kx for longitude, ky for
// latitude) at the given latitude. Valid for region-scale work well away
// from the poles; Kerala never crosses the antimeridian.
func localScale(latDeg float64) (kx, ky float64) {
	lat := latDeg * math.Pi / 180
	ky = 111.13292 - 0.55982*math.Cos(2*lat)
	kx = 111.41284 * math.Cos(lat)
	return kx, ky
}

// PointSegmentDistanceKM returns the distance in km from point p to the
// segment (a, b), computed on a plane locally projected around p. This is a
// documented approximation: exact enough at Kerala scale and strictly better
// than vertex-only distance for sparse polylines.
func PointSegmentDistanceKM(p, a, b Coordinate) float64 {
	kx, ky := localScale(p.Lat)

	ax, ay := (a.Lon-p.Lon)*kx, (a.Lat-p.Lat)*ky
	bx, by := (b.Lon-p.Lon)*kx, (b.Lat-p.Lat)*ky

	dx, dy := bx-ax, by-ay
	segLenSq := dx*dx + dy*dy
	if segLenSq == 0 {
		return math.Hypot(ax, ay)
	}

	// Projection parameter of the origin (p) onto the segment, clamped.
	t := -(ax*dx + ay*dy) / segLenSq
	t = math.Max(0, math.Min(1, t))

	cx, cy := ax+t*dx, ay+t*dy
	return math.Hypot(cx, cy)
}

// PointInPolygon reports whether p lies inside poly, holes respected.
// Boundary behavior follows the even-odd ray cast (points exactly on an
// edge may land on either side; callers treat that as a geometric edge case).
func PointInPolygon(p Coordinate, poly *geom.Polygon) bool {
	if poly == nil || poly.NumLinearRings() == 0 {
		return false
	}
	if !pointInRing(p, poly.LinearRing(0)) {
		return false
	}
	for i := 1; i < poly.NumLinearRings(); i++ {
		if pointInRing(p, poly.LinearRing(i)) {
			return false
		}
	}
	return true
}

// PointInMultiPolygon reports whether p lies inside any member polygon.
func PointInMultiPolygon(p Coordinate, mp *geom.MultiPolygon) bool {
	if mp == nil {
		return false
	}
	for i := 0; i < mp.NumPolygons(); i++ {
		if PointInPolygon(p, mp.Polygon(i)) {
			return true
		}
	}
	return false
}

func pointInRing(p Coordinate, ring *geom.LinearRing) bool {
	n := ring.NumCoords()
	if n < 3 {
		return false
	}
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		ci, cj := ring.Coord(i), ring.Coord(j)
		xi, yi := ci.X(), ci.Y()
		xj, yj := cj.X(), cj.Y()
		if (yi > p.Lat) != (yj > p.Lat) &&
			p.Lon < (xj-xi)*(p.Lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

// Quantize rounds a coordinate to the given number of decimal places.
// Four places (~11 m) is the grouping resolution used when consolidating
// raster-derived samples.
func Quantize(c Coordinate, places int) Coordinate {
	f := math.Pow10(places)
	return Coordinate{
		Lat: math.Round(c.Lat*f) / f,
		Lon: math.Round(c.Lon*f) / f,
	}
}
