package elevation

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/safeland/floodrisk-cli/internal/cache"
	"github.com/safeland/floodrisk-cli/internal/geo"
)

// DefaultSlope is the moderate slope substituted when elevation sampling
// fails, in degrees.
const DefaultSlope = 5.0

// SlopeSample is a terrain slope estimate in degrees, [0,90].
type SlopeSample struct {
	Degrees  float64
	Fallback bool
}

// SlopeEstimator derives local terrain slope from four elevation samples
// offset around a point. The elevation dependency is explicit so tests can
// point it at a fake provider.
type SlopeEstimator struct {
	elev  *Client
	store *cache.Cache
}

// NewSlopeEstimator creates a SlopeEstimator over the given elevation client.
func NewSlopeEstimator(elev *Client, store *cache.Cache) *SlopeEstimator {
	return &SlopeEstimator{elev: elev, store: store}
}

// Slope estimates terrain slope at coord using samples offset by radiusM
// meters along the cardinal directions. The offsets are a pure function of
// coordinate and radius, so the estimate is deterministic for fixed
// elevation inputs. Any degraded elevation sample degrades the whole slope
// to the fallback constant.
func (s *SlopeEstimator) Slope(ctx context.Context, coord geo.Coordinate, radiusM float64) SlopeSample {
	key := cache.Key("slope", coord.Lat, coord.Lon, radiusM)
	if v, ok := cache.Lookup[float64](s.store, key, s.elev.ttl); ok {
		return SlopeSample{Degrees: v}
	}

	offset := radiusM / geo.MetersPerDegree
	points := []geo.Coordinate{
		{Lat: coord.Lat + offset, Lon: coord.Lon}, // north
		{Lat: coord.Lat - offset, Lon: coord.Lon}, // south
		{Lat: coord.Lat, Lon: coord.Lon + offset}, // east
		{Lat: coord.Lat, Lon: coord.Lon - offset}, // west
	}

	samples := s.elev.ElevationBatch(ctx, points)
	for _, sm := range samples {
		if sm.Fallback {
			zap.L().Warn("slope: degraded elevation input, using fallback",
				zap.Float64("lat", coord.Lat),
				zap.Float64("lon", coord.Lon),
			)
			return SlopeSample{Degrees: DefaultSlope, Fallback: true}
		}
	}

	north, south, east, west := samples[0], samples[1], samples[2], samples[3]

	riseNS := math.Abs(north.Meters-south.Meters) / (2 * radiusM)
	riseEW := math.Abs(east.Meters-west.Meters) / (2 * radiusM)

	degrees := math.Atan(math.Max(riseNS, riseEW)) * 180 / math.Pi
	degrees = math.Max(0, math.Min(90, degrees))

	s.store.Put(key, degrees)
	return SlopeSample{Degrees: degrees}
}
