package enrich

import (
	"context"

	"go.uber.org/zap"

	"github.com/safeland/floodrisk-cli/internal/floodhist"
	"github.com/safeland/floodrisk-cli/internal/geo"
	"github.com/safeland/floodrisk-cli/internal/source/elevation"
	"github.com/safeland/floodrisk-cli/internal/source/rainfall"
	"github.com/safeland/floodrisk-cli/internal/waterway"
	"github.com/safeland/floodrisk-cli/internal/zone"
)

// Assembler derives a complete FeatureVector per coordinate. Any single
// source failing contributes its documented fallback; assembly itself never
// fails.
type Assembler struct {
	elev      *elevation.Client
	slope     *elevation.SlopeEstimator
	zones     *zone.Classifier
	waterways *waterway.Index
	floods    *floodhist.Extractor
	rain      *rainfall.Client

	schemaVersion int
	slopeRadiusM  float64
	rainYears     int
	densityRadius float64
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithSchemaVersion selects the output column set (default SchemaV1).
// SchemaV2 requires a rainfall client.
func WithSchemaVersion(v int) AssemblerOption {
	return func(a *Assembler) { a.schemaVersion = v }
}

// WithSlopeRadius sets the slope sampling radius in meters (default 500).
func WithSlopeRadius(m float64) AssemblerOption {
	return func(a *Assembler) { a.slopeRadiusM = m }
}

// WithRainfallClient enables the schema v2 rainfall columns.
func WithRainfallClient(c *rainfall.Client, years int) AssemblerOption {
	return func(a *Assembler) {
		a.rain = c
		if years > 0 {
			a.rainYears = years
		}
	}
}

// WithDensityRadius sets the drainage density analysis radius in km.
func WithDensityRadius(km float64) AssemblerOption {
	return func(a *Assembler) { a.densityRadius = km }
}

// NewAssembler wires the feature sources together.
func NewAssembler(
	elev *elevation.Client,
	slope *elevation.SlopeEstimator,
	zones *zone.Classifier,
	waterways *waterway.Index,
	floods *floodhist.Extractor,
	opts ...AssemblerOption,
) *Assembler {
	a := &Assembler{
		elev:          elev,
		slope:         slope,
		zones:         zones,
		waterways:     waterways,
		floods:        floods,
		schemaVersion: SchemaV1,
		slopeRadiusM:  500,
		rainYears:     10,
		densityRadius: waterway.DefaultDensityRadiusKM,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rain == nil && a.schemaVersion >= SchemaV2 {
		zap.L().Warn("enrich: schema v2 requested without rainfall client, falling back to v1")
		a.schemaVersion = SchemaV1
	}
	return a
}

// SchemaVersion reports the active output schema.
func (a *Assembler) SchemaVersion() int { return a.schemaVersion }

// Years returns the flood event years the vector's flood columns cover.
func (a *Assembler) Years() []int { return a.floods.Years() }

// Assemble derives the feature vector for one coordinate.
func (a *Assembler) Assemble(ctx context.Context, coord geo.Coordinate) FeatureVector {
	coord = geo.Quantize(coord, 4)

	years := a.floods.Years()
	v := FeatureVector{
		Latitude:  coord.Lat,
		Longitude: coord.Lon,
		Flooded:   make([]int, len(years)),
		Known:     true,
	}

	es := a.elev.Elevation(ctx, coord)
	v.Elevation = es.Meters
	if es.Fallback {
		v.Degraded = append(v.Degraded, "elevation")
	}

	ss := a.slope.Slope(ctx, coord, a.slopeRadiusM)
	v.Slope = ss.Degrees
	if ss.Fallback {
		v.Degraded = append(v.Degraded, "slope")
	}

	zr := a.zones.Zone(ctx, coord)
	v.KSDMAZone = zr.Level

	rd := a.waterways.NearestDistance(coord)
	v.RiverDistance = rd.KM
	if rd.Fallback {
		v.Degraded = append(v.Degraded, "river_distance")
	}
	v.DrainageDensity = a.waterways.DrainageDensity(coord, a.densityRadius)

	count := a.floods.Count(ctx, coord)
	v.Known = count.Known
	switch {
	case count.Fallback:
		v.Degraded = append(v.Degraded, "flood_history")
		v.FloodHistoryCount = count.Count
	default:
		for i, year := range years {
			if occ := a.floods.Label(coord, year); occ.Known && occ.Flooded {
				v.Flooded[i] = 1
				v.FloodHistoryCount++
			}
		}
	}

	if a.schemaVersion >= SchemaV2 {
		ar := a.rain.AnnualRainfall(ctx, coord, a.rainYears)
		v.AnnualRainfall = ar.Value
		if ar.Fallback {
			v.Degraded = append(v.Degraded, "rainfall")
		}
		events, ok := a.rain.ExtremeEvents(ctx, coord, a.rainYears)
		v.ExtremeEvents = events
		if !ok {
			v.Degraded = append(v.Degraded, "extreme_events")
		}
	}

	if len(v.Degraded) > 0 {
		zap.L().Debug("enrich: degraded sources",
			zap.Float64("lat", coord.Lat),
			zap.Float64("lon", coord.Lon),
			zap.Strings("sources", v.Degraded),
		)
	}
	return v
}
