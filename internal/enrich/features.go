// Package enrich assembles per-coordinate feature vectors from the
// elevation, slope, zone, waterway, flood history, and rainfall sources,
// and runs bulk dataset enrichment over them.
package enrich

import (
	"strconv"

	"github.com/safeland/floodrisk-cli/internal/geo"
)

// Schema versions. Training and serving must agree on the exact column
// set; the version is recorded alongside any dataset produced.
const (
	// SchemaV1 is the core terrain and hydrology column set.
	SchemaV1 = 1
	// SchemaV2 appends rainfall climatology columns.
	SchemaV2 = 2
)

// FeatureVector is one enriched coordinate in the exact column order the
// classifier consumes. Flooded carries one label per configured event
// year, in the same order Columns lists them.
type FeatureVector struct {
	Latitude          float64
	Longitude         float64
	Flooded           []int
	FloodHistoryCount int
	KSDMAZone         int
	Elevation         float64
	Slope             float64
	RiverDistance     float64
	DrainageDensity   float64

	// Schema v2 columns.
	AnnualRainfall float64
	ExtremeEvents  int

	// Degraded marks which sources substituted fallback constants.
	Degraded []string
	// Known is false when flood labels come from a raster the coordinate
	// lies outside of; such vectors are excluded from training sets.
	Known bool
}

// Columns returns the header for the given schema version, in vector
// order.
func Columns(version int, years []int) []string {
	cols := []string{"latitude", "longitude"}
	for _, y := range years {
		cols = append(cols, "flooded_"+strconv.Itoa(y))
	}
	cols = append(cols,
		"flood_history_count",
		"ksdma_zone",
		"elevation",
		"slope",
		"river_distance",
		"drainage_density",
	)
	if version >= SchemaV2 {
		cols = append(cols, "annual_rainfall", "extreme_rain_events")
	}
	return cols
}

// Row renders the vector as strings in column order for the given schema
// version.
func (v FeatureVector) Row(version int) []string {
	row := []string{
		formatCoord(v.Latitude),
		formatCoord(v.Longitude),
	}
	for _, f := range v.Flooded {
		row = append(row, strconv.Itoa(f))
	}
	row = append(row,
		strconv.Itoa(v.FloodHistoryCount),
		strconv.Itoa(v.KSDMAZone),
		formatValue(v.Elevation),
		formatValue(v.Slope),
		formatValue(v.RiverDistance),
		formatValue(v.DrainageDensity),
	)
	if version >= SchemaV2 {
		row = append(row, formatValue(v.AnnualRainfall), strconv.Itoa(v.ExtremeEvents))
	}
	return row
}

// Values returns the numeric feature columns (everything after lat/lon) in
// vector order, as consumed by the prediction endpoint.
func (v FeatureVector) Values(version int) []float64 {
	vals := make([]float64, 0, len(v.Flooded)+8)
	for _, f := range v.Flooded {
		vals = append(vals, float64(f))
	}
	vals = append(vals,
		float64(v.FloodHistoryCount),
		float64(v.KSDMAZone),
		v.Elevation,
		v.Slope,
		v.RiverDistance,
		v.DrainageDensity,
	)
	if version >= SchemaV2 {
		vals = append(vals, v.AnnualRainfall, float64(v.ExtremeEvents))
	}
	return vals
}

// Coordinate returns the vector's location.
func (v FeatureVector) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: v.Latitude, Lon: v.Longitude}
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

func formatValue(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
