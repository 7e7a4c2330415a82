// Package dataset builds and balances flood risk training data: sampling
// labeled points out of flood extent rasters, generating non-flooded
// counter-examples, and reading and writing the tabular files the model
// trains on.
package dataset

import (
	"math/rand"

	"go.uber.org/zap"

	"github.com/safeland/floodrisk-cli/internal/classify"
	"github.com/safeland/floodrisk-cli/internal/floodhist"
	"github.com/safeland/floodrisk-cli/internal/geo"
)

// Record is one labeled training location. Flooded is aligned with the
// owning Set's Years.
type Record struct {
	Latitude  float64
	Longitude float64
	Flooded   []int
	Count     int
	Risk      classify.Risk
}

// Set is a training dataset with its flood-year column layout.
type Set struct {
	Years   []int
	Records []Record
}

// Extract samples flooded pixel centers from per-year rasters and merges
// them into one record per location. Coordinates are quantized to 4
// decimal places (roughly 11 m, finer than the raster cells) so the same
// cell sampled in two years collapses into one record with both labels
// set.
func Extract(rasters map[int]*floodhist.Raster, years []int, samplesPerYear int, rng *rand.Rand) *Set {
	type accum struct {
		flooded []int
	}
	merged := make(map[geo.Coordinate]*accum)

	for yi, year := range years {
		r, ok := rasters[year]
		if !ok {
			zap.L().Warn("dataset: no raster for year", zap.Int("year", year))
			continue
		}

		cells := r.FloodedCells()
		if len(cells) == 0 {
			zap.L().Warn("dataset: raster has no flood pixels", zap.Int("year", year))
			continue
		}

		n := samplesPerYear
		if n <= 0 || n > len(cells) {
			n = len(cells)
		}
		for _, idx := range rng.Perm(len(cells))[:n] {
			key := geo.Quantize(cells[idx], 4)
			a, ok := merged[key]
			if !ok {
				a = &accum{flooded: make([]int, len(years))}
				merged[key] = a
			}
			a.flooded[yi] = 1
		}

		zap.L().Info("dataset: sampled flood pixels",
			zap.Int("year", year),
			zap.Int("available", len(cells)),
			zap.Int("sampled", n),
		)
	}

	set := &Set{Years: years, Records: make([]Record, 0, len(merged))}
	for coord, a := range merged {
		rec := Record{
			Latitude:  coord.Lat,
			Longitude: coord.Lon,
			Flooded:   a.flooded,
		}
		for _, f := range a.flooded {
			rec.Count += f
		}
		rec.Risk = classify.FromCount(rec.Count)
		set.Records = append(set.Records, rec)
	}
	return set
}

// maxAttemptFactor bounds rejection sampling in Balance.
const maxAttemptFactor = 50

// Balance appends n non-flooded records sampled uniformly from the
// rasters' shared extent. A candidate outside any raster's bounds is
// unknown, not safe, and is skipped; a candidate flooded in any year is
// rejected. Returns the number of records added, which falls short of n
// only when the attempt budget runs out.
func Balance(set *Set, rasters map[int]*floodhist.Raster, n int, rng *rand.Rand) int {
	var ref *floodhist.Raster
	for _, year := range set.Years {
		if r, ok := rasters[year]; ok {
			ref = r
			break
		}
	}
	if ref == nil || n <= 0 {
		return 0
	}

	minLon, minLat, maxLon, maxLat := ref.Bounds()
	added := 0
	for attempts := 0; added < n && attempts < n*maxAttemptFactor; attempts++ {
		coord := geo.Quantize(geo.Coordinate{
			Lat: minLat + rng.Float64()*(maxLat-minLat),
			Lon: minLon + rng.Float64()*(maxLon-minLon),
		}, 4)

		flooded := false
		known := true
		for _, year := range set.Years {
			r, ok := rasters[year]
			if !ok {
				continue
			}
			v, in := r.Sample(coord.Lon, coord.Lat)
			if !in {
				known = false
				break
			}
			if v > 0 && v != r.NoData() {
				flooded = true
				break
			}
		}
		if !known || flooded {
			continue
		}

		set.Records = append(set.Records, Record{
			Latitude:  coord.Lat,
			Longitude: coord.Lon,
			Flooded:   make([]int, len(set.Years)),
			Risk:      classify.RiskLow,
		})
		added++
	}

	if added < n {
		zap.L().Warn("dataset: balance fell short",
			zap.Int("requested", n),
			zap.Int("added", added),
		)
	}
	return added
}

// Distribution counts records per risk label.
func (s *Set) Distribution() map[classify.Risk]int {
	dist := make(map[classify.Risk]int)
	for _, r := range s.Records {
		dist[r.Risk]++
	}
	return dist
}
