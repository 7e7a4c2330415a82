// Package geoio loads local vector layers (GeoJSON or ESRI shapefile) into
// go-geom features. Zone maps, flood footprints, and the waterway index all
// come through here.
package geoio

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Feature is one geometry with its attribute map.
type Feature struct {
	Geometry   geom.T
	Properties map[string]any
}

// LoadVector reads a layer file, dispatching on extension (.geojson/.json
// or .shp).
func LoadVector(path string) ([]Feature, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		return LoadGeoJSON(path)
	case ".shp":
		return LoadShapefile(path)
	default:
		return nil, eris.Errorf("geoio: unsupported layer format %q", path)
	}
}

// LoadGeoJSON reads a GeoJSON FeatureCollection into features. Features with
// nil geometry are skipped.
func LoadGeoJSON(path string) ([]Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geoio: read %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "geoio: parse %s", path)
	}

	features := make([]Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		features = append(features, Feature{
			Geometry:   f.Geometry,
			Properties: f.Properties,
		})
	}
	return features, nil
}

// WriteGeoJSON writes features as a GeoJSON FeatureCollection.
func WriteGeoJSON(path string, features []Feature) error {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(features))}
	for _, f := range features {
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   f.Geometry,
			Properties: f.Properties,
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "geoio: encode feature collection")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "geoio: write %s", path)
	}
	return nil
}

// IntProperty returns the first of the named properties as an int, or def.
// GeoJSON numbers decode as float64; shapefile attributes as strings.
func IntProperty(props map[string]any, def int, names ...string) int {
	for _, name := range names {
		v, ok := props[name]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case string:
			if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
				return i
			}
		}
	}
	return def
}

// StringProperty returns the first of the named properties as a string, or "".
func StringProperty(props map[string]any, names ...string) string {
	for _, name := range names {
		if v, ok := props[name]; ok {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
