package geoio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

const sampleGeoJSON = `{
	"type": "FeatureCollection",
	"features": [
		{
			"type": "Feature",
			"properties": {"vulnerability": 4, "name": "Kuttanad"},
			"geometry": {
				"type": "Polygon",
				"coordinates": [[[76.3, 9.3], [76.6, 9.3], [76.6, 9.7], [76.3, 9.7], [76.3, 9.3]]]
			}
		},
		{
			"type": "Feature",
			"properties": {"waterway": "river", "name": "Periyar"},
			"geometry": {
				"type": "LineString",
				"coordinates": [[76.2, 10.0], [76.4, 10.1], [76.6, 10.15]]
			}
		}
	]
}`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadGeoJSON(t *testing.T) {
	path := writeTemp(t, "layer.geojson", sampleGeoJSON)

	features, err := LoadGeoJSON(path)
	require.NoError(t, err)
	require.Len(t, features, 2)

	poly, ok := features[0].Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, 1, poly.NumLinearRings())
	assert.Equal(t, 4, IntProperty(features[0].Properties, 3, "vulnerability"))
	assert.Equal(t, "Kuttanad", StringProperty(features[0].Properties, "name"))

	line, ok := features[1].Geometry.(*geom.LineString)
	require.True(t, ok)
	assert.Equal(t, 3, line.NumCoords())
	assert.Equal(t, "river", StringProperty(features[1].Properties, "waterway"))
}

func TestLoadGeoJSONMissingFile(t *testing.T) {
	_, err := LoadGeoJSON(filepath.Join(t.TempDir(), "nope.geojson"))
	assert.Error(t, err)
}

func TestLoadGeoJSONMalformed(t *testing.T) {
	path := writeTemp(t, "bad.geojson", `{"type": "FeatureCollection", "features": [{`)
	_, err := LoadGeoJSON(path)
	assert.Error(t, err)
}

func TestLoadVectorDispatch(t *testing.T) {
	path := writeTemp(t, "layer.geojson", sampleGeoJSON)
	features, err := LoadVector(path)
	require.NoError(t, err)
	assert.Len(t, features, 2)

	_, err = LoadVector(writeTemp(t, "layer.csv", "a,b\n"))
	assert.Error(t, err)
}

func TestIntProperty(t *testing.T) {
	props := map[string]any{
		"zone_f":   42.0,
		"zone_i":   7,
		"zone_s":   " 3 ",
		"zone_bad": "not-a-number",
	}

	assert.Equal(t, 42, IntProperty(props, 0, "zone_f"))
	assert.Equal(t, 7, IntProperty(props, 0, "zone_i"))
	assert.Equal(t, 3, IntProperty(props, 0, "zone_s"))
	assert.Equal(t, 9, IntProperty(props, 9, "zone_bad"))
	assert.Equal(t, 9, IntProperty(props, 9, "missing"))
	// First present name wins.
	assert.Equal(t, 7, IntProperty(props, 0, "missing", "zone_i", "zone_f"))
}

func TestStringProperty(t *testing.T) {
	props := map[string]any{"name": " Periyar ", "num": 3.0}
	assert.Equal(t, "Periyar", StringProperty(props, "name"))
	assert.Equal(t, "", StringProperty(props, "num"))
	assert.Equal(t, "", StringProperty(props, "missing"))
}
