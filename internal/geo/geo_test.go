package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestCoordinateValidate(t *testing.T) {
	tests := []struct {
		name    string
		coord   Coordinate
		wantErr bool
	}{
		{"kochi", Coordinate{Lat: 9.93, Lon: 76.27}, false},
		{"north pole", Coordinate{Lat: 90, Lon: 0}, false},
		{"lat too high", Coordinate{Lat: 91, Lon: 0}, true},
		{"lat too low", Coordinate{Lat: -90.5, Lon: 0}, true},
		{"lon too high", Coordinate{Lat: 0, Lon: 181}, true},
		{"lon too low", Coordinate{Lat: 0, Lon: -180.01}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.coord.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKeralaBBoxContains(t *testing.T) {
	assert.True(t, KeralaBBox.Contains(Coordinate{Lat: 9.93, Lon: 76.27}))
	assert.False(t, KeralaBBox.Contains(Coordinate{Lat: 13.1, Lon: 76.27}))
	assert.False(t, KeralaBBox.Contains(Coordinate{Lat: 9.93, Lon: 78.0}))
}

func TestHaversine(t *testing.T) {
	kochi := Coordinate{Lat: 9.9312, Lon: 76.2673}
	tvm := Coordinate{Lat: 8.5241, Lon: 76.9366}

	// Kochi to Thiruvananthapuram is roughly 175 km as the crow flies.
	d := Haversine(kochi, tvm)
	assert.InDelta(t, 174, d, 5)

	assert.Zero(t, Haversine(kochi, kochi))
}

func TestPointSegmentDistanceKM(t *testing.T) {
	// Vertical segment through lon 76.0; point 0.1 degrees east of it.
	a := Coordinate{Lat: 9.0, Lon: 76.0}
	b := Coordinate{Lat: 10.0, Lon: 76.0}
	p := Coordinate{Lat: 9.5, Lon: 76.1}

	d := PointSegmentDistanceKM(p, a, b)
	// 0.1 deg of longitude at lat 9.5 is ~10.99 km.
	assert.InDelta(t, 10.99, d, 0.1)

	// Point beyond segment end: clamps to the nearest endpoint.
	p2 := Coordinate{Lat: 11.0, Lon: 76.0}
	d2 := PointSegmentDistanceKM(p2, a, b)
	assert.InDelta(t, Haversine(p2, b), d2, 0.5)

	// Degenerate zero-length segment.
	d3 := PointSegmentDistanceKM(p, a, a)
	assert.InDelta(t, Haversine(p, a), d3, 0.5)
}

func TestHaversineDegreeOfLatitude(t *testing.T) {
	a := Coordinate{Lat: 9.0, Lon: 76.0}
	b := Coordinate{Lat: 10.0, Lon: 76.0}
	// One degree of latitude is ~111 km.
	assert.InDelta(t, 111, Haversine(a, b), 0.5)
}

func newSquare(t *testing.T, minX, minY, maxX, maxY float64) *geom.Polygon {
	t.Helper()
	poly := geom.NewPolygon(geom.XY)
	ring := geom.NewLinearRingFlat(geom.XY, []float64{
		minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY,
	})
	require.NoError(t, poly.Push(ring))
	return poly
}

func TestPointInPolygon(t *testing.T) {
	sq := newSquare(t, 76.0, 9.0, 77.0, 10.0)

	assert.True(t, PointInPolygon(Coordinate{Lat: 9.5, Lon: 76.5}, sq))
	assert.False(t, PointInPolygon(Coordinate{Lat: 10.5, Lon: 76.5}, sq))
	assert.False(t, PointInPolygon(Coordinate{Lat: 9.5, Lon: 75.5}, sq))
	assert.False(t, PointInPolygon(Coordinate{Lat: 9.5, Lon: 76.5}, nil))
}

func TestPointInPolygonWithHole(t *testing.T) {
	poly := geom.NewPolygon(geom.XY)
	outer := geom.NewLinearRingFlat(geom.XY, []float64{
		76, 9, 77, 9, 77, 10, 76, 10, 76, 9,
	})
	hole := geom.NewLinearRingFlat(geom.XY, []float64{
		76.4, 9.4, 76.6, 9.4, 76.6, 9.6, 76.4, 9.6, 76.4, 9.4,
	})
	require.NoError(t, poly.Push(outer))
	require.NoError(t, poly.Push(hole))

	assert.True(t, PointInPolygon(Coordinate{Lat: 9.2, Lon: 76.2}, poly))
	assert.False(t, PointInPolygon(Coordinate{Lat: 9.5, Lon: 76.5}, poly), "inside the hole")
}

func TestPointInMultiPolygon(t *testing.T) {
	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(newSquare(t, 76.0, 9.0, 76.4, 9.4)))
	require.NoError(t, mp.Push(newSquare(t, 76.6, 9.6, 77.0, 10.0)))

	assert.True(t, PointInMultiPolygon(Coordinate{Lat: 9.2, Lon: 76.2}, mp))
	assert.True(t, PointInMultiPolygon(Coordinate{Lat: 9.8, Lon: 76.8}, mp))
	assert.False(t, PointInMultiPolygon(Coordinate{Lat: 9.5, Lon: 76.5}, mp), "in the gap")
	assert.False(t, PointInMultiPolygon(Coordinate{Lat: 9.2, Lon: 76.2}, nil))
}

func TestQuantize(t *testing.T) {
	c := Quantize(Coordinate{Lat: 9.931234567, Lon: 76.267891234}, 4)
	assert.Equal(t, 9.9312, c.Lat)
	assert.Equal(t, 76.2679, c.Lon)

	// Near-duplicates collapse to the same cell.
	a := Quantize(Coordinate{Lat: 9.93121, Lon: 76.26789}, 4)
	b := Quantize(Coordinate{Lat: 9.93123, Lon: 76.26791}, 4)
	assert.Equal(t, a, b)
}
