package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/transcaribe/tracking_core/internal/models"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name      string
		a, b      models.Point
		expectedM float64
		tolerance float64
	}{
		{
			name:      "Same point",
			a:         models.Point{Lat: 10.4, Lon: -75.5},
			b:         models.Point{Lat: 10.4, Lon: -75.5},
			expectedM: 0,
			tolerance: 0.001,
		},
		{
			name:      "One degree of latitude",
			a:         models.Point{Lat: 10.0, Lon: -75.5},
			b:         models.Point{Lat: 11.0, Lon: -75.5},
			expectedM: 111195,
			tolerance: 200,
		},
		{
			name:      "Short hop across the city",
			a:         models.Point{Lat: 10.40, Lon: -75.50},
			b:         models.Point{Lat: 10.41, Lon: -75.51},
			expectedM: 1558,
			tolerance: 20,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expectedM, Haversine(tt.a, tt.b), tt.tolerance)
		})
	}
}

func TestHaversineSymmetry(t *testing.T) {
	a := models.Point{Lat: 10.4071, Lon: -75.5097}
	b := models.Point{Lat: 10.3932, Lon: -75.4832}
	assert.Equal(t, Haversine(a, b), Haversine(b, a))
}

func TestDistanceToPolyline(t *testing.T) {
	// Roughly north-south line near Cartagena
	line := []models.Point{
		{Lat: 10.40, Lon: -75.50},
		{Lat: 10.41, Lon: -75.50},
		{Lat: 10.42, Lon: -75.50},
	}

	t.Run("Point on a vertex", func(t *testing.T) {
		d := DistanceToPolyline(models.Point{Lat: 10.41, Lon: -75.50}, line)
		assert.InDelta(t, 0, d, 0.5)
	})

	t.Run("Point between vertices", func(t *testing.T) {
		d := DistanceToPolyline(models.Point{Lat: 10.405, Lon: -75.50}, line)
		assert.InDelta(t, 0, d, 1)
	})

	t.Run("Point beside the line", func(t *testing.T) {
		// ~0.0003 degrees of longitude is about 33 m at this latitude
		d := DistanceToPolyline(models.Point{Lat: 10.405, Lon: -75.5003}, line)
		assert.InDelta(t, 33, d, 3)
	})

	t.Run("Point beyond the endpoint clamps to it", func(t *testing.T) {
		p := models.Point{Lat: 10.43, Lon: -75.50}
		d := DistanceToPolyline(p, line)
		assert.InDelta(t, Haversine(p, line[2]), d, 1)
	})

	t.Run("Empty polyline", func(t *testing.T) {
		assert.True(t, math.IsInf(DistanceToPolyline(models.Point{Lat: 10.4, Lon: -75.5}, nil), 1))
	})

	t.Run("Single point polyline", func(t *testing.T) {
		p := models.Point{Lat: 10.41, Lon: -75.50}
		d := DistanceToPolyline(p, line[:1])
		assert.InDelta(t, Haversine(p, line[0]), d, 0.5)
	})
}

func TestCentroid(t *testing.T) {
	pts := []models.Point{
		{Lat: 10.40, Lon: -75.50},
		{Lat: 10.42, Lon: -75.52},
	}
	c := Centroid(pts)
	assert.InDelta(t, 10.41, c.Lat, 1e-9)
	assert.InDelta(t, -75.51, c.Lon, 1e-9)

	assert.Equal(t, models.Point{}, Centroid(nil))
}

func TestValidCoordinates(t *testing.T) {
	assert.True(t, ValidCoordinates(10.4, -75.5))
	assert.True(t, ValidCoordinates(-90, 180))
	assert.False(t, ValidCoordinates(90.1, 0))
	assert.False(t, ValidCoordinates(0, -180.5))
}
