package seed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAndCleanStops(t *testing.T) {
	tests := []struct {
		name     string
		stops    []Stop
		expected int
	}{
		{
			name: "All valid",
			stops: []Stop{
				{ID: 1, Name: "Portal", Latitude: 10.40, Longitude: -75.50},
				{ID: 2, Name: "Centro", Latitude: 10.42, Longitude: -75.54},
			},
			expected: 2,
		},
		{
			name: "Invalid latitude dropped",
			stops: []Stop{
				{ID: 1, Name: "Portal", Latitude: 95, Longitude: -75.50},
				{ID: 2, Name: "Centro", Latitude: 10.42, Longitude: -75.54},
			},
			expected: 1,
		},
		{
			name: "Invalid longitude dropped",
			stops: []Stop{
				{ID: 1, Name: "Portal", Latitude: 10.40, Longitude: -200},
			},
			expected: 0,
		},
		{
			name: "Null island dropped",
			stops: []Stop{
				{ID: 1, Name: "Portal", Latitude: 0, Longitude: 0},
			},
			expected: 0,
		},
		{
			name: "Nameless stop dropped",
			stops: []Stop{
				{ID: 1, Name: "   ", Latitude: 10.40, Longitude: -75.50},
			},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, ValidateAndCleanStops(tt.stops), tt.expected)
		})
	}
}

func TestValidateAndCleanStopsTrimsNames(t *testing.T) {
	cleaned := ValidateAndCleanStops([]Stop{
		{ID: 1, Name: "  Portal  ", Latitude: 10.40, Longitude: -75.50},
	})
	assert.Equal(t, "Portal", cleaned[0].Name)
}

func TestValidateRoutes(t *testing.T) {
	stops := []Stop{
		{ID: 1, Name: "A", Latitude: 10.40, Longitude: -75.50},
		{ID: 2, Name: "B", Latitude: 10.41, Longitude: -75.51},
		{ID: 3, Name: "C", Latitude: 10.42, Longitude: -75.52},
	}

	tests := []struct {
		name     string
		routes   []Route
		expected int
	}{
		{
			name: "Valid route",
			routes: []Route{
				{ID: 1, Name: "T101", StopIDs: []int64{1, 2, 3}},
			},
			expected: 1,
		},
		{
			name: "Unknown stop reference dropped but route kept",
			routes: []Route{
				{ID: 1, Name: "T101", StopIDs: []int64{1, 99, 2}},
			},
			expected: 1,
		},
		{
			name: "Route left with one stop is dropped",
			routes: []Route{
				{ID: 1, Name: "T101", StopIDs: []int64{1, 99}},
			},
			expected: 0,
		},
		{
			name: "Nameless route dropped",
			routes: []Route{
				{ID: 1, Name: "", StopIDs: []int64{1, 2}},
			},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Len(t, ValidateRoutes(tt.routes, stops), tt.expected)
		})
	}
}

func TestValidateRoutesKeepsOrdinalOrder(t *testing.T) {
	stops := []Stop{
		{ID: 1, Name: "A", Latitude: 10.40, Longitude: -75.50},
		{ID: 2, Name: "B", Latitude: 10.41, Longitude: -75.51},
		{ID: 3, Name: "C", Latitude: 10.42, Longitude: -75.52},
	}
	routes := ValidateRoutes([]Route{
		{ID: 1, Name: "T101", StopIDs: []int64{3, 99, 1, 2}},
	}, stops)

	assert.Equal(t, []int64{3, 1, 2}, routes[0].StopIDs)
}
