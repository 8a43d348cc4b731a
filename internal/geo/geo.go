// Package geo provides the geodesic primitives the clustering engine needs
// process-side. All results are in metres; degree-space arithmetic never
// leaks into comparisons.
package geo

import (
	"math"

	"github.com/transcaribe/tracking_core/internal/models"
)

const earthRadius = 6371000 // meters

// Haversine calculates the distance between two coordinates in meters
func Haversine(a, b models.Point) float64 {
	lat1Rad := a.Lat * math.Pi / 180
	lat2Rad := b.Lat * math.Pi / 180
	deltaLat := (b.Lat - a.Lat) * math.Pi / 180
	deltaLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadius * c
}

// DistanceToPolyline returns the minimum distance in meters from p to the
// piecewise-linear path through line. A single-point line degenerates to
// point distance; an empty line returns +Inf.
func DistanceToPolyline(p models.Point, line []models.Point) float64 {
	switch len(line) {
	case 0:
		return math.Inf(1)
	case 1:
		return Haversine(p, line[0])
	}

	min := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		if d := distanceToSegment(p, line[i], line[i+1]); d < min {
			min = d
		}
	}
	return min
}

// distanceToSegment projects p onto the segment a-b in a local
// equirectangular plane centered on p, then measures the geodesic distance
// to the nearest point. Accurate at metropolitan scales.
func distanceToSegment(p, a, b models.Point) float64 {
	// Local planar coordinates in meters relative to p
	cosLat := math.Cos(p.Lat * math.Pi / 180)
	ax := (a.Lon - p.Lon) * cosLat * metersPerDegree
	ay := (a.Lat - p.Lat) * metersPerDegree
	bx := (b.Lon - p.Lon) * cosLat * metersPerDegree
	by := (b.Lat - p.Lat) * metersPerDegree

	dx := bx - ax
	dy := by - ay

	segLenSq := dx*dx + dy*dy
	if segLenSq == 0 {
		return Haversine(p, a)
	}

	// Parameter of the projection of p (the local origin) onto a-b
	t := -(ax*dx + ay*dy) / segLenSq
	t = math.Max(0, math.Min(1, t))

	nearest := models.Point{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lon: a.Lon + (b.Lon-a.Lon)*t,
	}
	return Haversine(p, nearest)
}

// metersPerDegree is the approximate length of one degree of latitude.
const metersPerDegree = 111320.0

// Centroid returns the arithmetic centroid of the given points.
func Centroid(pts []models.Point) models.Point {
	if len(pts) == 0 {
		return models.Point{}
	}
	var lat, lon float64
	for _, p := range pts {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(pts))
	return models.Point{Lat: lat / n, Lon: lon / n}
}

// ValidCoordinates reports whether lat/lon are in WGS84 range.
func ValidCoordinates(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
