// Package graph materializes the weighted directed stop multigraph the trip
// planner searches. Nodes are stop ids; edges carry (next stop, route,
// travel seconds) derived from geodesic stop-to-stop distances.
package graph

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/transcaribe/tracking_core/internal/geo"
	"github.com/transcaribe/tracking_core/internal/models"
)

// minSegmentSeconds keeps zero-distance segments reachable without
// division hazards
const minSegmentSeconds = 1.0

// RouteSource yields every route with its ordered stop list
type RouteSource interface {
	AllRoutesWithStops(ctx context.Context) ([]models.Route, error)
}

// Build loads all routes from src and rebuilds the graph. For each route
// with ordered stops s1..sn it emits directed edges (si -> si+1) weighted
// by dist(si, si+1) / busSpeed; travel follows the route's stop order, so
// a one-way corridor is never ridable backwards. Every referenced stop
// becomes a node even when it has no outgoing edges.
func (g *Graph) Build(ctx context.Context, src RouteSource, busSpeedKph float64) error {
	startTime := time.Now()

	routes, err := src.AllRoutesWithStops(ctx)
	if err != nil {
		return fmt.Errorf("failed to load routes: %w", err)
	}

	busSpeedMps := busSpeedKph * 1000 / 3600
	if busSpeedMps <= 0 {
		return fmt.Errorf("invalid bus speed: %.2f km/h", busSpeedKph)
	}

	nodes := make(map[int64]models.Stop)
	edges := make(map[int64][]Edge)
	edgeCount := 0

	for _, route := range routes {
		for _, rs := range route.Stops {
			nodes[rs.Stop.ID] = rs.Stop
		}

		for i := 0; i < len(route.Stops)-1; i++ {
			from := route.Stops[i].Stop
			to := route.Stops[i+1].Stop

			seconds := geo.Haversine(from.Location, to.Location) / busSpeedMps
			if seconds < minSegmentSeconds {
				seconds = minSegmentSeconds
			}

			edges[from.ID] = append(edges[from.ID], Edge{
				To:        to.ID,
				RouteID:   route.ID,
				RouteName: route.Name,
				Seconds:   seconds,
			})
			edgeCount++
		}
	}

	g.swap(nodes, edges)

	log.Printf("Graph built in %v (%d routes, %d nodes, %d edges)",
		time.Since(startTime), len(routes), len(nodes), edgeCount)
	return nil
}
