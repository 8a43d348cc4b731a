package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/transcaribe/tracking_core/internal/models"
)

// RouteSummary is a route reference without its stop list
type RouteSummary struct {
	ID   int64
	Name string
}

// StopWithRoutes is a stop together with every route serving it
type StopWithRoutes struct {
	Stop      models.Stop
	DistanceM float64
	Routes    []RouteSummary
}

// RouteWithStops returns a route with its stops in ordinal order.
// Returns ErrNotFound for an unknown route id.
func (s *Store) RouteWithStops(ctx context.Context, routeID int64) (models.Route, error) {
	routes, err := routesWithStops(ctx, s.pool, &routeID)
	if err != nil {
		return models.Route{}, err
	}
	if len(routes) == 0 {
		return models.Route{}, ErrNotFound
	}
	return routes[0], nil
}

// AllRoutesWithStops returns every route with its ordered stop list
func (s *Store) AllRoutesWithStops(ctx context.Context) ([]models.Route, error) {
	return routesWithStops(ctx, s.pool, nil)
}

func routesWithStops(ctx context.Context, q querier, routeID *int64) ([]models.Route, error) {
	query := `
		SELECT r.id, r.name, s.id, s.name, ST_Y(s.location::geometry), ST_X(s.location::geometry), rs.ordinal
		FROM route r
		LEFT JOIN route_stop rs ON rs.route_id = r.id
		LEFT JOIN stop s ON s.id = rs.stop_id
	`
	args := []any{}
	if routeID != nil {
		query += " WHERE r.id = $1"
		args = append(args, *routeID)
	}
	query += " ORDER BY r.id, rs.ordinal"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}
	defer rows.Close()

	var routes []models.Route
	var current *models.Route

	for rows.Next() {
		var (
			rID, rName = int64(0), ""
			stopID     *int64
			stopName   *string
			lat, lon   *float64
			ordinal    *int
		)
		if err := rows.Scan(&rID, &rName, &stopID, &stopName, &lat, &lon, &ordinal); err != nil {
			return nil, fmt.Errorf("failed to scan route row: %w", err)
		}

		if current == nil || current.ID != rID {
			routes = append(routes, models.Route{ID: rID, Name: rName})
			current = &routes[len(routes)-1]
		}
		if stopID != nil {
			current.Stops = append(current.Stops, models.RouteStop{
				Stop: models.Stop{
					ID:       *stopID,
					Name:     *stopName,
					Location: models.Point{Lat: *lat, Lon: *lon},
				},
				Ordinal: *ordinal,
			})
		}
	}
	return routes, rows.Err()
}

// NearestStop returns the closest stop within radiusM of p, with its geodesic
// distance in meters, or (nil, 0, nil) when no stop is in range. Ties are
// broken by ascending stop id.
func (s *Store) NearestStop(ctx context.Context, p models.Point, radiusM float64) (*models.Stop, float64, error) {
	var stop models.Stop
	var distance float64

	err := s.pool.QueryRow(ctx, `
		SELECT id, name, ST_Y(location::geometry), ST_X(location::geometry),
		       ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS distance
		FROM stop
		WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY distance, id
		LIMIT 1
	`, p.Lon, p.Lat, radiusM).Scan(&stop.ID, &stop.Name, &stop.Location.Lat, &stop.Location.Lon, &distance)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find nearest stop: %w", err)
	}
	return &stop, distance, nil
}

// StopsNearWithRoutes returns every stop within radiusM of p together with
// the routes serving it, ordered by distance
func (s *Store) StopsNearWithRoutes(ctx context.Context, p models.Point, radiusM float64) ([]StopWithRoutes, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.name, ST_Y(s.location::geometry), ST_X(s.location::geometry),
		       ST_Distance(s.location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS distance,
		       r.id, r.name
		FROM stop s
		LEFT JOIN route_stop rs ON rs.stop_id = s.id
		LEFT JOIN route r ON r.id = rs.route_id
		WHERE ST_DWithin(s.location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY distance, s.id, r.id
	`, p.Lon, p.Lat, radiusM)
	if err != nil {
		return nil, fmt.Errorf("failed to find nearby stops: %w", err)
	}
	defer rows.Close()

	var result []StopWithRoutes
	var current *StopWithRoutes

	for rows.Next() {
		var (
			stop      models.Stop
			distance  float64
			routeID   *int64
			routeName *string
		)
		if err := rows.Scan(&stop.ID, &stop.Name, &stop.Location.Lat, &stop.Location.Lon, &distance, &routeID, &routeName); err != nil {
			return nil, fmt.Errorf("failed to scan nearby stop: %w", err)
		}

		if current == nil || current.Stop.ID != stop.ID {
			result = append(result, StopWithRoutes{Stop: stop, DistanceM: distance})
			current = &result[len(result)-1]
		}
		if routeID != nil {
			current.Routes = append(current.Routes, RouteSummary{ID: *routeID, Name: *routeName})
		}
	}
	return result, rows.Err()
}

// RouteExists reports whether the route id is known
func (s *Store) RouteExists(ctx context.Context, routeID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM route WHERE id = $1)`, routeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check route: %w", err)
	}
	return exists, nil
}
