package api

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/transcaribe/tracking_core/internal/cache"
	"github.com/transcaribe/tracking_core/internal/models"
	"github.com/transcaribe/tracking_core/internal/planner"
)

// RouteStopResponse is one stop of a route in ordinal order
type RouteStopResponse struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Ordinal   int     `json:"ordinal"`
}

// RouteResponse is the client-facing route representation
type RouteResponse struct {
	ID    int64               `json:"id"`
	Name  string              `json:"name"`
	Stops []RouteStopResponse `json:"stops"`
}

func toRouteResponse(r models.Route) RouteResponse {
	resp := RouteResponse{ID: r.ID, Name: r.Name, Stops: make([]RouteStopResponse, len(r.Stops))}
	for i, rs := range r.Stops {
		resp.Stops[i] = RouteStopResponse{
			ID:        rs.Stop.ID,
			Name:      rs.Stop.Name,
			Latitude:  rs.Stop.Location.Lat,
			Longitude: rs.Stop.Location.Lon,
			Ordinal:   rs.Ordinal,
		}
	}
	return resp
}

// CalculateRoute handles POST /ruta/calculate_route
func (s *Server) CalculateRoute(c *fiber.Ctx) error {
	var req struct {
		OrigenLat  float64 `json:"origen_lat"`
		OrigenLon  float64 `json:"origen_lon"`
		DestinoLat float64 `json:"destino_lat"`
		DestinoLon float64 `json:"destino_lon"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if !validCoordinates(req.OrigenLat, req.OrigenLon) || !validCoordinates(req.DestinoLat, req.DestinoLon) {
		return c.Status(422).JSON(fiber.Map{"error": "coordinates out of range"})
	}

	origin := models.Point{Lat: req.OrigenLat, Lon: req.OrigenLon}
	destination := models.Point{Lat: req.DestinoLat, Lon: req.DestinoLon}

	plan, err := s.computePlan(c.Context(), origin, destination)
	if err != nil {
		switch {
		case errors.Is(err, planner.ErrNoNearbyStop):
			return c.Status(404).JSON(fiber.Map{"error": "no nearby stop"})
		case errors.Is(err, planner.ErrUnreachable):
			return c.Status(404).JSON(fiber.Map{"error": "no route between the specified locations"})
		default:
			log.Printf("api: plan computation failed: %v", err)
			return c.Status(500).JSON(fiber.Map{"error": "internal server error"})
		}
	}
	return c.JSON(plan)
}

// computePlan computes a trip plan with caching. Concurrent requests for
// the same origin/destination pair share one computation via the lock.
func (s *Server) computePlan(ctx context.Context, origin, destination models.Point) (*models.TripPlan, error) {
	cacheKey := cache.PlanKey(origin.Lat, origin.Lon, destination.Lat, destination.Lon)
	lockKey := cache.LockKey(cacheKey)

	cached, err := cache.GetPlan(ctx, cacheKey)
	if err == nil && cached != nil {
		return cached, nil
	}

	acquired, err := cache.AcquireLock(ctx, lockKey, s.cacheCfg.MutexTTL)
	if err != nil {
		log.Printf("api: failed to acquire plan lock: %v", err)
		// Continue without lock (degrade gracefully)
	} else if !acquired {
		cached, err := cache.WaitForPlan(ctx, cacheKey, 3*time.Second)
		if err == nil && cached != nil {
			return cached, nil
		}
		// If waiting failed, compute anyway
	}

	defer func() {
		if acquired {
			cache.ReleaseLock(ctx, lockKey)
		}
	}()

	plan, err := s.planner.Plan(ctx, origin, destination)
	if err != nil {
		return nil, err
	}

	if err := cache.SetPlan(ctx, cacheKey, &plan, s.cacheCfg.PlanTTL); err != nil {
		log.Printf("api: failed to cache plan: %v", err)
	}
	return &plan, nil
}

// ListRoutes handles GET /ruta/rutas
func (s *Server) ListRoutes(c *fiber.Ctx) error {
	routes, err := s.store.AllRoutesWithStops(c.Context())
	if err != nil {
		return storageError(c, err, "not found")
	}

	out := make([]RouteResponse, len(routes))
	for i, r := range routes {
		out[i] = toRouteResponse(r)
	}
	return c.JSON(out)
}

// RouteByID handles GET /ruta/rutas/:id
func (s *Server) RouteByID(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid route id"})
	}

	route, err := s.store.RouteWithStops(c.Context(), id)
	if err != nil {
		return storageError(c, err, "route not found")
	}
	return c.JSON(toRouteResponse(route))
}

// NearbyStopResponse is one stop of the cercanas-con-rutas listing
type NearbyStopResponse struct {
	ID        int64                `json:"id"`
	Name      string               `json:"name"`
	Latitude  float64              `json:"latitude"`
	Longitude float64              `json:"longitude"`
	DistanceM float64              `json:"distance_meters"`
	Routes    []NearbyRouteSummary `json:"routes"`
}

// NearbyRouteSummary is a route reference in the nearby-stops listing
type NearbyRouteSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// NearbyStopsWithRoutes handles GET /paradas/cercanas-con-rutas
func (s *Server) NearbyStopsWithRoutes(c *fiber.Ctx) error {
	lat, errLat := strconv.ParseFloat(c.Query("latitude"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("longitude"), 64)
	if errLat != nil || errLon != nil {
		return c.Status(400).JSON(fiber.Map{"error": "latitude and longitude are required"})
	}
	if !validCoordinates(lat, lon) {
		return c.Status(422).JSON(fiber.Map{"error": "coordinates out of range"})
	}

	radius := 300.0
	if raw := c.Query("radius_meters"); raw != "" {
		parsed, err := strconv.ParseFloat(raw, 64)
		if err != nil || parsed <= 0 || parsed > 5000 {
			return c.Status(400).JSON(fiber.Map{"error": "invalid radius_meters (must be between 0 and 5000)"})
		}
		radius = parsed
	}

	stops, err := s.store.StopsNearWithRoutes(c.Context(), models.Point{Lat: lat, Lon: lon}, radius)
	if err != nil {
		return storageError(c, err, "not found")
	}

	out := make([]NearbyStopResponse, len(stops))
	for i, sw := range stops {
		routes := make([]NearbyRouteSummary, len(sw.Routes))
		for j, r := range sw.Routes {
			routes[j] = NearbyRouteSummary{ID: r.ID, Name: r.Name}
		}
		out[i] = NearbyStopResponse{
			ID:        sw.Stop.ID,
			Name:      sw.Stop.Name,
			Latitude:  sw.Stop.Location.Lat,
			Longitude: sw.Stop.Location.Lon,
			DistanceM: sw.DistanceM,
			Routes:    routes,
		}
	}
	return c.JSON(out)
}
