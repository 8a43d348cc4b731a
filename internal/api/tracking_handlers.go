package api

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/transcaribe/tracking_core/internal/cache"
	"github.com/transcaribe/tracking_core/internal/middleware"
	"github.com/transcaribe/tracking_core/internal/models"
)

// SessionResponse is the client-facing tracking-session representation
type SessionResponse struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	SelectedRouteID *int64     `json:"selected_route_id"`
	ReportedRouteID *int64     `json:"reported_route_id"`
	IsOnBus         bool       `json:"is_on_bus"`
	AssignedBusID   *string    `json:"assigned_bus_id"`
	Status          string     `json:"status"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
}

func toSessionResponse(ts models.TrackingSession) SessionResponse {
	resp := SessionResponse{
		ID:              ts.ID,
		UserID:          ts.UserID,
		SelectedRouteID: ts.SelectedRouteID,
		ReportedRouteID: ts.ReportedRouteID,
		IsOnBus:         ts.IsOnBus,
		Status:          string(ts.Status),
		StartTime:       ts.StartTime,
		EndTime:         ts.EndTime,
	}
	if ts.AssignedBusID != nil {
		id := ts.AssignedBusID.String()
		resp.AssignedBusID = &id
	}
	return resp
}

// BusResponse is the client-facing virtual-bus representation
type BusResponse struct {
	ID              string    `json:"id"`
	RouteID         int64     `json:"route_id"`
	Latitude        float64   `json:"latitude"`
	Longitude       float64   `json:"longitude"`
	CurrentSpeed    float64   `json:"current_speed"`
	CurrentHeading  float64   `json:"current_heading"`
	AssignedUserIDs []int64   `json:"assigned_user_ids"`
	LastUpdate      time.Time `json:"last_update"`
	Status          string    `json:"status"`
}

func toBusResponse(b models.VirtualBus) BusResponse {
	return BusResponse{
		ID:              b.ID.String(),
		RouteID:         b.RouteID,
		Latitude:        b.Location.Lat,
		Longitude:       b.Location.Lon,
		CurrentSpeed:    b.CurrentSpeed,
		CurrentHeading:  b.CurrentHeading,
		AssignedUserIDs: b.AssignedUserIDs,
		LastUpdate:      b.LastUpdate,
		Status:          string(b.Status),
	}
}

// requestUserID resolves the acting rider: the body may name a user_id for
// compatibility, but it must be the authenticated rider.
func requestUserID(c *fiber.Ctx, bodyUserID int64) (int64, error) {
	current, ok := middleware.CurrentUser(c)
	if !ok {
		return 0, c.Status(401).JSON(fiber.Map{"error": "unauthorized"})
	}
	if bodyUserID != 0 && bodyUserID != current.ID {
		return 0, c.Status(403).JSON(fiber.Map{"error": "cannot act for another user"})
	}
	return current.ID, nil
}

// StartSession handles POST /tracking/start-session
func (s *Server) StartSession(c *fiber.Ctx) error {
	var req struct {
		UserID          int64  `json:"user_id"`
		SelectedRouteID *int64 `json:"selected_route_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	userID, err := requestUserID(c, req.UserID)
	if err != nil {
		return err
	}

	if req.SelectedRouteID != nil {
		exists, err := s.store.RouteExists(c.Context(), *req.SelectedRouteID)
		if err != nil {
			return storageError(c, err, "route not found")
		}
		if !exists {
			return c.Status(404).JSON(fiber.Map{"error": "route not found"})
		}
	}

	session, created, err := s.store.StartSession(c.Context(), userID, req.SelectedRouteID)
	if err != nil {
		return storageError(c, err, "session not found")
	}

	status := 200
	if created {
		status = 201
	}
	return c.Status(status).JSON(toSessionResponse(session))
}

// SetOnBus handles POST /tracking/set-on-bus
func (s *Server) SetOnBus(c *fiber.Ctx) error {
	var req struct {
		UserID          int64 `json:"user_id"`
		ReportedRouteID int64 `json:"reported_route_id"`
		IsOnBus         bool  `json:"is_on_bus"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	userID, err := requestUserID(c, req.UserID)
	if err != nil {
		return err
	}
	if req.ReportedRouteID <= 0 {
		return c.Status(422).JSON(fiber.Map{"error": "reported_route_id is required"})
	}

	if err := s.store.SetOnBus(c.Context(), userID, req.ReportedRouteID, req.IsOnBus); err != nil {
		return storageError(c, err, "route not found")
	}

	session, err := s.store.ActiveSessionFor(c.Context(), userID)
	if err != nil {
		return storageError(c, err, "session not found")
	}
	return c.JSON(toSessionResponse(session))
}

// StopSession handles POST /tracking/stop-session
func (s *Server) StopSession(c *fiber.Ctx) error {
	var req struct {
		UserID int64 `json:"user_id"`
	}
	// An empty body is fine; the token identifies the rider
	_ = c.BodyParser(&req)

	userID, err := requestUserID(c, req.UserID)
	if err != nil {
		return err
	}

	if err := s.store.StopSession(c.Context(), userID); err != nil {
		return storageError(c, err, "no active session")
	}
	return c.JSON(fiber.Map{"status": "ended"})
}

// ActiveBuses handles GET /tracking/active-buses. Snapshots are served from
// a short-lived cache to absorb read bursts between engine ticks.
func (s *Server) ActiveBuses(c *fiber.Ctx) error {
	var routeID *int64
	var cacheRouteID int64
	if raw := c.Query("route_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return c.Status(400).JSON(fiber.Map{"error": "invalid route_id"})
		}
		routeID = &id
		cacheRouteID = id
	}

	ctx := c.Context()
	key := cache.BusSnapshotKey(cacheRouteID)

	if buses, err := cache.GetBusSnapshot(ctx, key); err == nil && buses != nil {
		return c.JSON(busListResponse(buses))
	}

	buses, err := s.store.ActiveVirtualBuses(ctx, routeID)
	if err != nil {
		return storageError(c, err, "not found")
	}

	if err := cache.SetBusSnapshot(ctx, key, buses, s.cacheCfg.SnapshotTTL); err != nil {
		log.Printf("api: failed to cache bus snapshot: %v", err)
	}
	return c.JSON(busListResponse(buses))
}

func busListResponse(buses []models.VirtualBus) []BusResponse {
	out := make([]BusResponse, len(buses))
	for i, b := range buses {
		out[i] = toBusResponse(b)
	}
	return out
}

// BusStatus handles GET /tracking/bus/:uuid/status
func (s *Server) BusStatus(c *fiber.Ctx) error {
	busID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid bus id"})
	}

	bus, err := s.store.VirtualBus(c.Context(), busID)
	if err != nil {
		return storageError(c, err, "bus not found")
	}
	return c.JSON(toBusResponse(bus))
}

// BusRoute handles GET /tracking/bus/:uuid/route
func (s *Server) BusRoute(c *fiber.Ctx) error {
	busID, err := uuid.Parse(c.Params("uuid"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid bus id"})
	}

	bus, err := s.store.VirtualBus(c.Context(), busID)
	if err != nil {
		return storageError(c, err, "bus not found")
	}

	route, err := s.store.RouteWithStops(c.Context(), bus.RouteID)
	if err != nil {
		return storageError(c, err, "route not found")
	}
	return c.JSON(toRouteResponse(route))
}
