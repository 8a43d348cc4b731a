// Package api exposes the HTTP and WebSocket surface: auth, tracking,
// trip planning, nearby stops and irregularity reports.
package api

import (
	"errors"
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/transcaribe/tracking_core/internal/cache"
	"github.com/transcaribe/tracking_core/internal/cluster"
	"github.com/transcaribe/tracking_core/internal/db"
	"github.com/transcaribe/tracking_core/internal/geo"
	"github.com/transcaribe/tracking_core/internal/middleware"
	"github.com/transcaribe/tracking_core/internal/planner"
	"github.com/transcaribe/tracking_core/internal/store"
)

// Server bundles the handler dependencies
type Server struct {
	store    *store.Store
	planner  *planner.Planner
	queue    *cluster.Queue
	tokens   middleware.TokenConfig
	cacheCfg *cache.Config
}

// NewServer creates the handler set over its dependencies
func NewServer(st *store.Store, pl *planner.Planner, queue *cluster.Queue, tokens middleware.TokenConfig, cacheCfg *cache.Config) *Server {
	return &Server{store: st, planner: pl, queue: queue, tokens: tokens, cacheCfg: cacheCfg}
}

// Register mounts every route on the app
func (s *Server) Register(app *fiber.App, rdb *redis.Client) {
	app.Get("/health", s.Health)

	auth := app.Group("/auth")
	auth.Post("/register", s.RegisterUser)
	auth.Post("/login", middleware.LoginRateLimit(rdb, 10), s.Login)

	requireAuth := middleware.RequireAuth(s.tokens, s.store)
	auth.Get("/me", requireAuth, s.Me)
	auth.Put("/users/:id", requireAuth, s.UpdateUser)

	tracking := app.Group("/tracking", requireAuth)
	tracking.Post("/start-session", s.StartSession)
	tracking.Post("/set-on-bus", s.SetOnBus)
	tracking.Post("/stop-session", s.StopSession)
	tracking.Get("/active-buses", s.ActiveBuses)
	tracking.Get("/bus/:uuid/status", s.BusStatus)
	tracking.Get("/bus/:uuid/route", s.BusRoute)

	ruta := app.Group("/ruta", requireAuth)
	ruta.Post("/calculate_route", s.CalculateRoute)
	ruta.Get("/rutas", s.ListRoutes)
	ruta.Get("/rutas/:id", s.RouteByID)

	paradas := app.Group("/paradas", requireAuth)
	paradas.Get("/cercanas-con-rutas", s.NearbyStopsWithRoutes)

	irr := app.Group("/irregularities", requireAuth)
	irr.Post("/report", s.ReportIrregularity)
	irr.Get("/search/:id", s.IrregularityByID)
	irr.Get("/active", s.ActiveIrregularities)
	irr.Post("/vote/:id/like", s.VoteLike)
	irr.Post("/vote/:id/dislike", s.VoteDislike)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/location/:user_id", websocket.New(s.LocationStream))
}

// Health handles the /health endpoint
func (s *Server) Health(c *fiber.Ctx) error {
	ctx := c.Context()

	dbErr := db.HealthCheck(ctx)
	dbStatus := "ok"
	if dbErr != nil {
		dbStatus = dbErr.Error()
	}

	redisErr := cache.HealthCheck(ctx)
	redisStatus := "ok"
	if redisErr != nil {
		redisStatus = redisErr.Error()
	}

	status := "healthy"
	httpStatus := 200
	if dbErr != nil || redisErr != nil {
		status = "unhealthy"
		httpStatus = 503
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
	})
}

// storageError maps store errors to stable client responses. Raw storage
// text never reaches the client.
func storageError(c *fiber.Ctx, err error, notFoundMsg string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.Status(404).JSON(fiber.Map{"error": notFoundMsg})
	case errors.Is(err, store.ErrConflict):
		return c.Status(409).JSON(fiber.Map{"error": "conflict"})
	case errors.Is(err, store.ErrPrecondition):
		return c.Status(400).JSON(fiber.Map{"error": "precondition failed"})
	default:
		log.Printf("api: storage error: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "internal server error"})
	}
}

// validCoordinates checks WGS84 degree ranges
func validCoordinates(lat, lon float64) bool {
	return geo.ValidCoordinates(lat, lon)
}
