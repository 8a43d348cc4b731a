package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/transcaribe/tracking_core/internal/api"
	"github.com/transcaribe/tracking_core/internal/cache"
	"github.com/transcaribe/tracking_core/internal/cluster"
	"github.com/transcaribe/tracking_core/internal/db"
	"github.com/transcaribe/tracking_core/internal/graph"
	"github.com/transcaribe/tracking_core/internal/middleware"
	"github.com/transcaribe/tracking_core/internal/planner"
	"github.com/transcaribe/tracking_core/internal/store"
)

func main() {
	log.Println("Starting Transcaribe tracking API server...")

	pool, err := db.GetDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("✓ Database connection established")

	rdb, err := cache.GetClient()
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer cache.Close()
	log.Println("✓ Redis connection established")

	st := store.New(pool)
	plannerCfg := planner.DefaultConfig()

	g := graph.New()
	if err := g.Build(context.Background(), st, plannerCfg.BusSpeedKph); err != nil {
		log.Fatalf("Failed to build stop graph: %v", err)
	}
	log.Println("✓ Stop graph loaded into memory")

	pl := planner.New(g, st, plannerCfg)

	queue := cluster.NewQueue()
	engine := cluster.NewEngine(queue, func(ctx context.Context) (cluster.TickStore, error) {
		return st.Begin(ctx)
	}, cluster.DefaultConfig())
	engine.Start()

	tokens := middleware.LoadTokenConfigFromEnv()
	server := api.NewServer(st, pl, queue, tokens, cache.LoadConfigFromEnv())

	app := fiber.New(fiber.Config{
		AppName:      "Transcaribe Tracking API",
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	server.Register(app, rdb)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(404).JSON(fiber.Map{
			"error": "endpoint not found",
		})
	})

	port := getEnv("API_PORT", "8080")
	addr := fmt.Sprintf(":%s", port)

	// Graceful shutdown: stop feeding the engine first, then the listener
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down gracefully...")
		engine.Stop()
		if err := app.Shutdown(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}()

	log.Printf("🚀 Server listening on http://localhost%s", addr)
	log.Printf("📍 Trip planning: POST http://localhost%s/ruta/calculate_route", addr)
	log.Printf("❤️  Health check: http://localhost%s/health", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// customErrorHandler handles errors returned from handlers
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	log.Printf("Error: %v", err)

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
