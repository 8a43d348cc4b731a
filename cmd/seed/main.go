package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/transcaribe/tracking_core/internal/db"
	"github.com/transcaribe/tracking_core/internal/seed"
)

func main() {
	networkPath := flag.String("network", "", "Path to network JSON file (required)")
	truncate := flag.Bool("truncate", false, "Remove existing stops and routes before loading")

	flag.Parse()

	if *networkPath == "" {
		fmt.Println("Usage: tracking-seed --network=<path.json> [--truncate]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if _, err := os.Stat(*networkPath); os.IsNotExist(err) {
		log.Fatalf("Network file not found: %s", *networkPath)
	}

	log.Println("Starting network import...")
	log.Printf("Network file: %s", *networkPath)

	pool, err := db.GetDB()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	startTime := time.Now()

	log.Println("Step 1/3: Parsing network file...")
	network, err := seed.ParseFile(*networkPath)
	if err != nil {
		log.Fatalf("Failed to parse network: %v", err)
	}

	log.Println("Step 2/3: Validating stops and routes...")
	network.Stops = seed.ValidateAndCleanStops(network.Stops)
	network.Routes = seed.ValidateRoutes(network.Routes, network.Stops)

	log.Println("Step 3/3: Importing to database...")
	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("Failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	if *truncate {
		if _, err := tx.Exec(ctx, `TRUNCATE route_stop, route, stop RESTART IDENTITY CASCADE`); err != nil {
			log.Fatalf("Failed to truncate network tables: %v", err)
		}
	}

	if err := importStops(ctx, tx, network.Stops); err != nil {
		log.Fatalf("Failed to import stops: %v", err)
	}
	if err := importRoutes(ctx, tx, network.Routes); err != nil {
		log.Fatalf("Failed to import routes: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("Failed to commit transaction: %v", err)
	}

	log.Printf("Import completed in %s: %d stops, %d routes",
		time.Since(startTime), len(network.Stops), len(network.Routes))
}

func importStops(ctx context.Context, tx pgx.Tx, stops []seed.Stop) error {
	batch := &pgx.Batch{}

	for _, stop := range stops {
		batch.Queue(`
			INSERT INTO stop (id, name, location)
			VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name,
			    location = EXCLUDED.location
		`, stop.ID, stop.Name, stop.Longitude, stop.Latitude)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert stop: %w", err)
		}
	}
	return results.Close()
}

func importRoutes(ctx context.Context, tx pgx.Tx, routes []seed.Route) error {
	batch := &pgx.Batch{}

	for _, route := range routes {
		batch.Queue(`
			INSERT INTO route (id, name)
			VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		`, route.ID, route.Name)
		batch.Queue(`DELETE FROM route_stop WHERE route_id = $1`, route.ID)

		for ordinal, stopID := range route.StopIDs {
			batch.Queue(`
				INSERT INTO route_stop (route_id, stop_id, ordinal)
				VALUES ($1, $2, $3)
			`, route.ID, stopID, ordinal)
		}
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert route: %w", err)
		}
	}
	return results.Close()
}
