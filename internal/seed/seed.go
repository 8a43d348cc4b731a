// Package seed loads a transit network description (stops and routes) from
// a JSON file into the database.
package seed

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
)

// NetworkFile is the on-disk network description
type NetworkFile struct {
	Stops  []Stop  `json:"stops"`
	Routes []Route `json:"routes"`
}

// Stop is one stop entry of the network file
type Stop struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Route is one route entry of the network file; StopIDs is the ordinal order
type Route struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	StopIDs []int64 `json:"stop_ids"`
}

// ParseFile reads and decodes a network file
func ParseFile(path string) (*NetworkFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read network file: %w", err)
	}

	var network NetworkFile
	if err := json.Unmarshal(data, &network); err != nil {
		return nil, fmt.Errorf("failed to parse network file: %w", err)
	}
	return &network, nil
}

// ValidateAndCleanStops drops stops with unusable coordinates or names
func ValidateAndCleanStops(stops []Stop) []Stop {
	cleaned := []Stop{}

	for _, stop := range stops {
		if stop.Latitude < -90 || stop.Latitude > 90 {
			log.Printf("Warning: invalid latitude for stop %d: %f", stop.ID, stop.Latitude)
			continue
		}
		if stop.Longitude < -180 || stop.Longitude > 180 {
			log.Printf("Warning: invalid longitude for stop %d: %f", stop.ID, stop.Longitude)
			continue
		}
		if stop.Latitude == 0 && stop.Longitude == 0 {
			log.Printf("Warning: stop %d has null island coordinates, skipping", stop.ID)
			continue
		}
		stop.Name = strings.TrimSpace(stop.Name)
		if stop.Name == "" {
			log.Printf("Warning: stop %d has no name, skipping", stop.ID)
			continue
		}

		cleaned = append(cleaned, stop)
	}

	if len(cleaned) < len(stops) {
		log.Printf("Cleaned stops: removed %d invalid stops", len(stops)-len(cleaned))
	}

	return cleaned
}

// ValidateRoutes drops routes referencing unknown stops or with fewer than
// two usable stops. A two-stop minimum is what the engine needs to build a
// polyline.
func ValidateRoutes(routes []Route, stops []Stop) []Route {
	known := make(map[int64]bool, len(stops))
	for _, s := range stops {
		known[s.ID] = true
	}

	cleaned := []Route{}
	for _, route := range routes {
		if strings.TrimSpace(route.Name) == "" {
			log.Printf("Warning: route %d has no name, skipping", route.ID)
			continue
		}

		kept := make([]int64, 0, len(route.StopIDs))
		for _, id := range route.StopIDs {
			if !known[id] {
				log.Printf("Warning: route %d references unknown stop %d, dropping reference", route.ID, id)
				continue
			}
			kept = append(kept, id)
		}
		if len(kept) < 2 {
			log.Printf("Warning: route %d has %d usable stops, skipping", route.ID, len(kept))
			continue
		}

		route.Name = strings.TrimSpace(route.Name)
		route.StopIDs = kept
		cleaned = append(cleaned, route)
	}

	if len(cleaned) < len(routes) {
		log.Printf("Cleaned routes: removed %d invalid routes", len(routes)-len(cleaned))
	}

	return cleaned
}
